package state

import (
	"fmt"
	"sort"

	"github.com/Kizaaaa/insurix/internal/money"
)

// PayoutTier maps a minimum delay in whole hours to a payout percentage in
// basis points (10000 = 100%).
type PayoutTier struct {
	MinDelayHours int64
	PayoutBps     int64
}

// TierTable is an ordered, immutable sequence of payout tiers. Replacement
// swaps the whole slice reference at once so no caller can observe a
// partially rebuilt table.
type TierTable struct {
	tiers []PayoutTier
}

// DefaultTiers is the tier table in force before any admin replacement.
var DefaultTiers = []PayoutTier{
	{MinDelayHours: 1, PayoutBps: 2_500},
	{MinDelayHours: 4, PayoutBps: 7_500},
	{MinDelayHours: 8, PayoutBps: 10_000},
}

func NewTierTable() *TierTable {
	t := &TierTable{}
	// DefaultTiers is valid by construction
	_ = t.Replace(DefaultTiers)
	return t
}

// ValidateTiers checks a candidate table: non-empty, every percentage
// within [0, 10000].
func ValidateTiers(tiers []PayoutTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("tier table must not be empty")
	}
	for i, t := range tiers {
		if t.MinDelayHours < 0 {
			return fmt.Errorf("tier %d: min delay hours must be >= 0, got %d", i, t.MinDelayHours)
		}
		if !money.ValidBasisPoints(t.PayoutBps) {
			return fmt.Errorf("tier %d: payout bps must be within [0, 10000], got %d", i, t.PayoutBps)
		}
	}
	return nil
}

// Replace validates the candidate and swaps the table atomically. On a
// validation error the previous table stays intact.
func (tt *TierTable) Replace(tiers []PayoutTier) error {
	if err := ValidateTiers(tiers); err != nil {
		return err
	}

	next := make([]PayoutTier, len(tiers))
	copy(next, tiers)
	sort.Slice(next, func(i, j int) bool {
		return next[i].MinDelayHours < next[j].MinDelayHours
	})

	tt.tiers = next
	return nil
}

// Select scans tiers from the highest threshold downward and returns the
// payout bps of the first tier whose MinDelayHours <= delayHours. Returns 0
// when no tier qualifies.
func (tt *TierTable) Select(delayHours int64) int64 {
	for i := len(tt.tiers) - 1; i >= 0; i-- {
		if tt.tiers[i].MinDelayHours <= delayHours {
			return tt.tiers[i].PayoutBps
		}
	}
	return 0
}

// Tiers returns a copy of the current table in ascending threshold order.
func (tt *TierTable) Tiers() []PayoutTier {
	out := make([]PayoutTier, len(tt.tiers))
	copy(out, tt.tiers)
	return out
}
