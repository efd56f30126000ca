package persistence

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kizaaaa/insurix/internal/core"
	"github.com/Kizaaaa/insurix/internal/ledger"
	"github.com/Kizaaaa/insurix/internal/state"
)

// RowsFromOutput flattens one engine output into database rows. The
// journal rows come along only on the output that carries the batch,
// so multi-notification operations store their batch exactly once.
func RowsFromOutput(out core.Output) EngineOutput {
	n := out.Notification

	row := NotificationRow{
		Sequence:  n.Sequence,
		Type:      n.Type.String(),
		OpKey:     n.OpKey,
		PolicyID:  int64(n.PolicyID),
		Payload:   MarshalPayload(n.Payload),
		StateHash: n.StateHash[:],
		PrevHash:  n.PrevHash[:],
		Timestamp: n.Timestamp,
	}

	var journals []JournalRow
	if out.Batch != nil {
		journals = make([]JournalRow, 0, len(out.Batch.Journals))
		for _, j := range out.Batch.Journals {
			journals = append(journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				OpRef:         j.OpRef,
				Sequence:      j.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Amount:        j.Amount,
				JournalType:   int32(j.JournalType),
				PolicyID:      int64(j.PolicyID),
				Party:         j.Party.String(),
				Timestamp:     j.Timestamp,
			})
		}
	}

	return EngineOutput{NotificationRow: row, JournalRows: journals}
}

// SnapshotFromEngine converts the engine's typed snapshot into its
// serializable form.
func SnapshotFromEngine(snap *core.SnapshotState, createdAt time.Time) *SnapshotData {
	balances := make(map[string]int64, len(snap.Balances))
	for key, balance := range snap.Balances {
		balances[key.AccountPath()] = balance
	}

	policies := make([]PolicySnapshot, 0, len(snap.Policies))
	for _, p := range snap.Policies {
		policies = append(policies, PolicySnapshot{
			ID:           p.ID,
			Holder:       p.Holder.String(),
			FlightID:     p.FlightID,
			Departure:    p.Departure,
			PurchasedAt:  p.PurchasedAt,
			PremiumPaid:  p.PremiumPaid,
			MaxPayout:    p.MaxPayout,
			Status:       p.Status.String(),
			DelayHours:   p.DelayHours,
			PayoutAmount: p.PayoutAmount,
			Version:      p.Version,
		})
	}

	reports := make([]ReportSnapshot, 0, len(snap.Reports))
	for _, r := range snap.Reports {
		reports = append(reports, ReportSnapshot{
			FlightID:     r.FlightID,
			DayBucket:    r.DayBucket,
			Status:       int32(r.Status),
			DelayMinutes: r.DelayMinutes,
			ReportedAt:   r.ReportedAt,
		})
	}

	tiers := make([]TierSnapshot, 0, len(snap.Tiers))
	for _, t := range snap.Tiers {
		tiers = append(tiers, TierSnapshot{
			MinDelayHours: t.MinDelayHours,
			PayoutBps:     t.PayoutBps,
		})
	}

	oracles := make([]string, 0, len(snap.Oracles))
	for _, o := range snap.Oracles {
		oracles = append(oracles, o.String())
	}

	return &SnapshotData{
		Sequence:  snap.Sequence,
		StateHash: snap.StateHash[:],
		Balances:  balances,
		Policies:  policies,
		Reports:   reports,
		Tiers:     tiers,
		Params: ParamsSnapshot{
			MinPremium:         snap.Params.MinPremium,
			MaxPremium:         snap.Params.MaxPremium,
			PayoutMultiplier:   snap.Params.PayoutMultiplier,
			MinLeadTimeSeconds: int64(snap.Params.MinLeadTime.Seconds()),
		},
		Admin:           snap.Admin.String(),
		Oracles:         oracles,
		Paused:          snap.Paused,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       createdAt,
	}
}

// SnapshotToEngine converts a loaded snapshot back into the engine's
// typed form. Unknown account paths or malformed UUIDs fail the
// restore rather than silently dropping state.
func SnapshotToEngine(sd *SnapshotData) (*core.SnapshotState, error) {
	balances := make(map[ledger.AccountKey]int64, len(sd.Balances))
	for path, balance := range sd.Balances {
		key, ok := ledger.ParseAccountPath(path)
		if !ok {
			return nil, fmt.Errorf("snapshot has unknown account path %q", path)
		}
		balances[key] = balance
	}

	policies := make([]*state.Policy, 0, len(sd.Policies))
	for _, p := range sd.Policies {
		holder, err := uuid.Parse(p.Holder)
		if err != nil {
			return nil, fmt.Errorf("snapshot policy %d: bad holder: %w", p.ID, err)
		}
		status, err := state.ParsePolicyStatus(p.Status)
		if err != nil {
			return nil, fmt.Errorf("snapshot policy %d: %w", p.ID, err)
		}
		policies = append(policies, &state.Policy{
			ID:           p.ID,
			Holder:       holder,
			FlightID:     p.FlightID,
			Departure:    p.Departure,
			PurchasedAt:  p.PurchasedAt,
			PremiumPaid:  p.PremiumPaid,
			MaxPayout:    p.MaxPayout,
			Status:       status,
			DelayHours:   p.DelayHours,
			PayoutAmount: p.PayoutAmount,
			Version:      p.Version,
		})
	}

	reports := make([]*state.FlightReport, 0, len(sd.Reports))
	for _, r := range sd.Reports {
		reports = append(reports, &state.FlightReport{
			FlightID:     r.FlightID,
			DayBucket:    r.DayBucket,
			Status:       state.FlightStatus(r.Status),
			DelayMinutes: r.DelayMinutes,
			ReportedAt:   r.ReportedAt,
		})
	}

	tiers := make([]state.PayoutTier, 0, len(sd.Tiers))
	for _, t := range sd.Tiers {
		tiers = append(tiers, state.PayoutTier{
			MinDelayHours: t.MinDelayHours,
			PayoutBps:     t.PayoutBps,
		})
	}

	admin, err := uuid.Parse(sd.Admin)
	if err != nil {
		return nil, fmt.Errorf("snapshot admin: %w", err)
	}

	oracles := make([]uuid.UUID, 0, len(sd.Oracles))
	for _, o := range sd.Oracles {
		id, err := uuid.Parse(o)
		if err != nil {
			return nil, fmt.Errorf("snapshot oracle %q: %w", o, err)
		}
		oracles = append(oracles, id)
	}

	var stateHash [32]byte
	if len(sd.StateHash) != len(stateHash) {
		return nil, fmt.Errorf("snapshot state hash has %d bytes, want %d", len(sd.StateHash), len(stateHash))
	}
	copy(stateHash[:], sd.StateHash)

	return &core.SnapshotState{
		Sequence:  sd.Sequence,
		StateHash: stateHash,
		Balances:  balances,
		Policies:  policies,
		Reports:   reports,
		Tiers:     tiers,
		Params: state.Params{
			MinPremium:       sd.Params.MinPremium,
			MaxPremium:       sd.Params.MaxPremium,
			PayoutMultiplier: sd.Params.PayoutMultiplier,
			MinLeadTime:      time.Duration(sd.Params.MinLeadTimeSeconds) * time.Second,
		},
		Admin:           admin,
		Oracles:         oracles,
		Paused:          sd.Paused,
		IdempotencyKeys: sd.IdempotencyKeys,
	}, nil
}
