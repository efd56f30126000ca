// Package claims holds the pure claim decision logic shared by claim
// processing and the read-only status preview.
package claims

import (
	"github.com/Kizaaaa/insurix/internal/money"
	"github.com/Kizaaaa/insurix/internal/state"
)

// CancelledFlightDelayHours is the delay a cancelled flight is treated as,
// regardless of reported minutes. Cancellation is always the worst case.
const CancelledFlightDelayHours int64 = 24

// Outcome classifies the decision for a policy given a report.
type Outcome int32

const (
	// OutcomeNoReport means no report has landed for the policy's key yet;
	// the claim is retryable.
	OutcomeNoReport Outcome = iota

	// OutcomeExpire means the flight was on time or the delay was below
	// every tier; the policy expires with no payout.
	OutcomeExpire

	// OutcomePayout means a payout is due.
	OutcomePayout
)

// Assessment is the full decision for one policy against one report.
type Assessment struct {
	Outcome      Outcome
	FlightStatus state.FlightStatus
	DelayHours   int64
	PayoutBps    int64
	PayoutAmount int64
}

// DelayHours derives whole delay hours from a report. Integer division
// truncates sub-hour remainders; cancelled flights override to the fixed
// maximum.
func DelayHours(r *state.FlightReport) int64 {
	if r.Status == state.FlightStatusCancelled {
		return CancelledFlightDelayHours
	}
	return r.DelayMinutes / 60
}

// Assess runs the decision logic of claim processing without touching any
// state: delay derivation, tier selection, and the truncating basis-point
// payout against the policy's fixed MaxPayout.
func Assess(p *state.Policy, r *state.FlightReport, tiers *state.TierTable) Assessment {
	if r == nil {
		return Assessment{Outcome: OutcomeNoReport, FlightStatus: state.FlightStatusUnknown}
	}

	a := Assessment{FlightStatus: r.Status}

	switch r.Status {
	case state.FlightStatusDelayed, state.FlightStatusCancelled:
		a.DelayHours = DelayHours(r)
	case state.FlightStatusOnTime:
		a.Outcome = OutcomeExpire
		return a
	default:
		// A report whose status is still unknown settles nothing;
		// the claim stays retryable until a definitive report lands.
		a.Outcome = OutcomeNoReport
		return a
	}

	if a.DelayHours == 0 {
		// Sub-hour delay has no tier
		a.Outcome = OutcomeExpire
		return a
	}

	a.PayoutBps = tiers.Select(a.DelayHours)
	a.PayoutAmount = money.ApplyBasisPoints(p.MaxPayout, a.PayoutBps)

	if a.PayoutAmount == 0 {
		a.Outcome = OutcomeExpire
		return a
	}

	a.Outcome = OutcomePayout
	return a
}
