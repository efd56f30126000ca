package state

import (
	"fmt"

	"github.com/google/uuid"
)

// PolicyLedger is the authoritative set of policies, indexed by id and by
// holder. Not thread-safe — only accessed from the single-threaded engine.
type PolicyLedger struct {
	policies map[uint64]*Policy
	byHolder map[uuid.UUID][]uint64
	nextID   uint64
}

func NewPolicyLedger() *PolicyLedger {
	return &PolicyLedger{
		policies: make(map[uint64]*Policy),
		byHolder: make(map[uuid.UUID][]uint64),
		nextID:   1,
	}
}

// NextID returns the id the next created policy will receive.
func (pl *PolicyLedger) NextID() uint64 {
	return pl.nextID
}

// Create inserts a new Active policy, assigns the next monotonic id and
// appends it to the holder's index.
func (pl *PolicyLedger) Create(p *Policy) uint64 {
	p.ID = pl.nextID
	p.Status = PolicyStatusActive
	pl.nextID++

	pl.policies[p.ID] = p
	pl.byHolder[p.Holder] = append(pl.byHolder[p.Holder], p.ID)
	return p.ID
}

// Get returns the policy for an id, or an error if the id has never been
// assigned.
func (pl *PolicyLedger) Get(id uint64) (*Policy, error) {
	p, ok := pl.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy %d does not exist", id)
	}
	return p, nil
}

// HolderPolicies returns the ids of all policies ever purchased by holder,
// in purchase order.
func (pl *PolicyLedger) HolderPolicies(holder uuid.UUID) []uint64 {
	ids := pl.byHolder[holder]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// Transition moves a policy to a new status, enforcing the lifecycle state
// machine. Terminal states are absorbing.
func (pl *PolicyLedger) Transition(p *Policy, next PolicyStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("policy %d is %s, cannot transition to %s", p.ID, p.Status, next)
	}
	p.Status = next
	p.Version++
	return nil
}

// OutstandingExposure sums MaxPayout over all Active policies. Tracked for
// observability; admission does not enforce it (see purchase solvency note
// in DESIGN.md).
func (pl *PolicyLedger) OutstandingExposure() int64 {
	var total int64
	for _, p := range pl.policies {
		if p.Status == PolicyStatusActive {
			total += p.MaxPayout
		}
	}
	return total
}

// Count returns the number of policies ever created.
func (pl *PolicyLedger) Count() int {
	return len(pl.policies)
}

// All returns every policy. Used for snapshots; callers must not mutate.
func (pl *PolicyLedger) All() []*Policy {
	out := make([]*Policy, 0, len(pl.policies))
	for _, p := range pl.policies {
		out = append(out, p)
	}
	return out
}

// Restore re-inserts a policy from a snapshot, rebuilding the holder index
// and keeping the id counter ahead of every restored id.
func (pl *PolicyLedger) Restore(p *Policy) {
	pl.policies[p.ID] = p
	pl.byHolder[p.Holder] = append(pl.byHolder[p.Holder], p.ID)
	if p.ID >= pl.nextID {
		pl.nextID = p.ID + 1
	}
}
