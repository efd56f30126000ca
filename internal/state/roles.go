package state

import (
	"fmt"

	"github.com/google/uuid"
)

// RoleRegistry holds the single administrator identity, the set of
// authorized report submitters, and the pause flag gating new-policy
// admission. Not thread-safe — only accessed from the single-threaded
// engine.
type RoleRegistry struct {
	admin   uuid.UUID
	oracles map[uuid.UUID]bool
	paused  bool
}

func NewRoleRegistry(admin uuid.UUID) *RoleRegistry {
	return &RoleRegistry{
		admin:   admin,
		oracles: make(map[uuid.UUID]bool),
	}
}

// Admin returns the current administrator identity.
func (rr *RoleRegistry) Admin() uuid.UUID {
	return rr.admin
}

// IsAdmin reports whether party is the administrator.
func (rr *RoleRegistry) IsAdmin(party uuid.UUID) bool {
	return party == rr.admin
}

// TransferAdmin hands the administrator role to a new identity.
func (rr *RoleRegistry) TransferAdmin(next uuid.UUID) error {
	if next == uuid.Nil {
		return fmt.Errorf("admin identity must not be nil")
	}
	rr.admin = next
	return nil
}

// IsOracle reports whether party may submit flight reports.
func (rr *RoleRegistry) IsOracle(party uuid.UUID) bool {
	return rr.oracles[party]
}

// AuthorizeOracle adds party to the authorized-reporter set.
func (rr *RoleRegistry) AuthorizeOracle(party uuid.UUID) error {
	if party == uuid.Nil {
		return fmt.Errorf("oracle identity must not be nil")
	}
	rr.oracles[party] = true
	return nil
}

// RevokeOracle removes party from the authorized-reporter set.
func (rr *RoleRegistry) RevokeOracle(party uuid.UUID) {
	delete(rr.oracles, party)
}

// Oracles returns the authorized reporter identities.
func (rr *RoleRegistry) Oracles() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(rr.oracles))
	for id := range rr.oracles {
		out = append(out, id)
	}
	return out
}

// Paused reports whether new-policy admission is gated.
func (rr *RoleRegistry) Paused() bool {
	return rr.paused
}

// SetPaused flips the pause flag. Only purchase is gated by pause.
func (rr *RoleRegistry) SetPaused(paused bool) {
	rr.paused = paused
}
