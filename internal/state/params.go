package state

import (
	"fmt"
	"time"

	"github.com/Kizaaaa/insurix/internal/money"
)

// Params are the admin-tunable admission parameters. A policy's MaxPayout
// is fixed from the multiplier in force at purchase time; later updates
// never reprice existing policies.
type Params struct {
	MinPremium       int64 // micro-units
	MaxPremium       int64 // micro-units
	PayoutMultiplier int64
	MinLeadTime      time.Duration
}

// DefaultParams are the parameters in force before any admin update.
func DefaultParams() Params {
	return Params{
		MinPremium:       money.Scale / 100, // 0.01 units
		MaxPremium:       money.Units(1),
		PayoutMultiplier: 5,
		MinLeadTime:      time.Hour,
	}
}

// ValidateParams checks min < max, multiplier > 0, lead time >= 0.
func ValidateParams(p Params) error {
	if p.MinPremium <= 0 {
		return fmt.Errorf("min premium must be > 0, got %d", p.MinPremium)
	}
	if p.MinPremium >= p.MaxPremium {
		return fmt.Errorf("min premium (%d) must be < max premium (%d)", p.MinPremium, p.MaxPremium)
	}
	if p.PayoutMultiplier <= 0 {
		return fmt.Errorf("payout multiplier must be > 0, got %d", p.PayoutMultiplier)
	}
	if p.MinLeadTime < 0 {
		return fmt.Errorf("min lead time must be >= 0, got %s", p.MinLeadTime)
	}
	return nil
}

// ParamsManager holds the current parameters. Updates are all-or-nothing.
type ParamsManager struct {
	params Params
}

func NewParamsManager() *ParamsManager {
	return &ParamsManager{params: DefaultParams()}
}

func (pm *ParamsManager) Params() Params {
	return pm.params
}

func (pm *ParamsManager) Update(p Params) error {
	if err := ValidateParams(p); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	pm.params = p
	return nil
}
