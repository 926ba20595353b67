// Package pricing implements the weighted-mode price curves of a sale.
//
// A curve maps the sale's configuration and progress to an integer rate of
// tokens per base unit. The engine never lets the committed rate rise, so a
// curve only has to describe where the price should be at a point in time;
// the monotonic floor is applied by the caller.
package pricing

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/xraph/tokensale/types"
)

// Built-in curve names.
const (
	NameLinearTime = "linear-time"
	NameDemand     = "demand"
)

// MinRate is the lowest rate any built-in curve produces.
const MinRate uint64 = 1

// Input is the subset of sale state a curve may read.
type Input struct {
	InitialRate uint64
	StartTime   time.Time
	EndTime     time.Time
	HardCap     types.Amount
	Raised      types.Amount
}

// Curve computes a weighted-mode rate.
type Curve interface {
	Name() string
	Rate(in Input, now time.Time) uint64
}

// LinearTime decays the rate linearly from InitialRate at StartTime to
// MinRate at EndTime. Elapsed time is clamped to the sale window.
type LinearTime struct{}

// Name implements Curve.
func (LinearTime) Name() string { return NameLinearTime }

// Rate implements Curve.
func (LinearTime) Rate(in Input, now time.Time) uint64 {
	if in.InitialRate <= MinRate {
		return MinRate
	}
	window := in.EndTime.Sub(in.StartTime)
	if window <= 0 {
		return MinRate
	}

	elapsed := now.Sub(in.StartTime)
	switch {
	case elapsed < 0:
		elapsed = 0
	case elapsed > window:
		elapsed = window
	}

	return decay(in.InitialRate, uint64(elapsed), uint64(window))
}

// Demand decays the rate linearly with the fraction of the hard cap raised:
// InitialRate with nothing raised, MinRate once the cap is reached.
type Demand struct{}

// Name implements Curve.
func (Demand) Name() string { return NameDemand }

// Rate implements Curve.
func (Demand) Rate(in Input, _ time.Time) uint64 {
	if in.InitialRate <= MinRate || in.HardCap.IsZero() {
		return MinRate
	}
	const scale = uint64(1e18)
	return decay(in.InitialRate, in.Raised.Fraction(in.HardCap, scale), scale)
}

// decay returns initial - (initial-MinRate)*progress/total without
// intermediate overflow, never below MinRate.
func decay(initial, progress, total uint64) uint64 {
	if total == 0 {
		return MinRate
	}
	var drop uint256.Int
	drop.Mul(uint256.NewInt(initial-MinRate), uint256.NewInt(progress))
	drop.Div(&drop, uint256.NewInt(total))

	rate := initial - drop.Uint64()
	if rate < MinRate {
		return MinRate
	}
	return rate
}

// Lookup returns the built-in curve registered under name.
func Lookup(name string) (Curve, bool) {
	switch name {
	case NameLinearTime:
		return LinearTime{}, true
	case NameDemand:
		return Demand{}, true
	default:
		return nil, false
	}
}

// Names lists the built-in curve names.
func Names() []string {
	return []string{NameLinearTime, NameDemand}
}

// Floor returns the rate to commit: the curve rate, but never more than the
// currently stored rate.
func Floor(stored, curve uint64) uint64 {
	if curve < stored {
		return curve
	}
	return stored
}
