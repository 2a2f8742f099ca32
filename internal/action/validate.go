// Package action clamps proposed actions to the range the hardware accepts.
package action

import (
	"math"

	"github.com/kishlaychandan/feedback-backend/internal/model"
)

const (
	MinSetpointC = 16.0
	MaxSetpointC = 30.0
	MinDeltaC    = -10.0
	MaxDeltaC    = 10.0
)

// Validated is an action after clamping. Clamped is set only when a numeric
// value had to be bounded to its range; rounding and dropped fields do not
// count.
type Validated struct {
	model.Action
	Clamped bool
}

// Validate clamps setpoint and delta, rounds them to 0.1 and drops power
// values other than ON and OFF. Non-finite numbers are dropped.
func Validate(a model.Action) Validated {
	var out Validated

	if a.Power != "" {
		if a.Power.Valid() {
			out.Power = a.Power
		}
	}

	if a.SetpointC != nil {
		v, bounded, ok := clamp(*a.SetpointC, MinSetpointC, MaxSetpointC)
		if ok {
			out.SetpointC = &v
		}
		out.Clamped = out.Clamped || bounded
	}

	if a.DeltaC != nil {
		v, bounded, ok := clamp(*a.DeltaC, MinDeltaC, MaxDeltaC)
		if ok {
			out.DeltaC = &v
		}
		out.Clamped = out.Clamped || bounded
	}

	return out
}

// ClampSetpoint bounds an absolute setpoint to the safe range at 0.1 resolution.
func ClampSetpoint(v float64) float64 {
	out, _, _ := clamp(v, MinSetpointC, MaxSetpointC)
	return out
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// clamp rounds v and bounds it to [lo, hi]. bounded reports whether the
// range changed the rounded value; ok is false for non-finite input.
func clamp(v, lo, hi float64) (out float64, bounded, ok bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, false
	}
	out = Round1(v)
	switch {
	case out < lo:
		out, bounded = lo, true
	case out > hi:
		out, bounded = hi, true
	}
	if out == 0 {
		// normalize negative zero
		out = 0
	}
	return out, bounded, true
}
