// Package hardlimits holds the non-negotiable safety bounds every
// profile-derived scalar is validated against before a cycle may dose.
package hardlimits

import "fmt"

// #region bounds

// Bound is a closed [Min, Max] safety range for one named quantity.
type Bound struct {
	Min float64
	Max float64
}

// Limits is the full table of hard safety bounds. Values follow the
// established closed-loop reference ranges; temporary targets get a wider
// band than profile targets.
type Limits struct {
	DIA           Bound   // hours
	CarbRatio     Bound   // g/U
	ISF           Bound   // mg/dL per U
	MaxBasal      Bound   // U/h, also bounds max daily basal and pump base rate
	MinBG         Bound   // mg/dL, profile low target
	MaxBG         Bound   // mg/dL, profile high target
	TargetBG      Bound   // mg/dL, profile target
	TempMinBG     Bound   // mg/dL, temporary-target low
	TempMaxBG     Bound   // mg/dL, temporary-target high
	MaxIOBForSMB  float64 // U, hard ceiling on IOB in SMB mode
	AdjustmentPct Bound   // dyn-ISF adjustment factor percent
}

// DefaultLimits returns the adult-patient hard limit table.
func DefaultLimits() Limits {
	return Limits{
		DIA:           Bound{Min: 5, Max: 9},
		CarbRatio:     Bound{Min: 2, Max: 100},
		ISF:           Bound{Min: 2, Max: 1000},
		MaxBasal:      Bound{Min: 0.02, Max: 10},
		MinBG:         Bound{Min: 72, Max: 180},
		MaxBG:         Bound{Min: 90, Max: 270},
		TargetBG:      Bound{Min: 80, Max: 200},
		TempMinBG:     Bound{Min: 72, Max: 200},
		TempMaxBG:     Bound{Min: 72, Max: 270},
		MaxIOBForSMB:  22,
		AdjustmentPct: Bound{Min: 1, Max: 300},
	}
}

// #endregion bounds

// #region violation

// Violation reports a scalar outside its hard bounds. A violation always
// aborts the cycle; no dose is ever derived from an out-of-bounds input.
type Violation struct {
	Field string
	Value float64
	Bound Bound
}

func (v *Violation) Error() string {
	return fmt.Sprintf("hard limit violation: %s=%v outside [%v, %v]",
		v.Field, v.Value, v.Bound.Min, v.Bound.Max)
}

// #endregion violation

// #region checks

// Check validates value against the bound, returning a Violation error
// when it falls outside.
func Check(field string, value float64, bound Bound) error {
	if value < bound.Min || value > bound.Max {
		return &Violation{Field: field, Value: value, Bound: bound}
	}
	return nil
}

// Clamp forces value into the bound. Used for target-BG resolution, where
// an out-of-range target is corrected rather than fatal.
func Clamp(value float64, bound Bound) float64 {
	if value < bound.Min {
		return bound.Min
	}
	if value > bound.Max {
		return bound.Max
	}
	return value
}

// #endregion checks
