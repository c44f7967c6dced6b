// Package constraints implements the ordered safety chain applied to every
// dosing proposal. Each rule may only tighten a value, never relax it, and
// every tightening is recorded so the decision trace shows which rule won.
package constraints

import (
	"fmt"
	"math"

	"github.com/SimonXuku/tsunami/internal/config"
	"github.com/SimonXuku/tsunami/internal/hardlimits"
)

// #region value

// Record documents one constraint application on a value.
type Record struct {
	Rule     string
	Previous string
	New      string
	Note     string
}

// Value carries a constrained quantity together with the ordered list of
// rules that changed it. A fresh Value is created per cycle; it is never
// reused across cycles.
type Value[T any] struct {
	value   T
	records []Record
}

// NewValue starts a constraint chain at the given unconstrained value.
func NewValue[T any](v T) *Value[T] {
	return &Value[T]{value: v}
}

// Value returns the current constrained value.
func (v *Value[T]) Value() T { return v.value }

// Set applies a tightening from the named rule, recording the transition.
func (v *Value[T]) Set(value T, rule, note string) {
	v.records = append(v.records, Record{
		Rule:     rule,
		Previous: fmt.Sprintf("%v", v.value),
		New:      fmt.Sprintf("%v", value),
		Note:     note,
	})
	v.value = value
}

// Records returns the applied constraint records in application order.
func (v *Value[T]) Records() []Record { return v.records }

// #endregion value

// #region checker

// Profile carries the pump-profile scalars the constraint rules consult.
type Profile struct {
	CurrentBasal  float64 // U/h
	MaxDailyBasal float64 // U/h, largest scheduled basal rate
	Percentage    int     // profile scaling percent
}

// Checker applies the dosing constraint chain for one plugin instance.
type Checker struct {
	prefs  *config.Preferences
	limits hardlimits.Limits
}

// NewChecker builds a checker over the given preferences and hard limits.
func NewChecker(prefs *config.Preferences, limits hardlimits.Limits) *Checker {
	return &Checker{prefs: prefs, limits: limits}
}

// MaxIOB tightens the IOB ceiling to the smaller of the user preference and
// the hard SMB ceiling.
func (c *Checker) MaxIOB(v *Value[float64]) *Value[float64] {
	if c.prefs.MaxIOB < v.Value() {
		v.Set(c.prefs.MaxIOB, "maxIOB", "limited by preference")
	}
	if c.limits.MaxIOBForSMB < v.Value() {
		v.Set(c.limits.MaxIOBForSMB, "maxIOB", "limited by hard ceiling")
	}
	return v
}

// MaxBasal tightens the basal-rate ceiling. The preference ceiling is first
// raised to the max scheduled daily basal when it sits below it, then the
// current-basal multiplier and daily multiplier caps are applied; the
// smallest surviving rate wins. Multiplier-derived caps are floored to two
// decimals so the pump never receives an unrepresentable rate.
func (c *Checker) MaxBasal(v *Value[float64], profile Profile) *Value[float64] {
	maxBasal := c.prefs.MaxBasal
	if maxBasal < profile.MaxDailyBasal {
		maxBasal = profile.MaxDailyBasal
		v.Set(maxBasal, "maxBasal", "raised to max daily basal")
	}
	if maxBasal < v.Value() {
		v.Set(maxBasal, "maxBasal", "limited by preference")
	}
	currentCap := floorTo2(profile.CurrentBasal * c.prefs.CurrentBasalMultiplier)
	if currentCap < v.Value() {
		v.Set(currentCap, "maxBasal", "limited by current basal multiplier")
	}
	dailyCap := floorTo2(profile.MaxDailyBasal * c.prefs.MaxDailyMultiplier)
	if dailyCap < v.Value() {
		v.Set(dailyCap, "maxBasal", "limited by max daily multiplier")
	}
	return v
}

// SMBContext carries the per-cycle facts the SMB enablement rules consult.
type SMBContext struct {
	CarbsOnBoard   bool // carbs announced within the insulin model's DIA
	RecentCarbs    bool // carbs announced within the last six hours
	LowTempTarget  bool // active temp target below the profile band
	HighTempTarget bool // active temp target above the profile band
}

// SMBEnabled gates super-micro-bolus delivery. Beyond the plugin and SMB
// flags, delivery needs at least one enabling condition: always-on, carbs on
// board, recent carbs, or a matching temp target.
func (c *Checker) SMBEnabled(v *Value[bool], ctx SMBContext) *Value[bool] {
	if !c.prefs.Enabled && v.Value() {
		v.Set(false, "smb", "plugin disabled")
	}
	if !c.prefs.UseSMB && v.Value() {
		v.Set(false, "smb", "SMB disabled in preferences")
	}
	if !v.Value() {
		return v
	}
	switch {
	case c.prefs.SMBAlways:
	case c.prefs.SMBWithCOB && ctx.CarbsOnBoard:
	case c.prefs.SMBAfterCarbs && ctx.RecentCarbs:
	case c.prefs.SMBWithLowTT && ctx.LowTempTarget:
	case c.prefs.SMBWithHighTT && ctx.HighTempTarget:
	default:
		v.Set(false, "smb", "no enabling condition met")
	}
	return v
}

// MaxSMB tightens the single-bolus ceiling to the basal equivalent of the
// configured minutes, using the UAM window when the bolus covers an
// unannounced meal. The cap is floored to two decimals like a basal rate.
func (c *Checker) MaxSMB(v *Value[float64], profile Profile, uam bool) *Value[float64] {
	minutes := c.prefs.MaxSMBBasalMin
	rule := "maxSMB"
	if uam {
		minutes = c.prefs.MaxUAMSMBBasalMin
		rule = "maxUAMSMB"
	}
	ceiling := floorTo2(profile.CurrentBasal * float64(minutes) / 60)
	if ceiling < v.Value() {
		v.Set(ceiling, rule, fmt.Sprintf("limited to %d min of basal", minutes))
	}
	return v
}

// UAMEnabled gates unannounced-meal detection.
func (c *Checker) UAMEnabled(v *Value[bool]) *Value[bool] {
	if !c.prefs.Enabled && v.Value() {
		v.Set(false, "uam", "plugin disabled")
	}
	if !c.prefs.UseUAM && v.Value() {
		v.Set(false, "uam", "UAM disabled in preferences")
	}
	return v
}

// AutosensEnabled gates sensitivity adjustment. With dynamic sensitivity the
// dedicated adjust flag rules; otherwise the classic autosens flag does.
func (c *Checker) AutosensEnabled(v *Value[bool]) *Value[bool] {
	if !c.prefs.Enabled && v.Value() {
		v.Set(false, "autosens", "plugin disabled")
	}
	if c.prefs.UseDynamicSensitivity {
		if !c.prefs.AdjustSensitivity && v.Value() {
			v.Set(false, "autosens", "dynamic sensitivity adjustment disabled")
		}
		return v
	}
	if !c.prefs.UseAutosens && v.Value() {
		v.Set(false, "autosens", "autosens disabled in preferences")
	}
	return v
}

func floorTo2(v float64) float64 {
	return math.Floor(v*100) / 100
}

// #endregion checker
