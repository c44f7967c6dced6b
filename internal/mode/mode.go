// Package mode classifies each cycle into an operating regime and bundles
// the regime's dosing parameters.
package mode

import (
	"math"
	"time"

	"github.com/SimonXuku/tsunami/internal/config"
)

// #region mode

// Mode is the operating regime for a cycle. Recomputed fresh every cycle:
// a classification, not persisted machine state.
type Mode int

const (
	Default Mode = 0
	Wave    Mode = 1
	Tsunami Mode = 2
)

func (m Mode) String() string {
	switch m {
	case Wave:
		return "wave"
	case Tsunami:
		return "tsunami"
	default:
		return "default"
	}
}

// #endregion mode

// #region params

// Params is the mode's parameter bundle, selected once per cycle and passed
// downstream. DeltaReductionPCT is fixed per regime: 1.0 for Tsunami, 0.5
// for Wave, 0.0 for Default.
type Params struct {
	Mode              Mode
	SMBCap            float64
	InsulinReqPCT     float64 // fraction, e.g. 0.65
	ActivityTarget    float64 // fraction
	DeltaScore        float64
	DeltaReductionPCT float64
}

// #endregion params

// #region override-store

// OverrideStore looks up a persisted manual mode override valid at a
// timestamp. Nil means no override is active.
type OverrideStore interface {
	ActiveAt(ts time.Time) *Mode
}

// #endregion override-store

// #region selector

// Selector resolves the operating mode and its parameters per cycle.
type Selector struct {
	prefs     config.Preferences
	overrides OverrideStore
}

// NewSelector wires a selector to its preference set and override store.
func NewSelector(prefs config.Preferences, overrides OverrideStore) *Selector {
	return &Selector{prefs: prefs, overrides: overrides}
}

// Select classifies the cycle: a manual override wins verbatim, else the
// wave time-of-day window decides between Wave and Default.
func (s *Selector) Select(now time.Time, profilePercentage int, shortAvgDelta float64) Params {
	m := s.classify(now)
	return s.params(m, profilePercentage, shortAvgDelta)
}

func (s *Selector) classify(now time.Time) Mode {
	if override := s.overrides.ActiveAt(now); override != nil {
		return *override
	}

	if !s.prefs.EnableWave {
		return Default
	}

	waveStart := s.prefs.WaveStart
	waveEnd := s.prefs.WaveEnd
	referenceTimer := hourOfDay(now)

	// A window wrapping midnight is shifted so it becomes non-wrapping:
	// start moves to 0, the end becomes the window's total duration, and
	// the reference clock is shifted the same way.
	if waveEnd < waveStart {
		if referenceTimer < waveStart {
			referenceTimer -= waveStart - 24.0
		} else {
			referenceTimer -= waveStart
		}
		waveEnd = 24.0 - (waveStart - waveEnd)
		waveStart = 0.0
	}

	if referenceTimer >= waveStart && referenceTimer <= waveEnd {
		return Wave
	}
	return Default
}

func (s *Selector) params(m Mode, profilePercentage int, shortAvgDelta float64) Params {
	switch m {
	case Tsunami:
		cap := s.prefs.TsunamiSMBCap
		if s.prefs.TsunamiSMBCapScaling {
			cap = scaleCap(cap, profilePercentage)
		}
		return Params{
			Mode:              Tsunami,
			SMBCap:            cap,
			InsulinReqPCT:     float64(s.prefs.TsunamiInsulinReqPct) / 100.0,
			ActivityTarget:    float64(s.prefs.TsunamiActivityTarget) / 100.0,
			DeltaScore:        deltaScore(shortAvgDelta, s.prefs.TsunamiDeltaScoreDivisor),
			DeltaReductionPCT: 1.0,
		}
	case Wave:
		cap := s.prefs.WaveSMBCap
		if s.prefs.WaveSMBCapScaling {
			cap = scaleCap(cap, profilePercentage)
		}
		return Params{
			Mode:              Wave,
			SMBCap:            cap,
			InsulinReqPCT:     float64(s.prefs.WaveInsulinReqPct) / 100.0,
			ActivityTarget:    float64(s.prefs.WaveActivityTarget) / 100.0,
			DeltaScore:        deltaScore(shortAvgDelta, s.prefs.WaveDeltaScoreDivisor),
			DeltaReductionPCT: 0.5,
		}
	default:
		return Params{Mode: Default, DeltaScore: 0.5}
	}
}

// #endregion selector

// #region helpers

// scaleCap grows and shrinks the SMB cap with the profile percentage,
// capped at 130%.
func scaleCap(cap float64, profilePercentage int) float64 {
	return cap * math.Min(float64(profilePercentage), 130.0) / 100.0
}

// deltaScore is 1.0 (full force) when the short average delta equals the
// divisor, rounded to 0.01.
func deltaScore(shortAvgDelta float64, divisor int) float64 {
	if divisor == 0 {
		return 0
	}
	return math.Round(shortAvgDelta/float64(divisor)*100) / 100
}

func hourOfDay(now time.Time) float64 {
	return float64(now.Hour()) + float64(now.Minute())/60.0 + float64(now.Second())/3600.0
}

// #endregion helpers
