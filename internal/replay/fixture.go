package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/SimonXuku/tsunami/internal/config"
	"github.com/SimonXuku/tsunami/internal/engine"
	"github.com/SimonXuku/tsunami/internal/insulin"
	"github.com/SimonXuku/tsunami/internal/mode"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string             `json:"description"`
	Preferences config.Preferences `json:"preferences"`
	Profile     FixtureProfile     `json:"profile"`
	Doses       []FixtureDose      `json:"doses"`
	Overrides   []FixtureOverride  `json:"overrides"`
	TempTargets []FixtureTempTarget `json:"temp_targets"`
	Cycles      []FixtureCycle     `json:"cycles"`
	Expected    []FixtureExpected  `json:"expected"`
}

// FixtureProfile is the JSON-serializable pump profile.
type FixtureProfile struct {
	DIAHours      float64 `json:"dia_hours"`
	CarbRatio     float64 `json:"carb_ratio"`
	ISF           float64 `json:"isf"`
	CurrentBasal  float64 `json:"current_basal"`
	MaxDailyBasal float64 `json:"max_daily_basal"`
	TargetLow     float64 `json:"target_low"`
	TargetHigh    float64 `json:"target_high"`
	Percentage    int     `json:"percentage"`
	InsulinModel  string  `json:"insulin_model"` // "rapid" | "ultra"
}

// FixtureDose is one historical treatment record.
type FixtureDose struct {
	At          time.Time `json:"at"`
	BasalRate   float64   `json:"basal_rate"`
	BolusAmount float64   `json:"bolus_amount"`
	Carbs       float64   `json:"carbs"`
}

// FixtureOverride is a manual mode override valid for [From, Until).
type FixtureOverride struct {
	Mode  string    `json:"mode"`
	From  time.Time `json:"from"`
	Until time.Time `json:"until"`
}

// FixtureTempTarget is a temporary glucose target band valid for [From, Until).
type FixtureTempTarget struct {
	Low   float64   `json:"low"`
	High  float64   `json:"high"`
	From  time.Time `json:"from"`
	Until time.Time `json:"until"`
}

// FixtureCycle is one recorded cycle trigger. Glucose nil replays a cycle
// with no glucose status available.
type FixtureCycle struct {
	At      time.Time       `json:"at"`
	Glucose *FixtureGlucose `json:"glucose"`
}

// FixtureGlucose mirrors glucose.Status without the timestamp, which is
// taken from the cycle trigger.
type FixtureGlucose struct {
	Glucose       float64 `json:"glucose"`
	ShortAvgDelta float64 `json:"short_avg_delta"`
}

// FixtureExpected is the recorded outcome for the cycle at At.
type FixtureExpected struct {
	At      time.Time `json:"at"`
	Outcome string    `json:"outcome"` // "recommendation" | "aborted"
	Reason  string    `json:"reason"`  // substring match on abort reason
	Mode    string    `json:"mode"`    // recommendation mode, empty = any
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToProfile converts a FixtureProfile to the engine's domain profile.
func (p *FixtureProfile) ToProfile() *engine.Profile {
	return &engine.Profile{
		DIAHours:      p.DIAHours,
		CarbRatio:     p.CarbRatio,
		ISF:           p.ISF,
		CurrentBasal:  p.CurrentBasal,
		MaxDailyBasal: p.MaxDailyBasal,
		TargetLow:     p.TargetLow,
		TargetHigh:    p.TargetHigh,
		Percentage:    p.Percentage,
	}
}

// Model resolves the fixture's insulin model name, defaulting to rapid.
func (p *FixtureProfile) Model() insulin.Model {
	if strings.EqualFold(p.InsulinModel, "ultra") {
		return insulin.UltraRapid()
	}
	return insulin.RapidActing()
}

// ParseMode maps a fixture mode name to the domain enum.
func ParseMode(name string) (mode.Mode, error) {
	for _, m := range []mode.Mode{mode.Default, mode.Wave, mode.Tsunami} {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	return mode.Default, fmt.Errorf("unknown mode %q", name)
}

// #endregion fixture-loader
