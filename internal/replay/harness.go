// Package replay runs recorded dosing cycles through a fully in-memory
// engine and compares each outcome against the fixture's expectations.
package replay

import (
	"fmt"
	"strings"
	"time"

	"github.com/SimonXuku/tsunami/internal/engine"
	"github.com/SimonXuku/tsunami/internal/glucose"
	"github.com/SimonXuku/tsunami/internal/hardlimits"
	"github.com/SimonXuku/tsunami/internal/logging"
	"github.com/SimonXuku/tsunami/internal/mode"
	"github.com/SimonXuku/tsunami/internal/store"
	"github.com/SimonXuku/tsunami/internal/treatments"
)

// #region types

// Result captures the outcome of replaying one cycle.
type Result struct {
	At      time.Time
	Outcome string // "recommendation" | "aborted"
	Reason  string // abort reason, empty on success
	Mode    mode.Mode
	Rate    *float64
	SMB     *float64
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalCycles     int
	Recommendations int
	Aborted         int
}

// #endregion types

// #region collaborators

type memProfiles struct{ p *engine.Profile }

func (m memProfiles) Active() *engine.Profile { return m.p }

// memGlucose is mutated between cycles so the engine sees the recorded
// status for the cycle being replayed.
type memGlucose struct{ status *glucose.Status }

func (m *memGlucose) Current() *glucose.Status { return m.status }

type memHistory []treatments.Entry

func (h memHistory) Query(from, to time.Time) []treatments.Entry {
	var out []treatments.Entry
	for _, e := range h {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out
}

type memOverride struct {
	mode  mode.Mode
	from  time.Time
	until time.Time
}

type memOverrides []memOverride

func (o memOverrides) ActiveAt(ts time.Time) *mode.Mode {
	for i := len(o) - 1; i >= 0; i-- {
		if !ts.Before(o[i].from) && ts.Before(o[i].until) {
			m := o[i].mode
			return &m
		}
	}
	return nil
}

type memTempTargets []FixtureTempTarget

func (t memTempTargets) TempTargetAt(ts time.Time) (*store.TempTarget, error) {
	for i := len(t) - 1; i >= 0; i-- {
		if !ts.Before(t[i].From) && ts.Before(t[i].Until) {
			return &store.TempTarget{Low: t[i].Low, High: t[i].High, StartsAt: t[i].From, EndsAt: t[i].Until}, nil
		}
	}
	return nil, nil
}

// memRecs is both the recommendation sink and the replay source feeding the
// sensitivity resolver's stored-recommendation path.
type memRecs struct{ saved []store.Recommendation }

func (m *memRecs) SaveRecommendation(rec store.Recommendation) error {
	m.saved = append(m.saved, rec)
	return nil
}

func (m *memRecs) NearbySensitivity(ts time.Time) *float64 {
	var best *store.Recommendation
	for i := range m.saved {
		rec := &m.saved[i]
		d := rec.CreatedAt.Sub(ts)
		if d < 0 {
			d = -d
		}
		if d > 30*time.Minute {
			continue
		}
		if best == nil || rec.CreatedAt.After(best.CreatedAt) {
			best = rec
		}
	}
	if best == nil {
		return nil
	}
	return best.VariableSens
}

type noAutosens struct{}

func (noAutosens) Ratio() *float64 { return nil }

// #endregion collaborators

// #region replay

// Replay runs every cycle of the fixture through a fresh in-memory engine.
func Replay(f *Fixture) ([]Result, error) {
	history := make(memHistory, 0, len(f.Doses))
	for _, d := range f.Doses {
		history = append(history, treatments.Entry{
			Timestamp:   d.At,
			BasalRate:   d.BasalRate,
			BolusAmount: d.BolusAmount,
			Carbs:       d.Carbs,
		})
	}

	overrides := make(memOverrides, 0, len(f.Overrides))
	for _, o := range f.Overrides {
		m, err := ParseMode(o.Mode)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, memOverride{mode: m, from: o.From, until: o.Until})
	}

	gluc := &memGlucose{}
	recs := &memRecs{}
	eng := engine.New(engine.Deps{
		Prefs:       f.Preferences,
		Limits:      hardlimits.DefaultLimits(),
		Profiles:    memProfiles{p: f.Profile.ToProfile()},
		Glucose:     gluc,
		History:     history,
		Autosens:    noAutosens{},
		TempTargets: memTempTargets(f.TempTargets),
		Recs:        recs,
		Overrides:   overrides,
		Replays:     recs,
		Model:       f.Profile.Model(),
		Dose:        engine.ReferenceDosing,
	})

	results := make([]Result, 0, len(f.Cycles))
	for _, cycle := range f.Cycles {
		if cycle.Glucose != nil {
			gluc.status = &glucose.Status{
				Glucose:       cycle.Glucose.Glucose,
				ShortAvgDelta: cycle.Glucose.ShortAvgDelta,
				Timestamp:     cycle.At,
			}
		} else {
			gluc.status = nil
		}

		rec, err := eng.RunCycle(cycle.At)
		if err != nil {
			results = append(results, Result{At: cycle.At, Outcome: "aborted", Reason: err.Error()})
			continue
		}
		results = append(results, Result{
			At:      cycle.At,
			Outcome: "recommendation",
			Mode:    rec.Mode,
			Rate:    rec.Rate,
			SMB:     rec.SMB,
		})
	}
	s := Summarize(results)
	log := logging.Component(logging.TagReplay)
	log.Debug().
		Int("cycles", s.TotalCycles).
		Int("recommendations", s.Recommendations).
		Int("aborted", s.Aborted).
		Msg("fixture replayed")
	return results, nil
}

// Compare checks results against the fixture's expectations, returning one
// message per mismatch. Expectations are matched by cycle time.
func Compare(results []Result, expected []FixtureExpected) []string {
	byTime := make(map[time.Time]Result, len(results))
	for _, r := range results {
		byTime[r.At] = r
	}

	var mismatches []string
	for _, exp := range expected {
		r, ok := byTime[exp.At]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: no cycle replayed", exp.At.Format(time.RFC3339)))
			continue
		}
		if r.Outcome != exp.Outcome {
			mismatches = append(mismatches, fmt.Sprintf("%s: outcome %s, want %s", exp.At.Format(time.RFC3339), r.Outcome, exp.Outcome))
			continue
		}
		if exp.Reason != "" && !strings.Contains(r.Reason, exp.Reason) {
			mismatches = append(mismatches, fmt.Sprintf("%s: reason %q, want substring %q", exp.At.Format(time.RFC3339), r.Reason, exp.Reason))
		}
		if exp.Mode != "" {
			want, err := ParseMode(exp.Mode)
			if err != nil {
				mismatches = append(mismatches, err.Error())
				continue
			}
			if r.Mode != want {
				mismatches = append(mismatches, fmt.Sprintf("%s: mode %s, want %s", exp.At.Format(time.RFC3339), r.Mode, want))
			}
		}
	}
	return mismatches
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{TotalCycles: len(results)}
	for _, r := range results {
		switch r.Outcome {
		case "recommendation":
			s.Recommendations++
		case "aborted":
			s.Aborted++
		}
	}
	return s
}

// #endregion replay
