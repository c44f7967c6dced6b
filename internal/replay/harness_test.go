package replay

import (
	"testing"
	"time"

	"github.com/SimonXuku/tsunami/internal/config"
	"github.com/SimonXuku/tsunami/internal/mode"
)

var replayStart = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testFixture() *Fixture {
	prefs := config.Default()
	prefs.Enabled = true
	return &Fixture{
		Description: "two plain cycles and one without glucose",
		Preferences: prefs,
		Profile: FixtureProfile{
			DIAHours:      7,
			CarbRatio:     10,
			ISF:           50,
			CurrentBasal:  1.0,
			MaxDailyBasal: 1.5,
			TargetLow:     90,
			TargetHigh:    110,
			Percentage:    100,
		},
		Doses: []FixtureDose{
			{At: replayStart.Add(-3 * time.Hour), BolusAmount: 2},
		},
		Cycles: []FixtureCycle{
			{At: replayStart, Glucose: &FixtureGlucose{Glucose: 160, ShortAvgDelta: 3}},
			{At: replayStart.Add(5 * time.Minute), Glucose: &FixtureGlucose{Glucose: 165, ShortAvgDelta: 2}},
			{At: replayStart.Add(10 * time.Minute)},
		},
	}
}

func TestReplayOutcomes(t *testing.T) {
	results, err := Replay(testFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].Outcome != "recommendation" || results[1].Outcome != "recommendation" {
		t.Errorf("cycles with glucose: %+v %+v", results[0], results[1])
	}
	if results[2].Outcome != "aborted" {
		t.Errorf("cycle without glucose: %+v", results[2])
	}
}

func TestReplayDeterministic(t *testing.T) {
	a, err := Replay(testFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	b, err := Replay(testFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	for i := range a {
		if a[i].Outcome != b[i].Outcome || a[i].Mode != b[i].Mode {
			t.Errorf("cycle %d differs: %+v vs %+v", i, a[i], b[i])
		}
		if (a[i].Rate == nil) != (b[i].Rate == nil) || (a[i].Rate != nil && *a[i].Rate != *b[i].Rate) {
			t.Errorf("cycle %d rate differs: %v vs %v", i, a[i].Rate, b[i].Rate)
		}
	}
}

func TestReplayOverrideApplies(t *testing.T) {
	f := testFixture()
	f.Overrides = []FixtureOverride{
		{Mode: "tsunami", From: replayStart, Until: replayStart.Add(time.Hour)},
	}
	results, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].Mode != mode.Tsunami {
		t.Errorf("mode = %v, want Tsunami under override", results[0].Mode)
	}
}

func TestCompareFlagsMismatch(t *testing.T) {
	results, err := Replay(testFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	ok := Compare(results, []FixtureExpected{
		{At: replayStart, Outcome: "recommendation", Mode: "default"},
		{At: replayStart.Add(10 * time.Minute), Outcome: "aborted", Reason: "no glucose status"},
	})
	if len(ok) != 0 {
		t.Errorf("unexpected mismatches: %v", ok)
	}

	bad := Compare(results, []FixtureExpected{
		{At: replayStart, Outcome: "aborted"},
	})
	if len(bad) != 1 {
		t.Errorf("mismatches = %v, want exactly one", bad)
	}
}

func TestSummarize(t *testing.T) {
	results, err := Replay(testFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	s := Summarize(results)
	if s.TotalCycles != 3 || s.Recommendations != 2 || s.Aborted != 1 {
		t.Errorf("summary = %+v", s)
	}
}
