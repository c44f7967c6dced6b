package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/SimonXuku/tsunami/internal/mode"
	"github.com/SimonXuku/tsunami/internal/treatments"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "loop.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func f64(v float64) *float64 { return &v }

func TestSaveAndFindRecommendation(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	rec := Recommendation{
		ID:           "rec-1",
		CreatedAt:    now,
		Glucose:      142,
		Rate:         f64(1.25),
		SMB:          f64(0.4),
		Mode:         mode.Tsunami,
		VariableSens: f64(42.3),
		Trace:        "test trace",
	}
	if err := s.SaveRecommendation(rec); err != nil {
		t.Fatalf("SaveRecommendation: %v", err)
	}

	got, err := s.RecommendationNear(now.Add(10*time.Minute), 30*time.Minute)
	if err != nil {
		t.Fatalf("RecommendationNear: %v", err)
	}
	if got == nil {
		t.Fatal("RecommendationNear: want a record")
	}
	if got.ID != "rec-1" || got.Mode != mode.Tsunami {
		t.Errorf("got %+v", got)
	}
	if got.Rate == nil || *got.Rate != 1.25 {
		t.Errorf("rate = %v, want 1.25", got.Rate)
	}
	if got.VariableSens == nil || *got.VariableSens != 42.3 {
		t.Errorf("variableSens = %v, want 42.3", got.VariableSens)
	}
	if got.Glucose != 142 {
		t.Errorf("glucose = %v, want 142", got.Glucose)
	}
}

func TestRecommendationNearOutsideWindow(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	if err := s.SaveRecommendation(Recommendation{ID: "old", CreatedAt: now.Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("SaveRecommendation: %v", err)
	}
	got, err := s.RecommendationNear(now, 30*time.Minute)
	if err != nil {
		t.Fatalf("RecommendationNear: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil outside window", got)
	}
}

func TestRecommendationNearPicksNewest(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := Recommendation{ID: id, CreatedAt: now.Add(time.Duration(i) * 5 * time.Minute)}
		if err := s.SaveRecommendation(rec); err != nil {
			t.Fatalf("SaveRecommendation: %v", err)
		}
	}
	got, err := s.RecommendationNear(now.Add(10*time.Minute), 30*time.Minute)
	if err != nil {
		t.Fatalf("RecommendationNear: %v", err)
	}
	if got == nil || got.ID != "c" {
		t.Errorf("got %+v, want newest (c)", got)
	}
}

func TestRecentRecommendationsNilFields(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	if err := s.SaveRecommendation(Recommendation{ID: "bare", CreatedAt: now, Mode: mode.Default}); err != nil {
		t.Fatalf("SaveRecommendation: %v", err)
	}
	recs, err := s.RecentRecommendations(10)
	if err != nil {
		t.Fatalf("RecentRecommendations: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len = %d, want 1", len(recs))
	}
	if recs[0].Rate != nil || recs[0].SMB != nil || recs[0].VariableSens != nil {
		t.Errorf("nil fields not preserved: %+v", recs[0])
	}
}

func TestRehydrateEntries(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	recs := []Recommendation{
		{ID: "with-sens", CreatedAt: now.Add(-time.Hour), Glucose: 142, VariableSens: f64(48.7)},
		{ID: "no-sens", CreatedAt: now.Add(-30 * time.Minute), Glucose: 150},
		{ID: "too-old", CreatedAt: now.Add(-48 * time.Hour), Glucose: 120, VariableSens: f64(55)},
	}
	for _, rec := range recs {
		if err := s.SaveRecommendation(rec); err != nil {
			t.Fatalf("SaveRecommendation: %v", err)
		}
	}

	entries, err := s.RehydrateEntries(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("RehydrateEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1 (no-sens and too-old excluded)", len(entries))
	}
	e := entries[0]
	if e.Glucose != 142 || e.Sensitivity != 48.7 {
		t.Errorf("entry = %+v", e)
	}
	if !e.Timestamp.Equal(now.Add(-time.Hour)) {
		t.Errorf("timestamp = %v, want %v", e.Timestamp, now.Add(-time.Hour))
	}
}

func TestModeOverrideLifecycle(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := s.SaveModeOverride(mode.Wave, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("SaveModeOverride: %v", err)
	}

	got, err := s.ModeOverrideAt(now.Add(30 * time.Minute))
	if err != nil {
		t.Fatalf("ModeOverrideAt: %v", err)
	}
	if got == nil || *got != mode.Wave {
		t.Errorf("got %v, want Wave", got)
	}

	got, err = s.ModeOverrideAt(now.Add(time.Hour))
	if err != nil {
		t.Fatalf("ModeOverrideAt: %v", err)
	}
	if got != nil {
		t.Errorf("override active at end boundary, want expired")
	}
}

func TestNewestOverrideWins(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.SaveModeOverride(mode.Wave, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("SaveModeOverride: %v", err)
	}
	if err := s.SaveModeOverride(mode.Tsunami, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("SaveModeOverride: %v", err)
	}
	got, err := s.ModeOverrideAt(now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ModeOverrideAt: %v", err)
	}
	if got == nil || *got != mode.Tsunami {
		t.Errorf("got %v, want Tsunami (most recent)", got)
	}
}

func TestTempTargetAt(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.SaveTempTarget(130, 150, now, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("SaveTempTarget: %v", err)
	}
	tt, err := s.TempTargetAt(now.Add(time.Hour))
	if err != nil {
		t.Fatalf("TempTargetAt: %v", err)
	}
	if tt == nil || tt.Low != 130 || tt.High != 150 {
		t.Errorf("got %+v, want band 130-150", tt)
	}
	tt, err = s.TempTargetAt(now.Add(3 * time.Hour))
	if err != nil {
		t.Fatalf("TempTargetAt: %v", err)
	}
	if tt != nil {
		t.Errorf("expired target still active: %+v", tt)
	}
}

func TestDoseHistoryRoundTrip(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	entries := []treatments.Entry{
		{Timestamp: now.Add(-10 * time.Minute), BasalRate: 1.2},
		{Timestamp: now.Add(-5 * time.Minute), BolusAmount: 0.5, Carbs: 20},
	}
	for _, e := range entries {
		if err := s.AddDose(e); err != nil {
			t.Fatalf("AddDose: %v", err)
		}
	}

	got, err := s.Doses(now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Doses: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("doses not ordered oldest first")
	}
	if got[1].Carbs != 20 || got[1].BolusAmount != 0.5 {
		t.Errorf("second entry = %+v", got[1])
	}
}

func TestDoseHistoryAdapterWindow(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.AddDose(treatments.Entry{Timestamp: now, BolusAmount: 1}); err != nil {
		t.Fatalf("AddDose: %v", err)
	}
	h := NewDoseHistory(s)
	// the upper bound is exclusive
	if got := h.Query(now.Add(-time.Minute), now); len(got) != 0 {
		t.Errorf("entry at upper bound returned: %+v", got)
	}
	if got := h.Query(now, now.Add(time.Minute)); len(got) != 1 {
		t.Errorf("entry at lower bound missing, got %+v", got)
	}
}

func TestOverrideSourceNoOverride(t *testing.T) {
	s := testStore(t)
	src := NewOverrideSource(s)
	if m := src.ActiveAt(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)); m != nil {
		t.Errorf("ActiveAt on empty store = %v, want nil", m)
	}
}
