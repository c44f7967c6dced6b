package insulin

import (
	"math"
	"testing"
	"time"

	"github.com/SimonXuku/tsunami/internal/treatments"
)

func TestActivityZeroOutsideCurve(t *testing.T) {
	m := RapidActing()
	if a := m.Activity(0, 1); a != 0 {
		t.Errorf("activity at t=0 should be 0, got %v", a)
	}
	if a := m.Activity(m.DIA, 1); a != 0 {
		t.Errorf("activity at DIA should be 0, got %v", a)
	}
	if a := m.Activity(-5, 1); a != 0 {
		t.Errorf("activity before dose should be 0, got %v", a)
	}
}

func TestActivityPeaksNearPeakTime(t *testing.T) {
	m := RapidActing()
	atPeak := m.Activity(m.Peak, 1)
	before := m.Activity(m.Peak-30, 1)
	after := m.Activity(m.Peak+60, 1)
	if atPeak <= before || atPeak <= after {
		t.Errorf("activity should peak near %v min: before=%v peak=%v after=%v",
			m.Peak, before, atPeak, after)
	}
}

func TestActivityIntegratesToDose(t *testing.T) {
	m := RapidActing()
	dose := 2.5
	var sum float64
	for minute := 0.5; minute < m.DIA; minute++ {
		sum += m.Activity(minute, dose)
	}
	if math.Abs(sum-dose) > 0.05 {
		t.Errorf("activity curve should integrate to ~%v over DIA, got %v", dose, sum)
	}
}

func TestRemainingMonotonic(t *testing.T) {
	m := UltraRapid()
	prev := m.Remaining(0)
	if prev != 1 {
		t.Fatalf("remaining at t=0 should be 1, got %v", prev)
	}
	for minute := 10.0; minute <= m.DIA; minute += 10 {
		r := m.Remaining(minute)
		if r > prev {
			t.Fatalf("remaining increased at %v min: %v -> %v", minute, prev, r)
		}
		prev = r
	}
	if prev != 0 {
		t.Errorf("remaining at DIA should be 0, got %v", prev)
	}
}

type fixedHistory []treatments.Entry

func (h fixedHistory) Query(from, to time.Time) []treatments.Entry {
	var out []treatments.Entry
	for _, e := range h {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out
}

func TestCalculatorIgnoresDosesAfterCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hist := fixedHistory{
		{Timestamp: now.Add(-60 * time.Minute), BolusAmount: 1.0},
		{Timestamp: now.Add(30 * time.Minute), BolusAmount: 5.0}, // future dose
	}
	calc := NewCalculator(hist, RapidActing())

	// Sampling one hour ahead must not see the future dose.
	withCutoff := calc.ActivityAt(now.Add(60*time.Minute), now)
	want := RapidActing().Activity(120, 1.0)
	if math.Abs(withCutoff-want) > 1e-9 {
		t.Errorf("future dose leaked into prediction: got %v want %v", withCutoff, want)
	}
}

func TestCalculatorIOB(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hist := fixedHistory{
		{Timestamp: now.Add(-30 * time.Minute), BolusAmount: 2.0},
	}
	calc := NewCalculator(hist, RapidActing())

	iob := calc.IOBAt(now)
	if iob <= 0 || iob > 2.0 {
		t.Errorf("IOB 30 min after 2U bolus should be in (0, 2], got %v", iob)
	}
}
