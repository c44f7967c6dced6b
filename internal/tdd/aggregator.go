// Package tdd computes total-daily-dose statistics over trailing windows.
package tdd

import (
	"time"

	"github.com/SimonXuku/tsunami/internal/treatments"
)

// #region window

// Window is a derived total-daily-dose value. Valid for the computing
// cycle only; never reused across cycles.
type Window struct {
	TotalAmount      float64 // units of insulin
	Carbs            float64 // grams
	AllDaysHaveCarbs bool
}

// #endregion window

// #region aggregator

// Aggregator computes TDD windows from dose history.
type Aggregator struct {
	history treatments.History
}

// NewAggregator wires an aggregator to its dose history.
func NewAggregator(history treatments.History) *Aggregator {
	return &Aggregator{history: history}
}

// Calculate averages full-day dose totals over the trailing `days` calendar
// days ending at the midnight before now. Returns nil when a day has no
// entries and allowMissingDays is false, or when no day has data. Absence
// is a normal outcome; the caller falls back.
func (a *Aggregator) Calculate(now time.Time, days int, allowMissingDays bool) *Window {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var total, carbs float64
	counted := 0
	allCarbs := true

	for i := 1; i <= days; i++ {
		dayStart := midnight.AddDate(0, 0, -i)
		dayEnd := dayStart.AddDate(0, 0, 1)
		entries := a.history.Query(dayStart, dayEnd)
		if len(entries) == 0 {
			if !allowMissingDays {
				return nil
			}
			continue
		}
		var dayInsulin, dayCarbs float64
		for _, e := range entries {
			dayInsulin += e.Insulin()
			dayCarbs += e.Carbs
		}
		total += dayInsulin
		carbs += dayCarbs
		if dayCarbs == 0 {
			allCarbs = false
		}
		counted++
	}

	if counted == 0 {
		return nil
	}
	return &Window{
		TotalAmount:      total / float64(counted),
		Carbs:            carbs / float64(counted),
		AllDaysHaveCarbs: allCarbs,
	}
}

// CalculateDaily totals doses in the wall-clock-relative window
// [now+fromHourOffset, now+toHourOffset). Offsets are hours, usually
// negative. Returns nil when the window holds no entries.
func (a *Aggregator) CalculateDaily(now time.Time, fromHourOffset, toHourOffset int) *Window {
	from := now.Add(time.Duration(fromHourOffset) * time.Hour)
	to := now.Add(time.Duration(toHourOffset) * time.Hour)

	entries := a.history.Query(from, to)
	if len(entries) == 0 {
		return nil
	}

	var total, carbs float64
	for _, e := range entries {
		total += e.Insulin()
		carbs += e.Carbs
	}
	return &Window{TotalAmount: total, Carbs: carbs, AllDaysHaveCarbs: carbs > 0}
}

// #endregion aggregator
