package insulin

import (
	"math"
	"time"

	"github.com/SimonXuku/tsunami/internal/treatments"
)

// #region calculator

// Calculator sums insulin activity and insulin-on-board over dose history
// through a pharmacokinetic model.
type Calculator struct {
	history treatments.History
	model   Model
}

// NewCalculator wires a calculator to its dose history and model.
func NewCalculator(history treatments.History, model Model) *Calculator {
	return &Calculator{history: history, model: model}
}

// Model returns the calculator's insulin model.
func (c *Calculator) Model() Model { return c.model }

// ActivityAt returns total insulin activity at the sample instant. Only
// doses delivered up to cutoff contribute; sample instants may lie in the
// future relative to cutoff (prediction) or in the past (history).
func (c *Calculator) ActivityAt(at, cutoff time.Time) float64 {
	from := at.Add(-time.Duration(c.model.DIAMinutes()) * time.Minute)
	to := cutoff
	if at.Before(cutoff) {
		to = at
	}
	if !to.After(from) {
		return 0
	}

	var total float64
	for _, e := range c.history.Query(from, to) {
		elapsed := at.Sub(e.Timestamp).Minutes()
		total += c.model.Activity(elapsed, e.Insulin())
	}
	return total
}

// IOBAt returns units still on board at the given instant. Requires the
// model to expose a Remaining curve; other models report zero.
func (c *Calculator) IOBAt(at time.Time) float64 {
	exp, ok := c.model.(Exponential)
	if !ok {
		return 0
	}

	from := at.Add(-time.Duration(c.model.DIAMinutes()) * time.Minute)
	var iob float64
	for _, e := range c.history.Query(from, at) {
		elapsed := at.Sub(e.Timestamp).Minutes()
		iob += e.Insulin() * exp.Remaining(elapsed)
	}
	return math.Round(iob*100) / 100
}

// #endregion calculator
