// Package glucose defines the glucose snapshot the engine consumes each cycle.
package glucose

import "time"

// #region status

// Status is a read-only glucose snapshot supplied once per cycle.
// The engine never mutates it.
type Status struct {
	Glucose       float64   // mg/dL
	ShortAvgDelta float64   // mg/dL change per 5 min, short moving average
	Timestamp     time.Time
}

// #endregion status

// #region provider

// Provider abstracts the CGM feed. Nil means no reading is available;
// the engine treats absence as a normal, dose-free outcome.
type Provider interface {
	Current() *Status
}

// #endregion provider
