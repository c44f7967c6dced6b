// Package treatments defines the dose-history records the engine reads.
package treatments

import "time"

// #region entry

// Entry is one delivered treatment. Append-only from the engine's
// perspective; the engine only ever reads time ranges.
type Entry struct {
	Timestamp   time.Time
	BasalRate   float64 // U/h delivered as basal during this slot
	BolusAmount float64 // U delivered as bolus (incl. SMB)
	Carbs       float64 // g announced
}

// Insulin returns the total units this entry delivered, treating the basal
// rate as a 5-minute slot.
func (e Entry) Insulin() float64 {
	return e.BolusAmount + e.BasalRate*5.0/60.0
}

// #endregion entry

// #region history

// History abstracts the dose-history repository.
type History interface {
	// Query returns entries with Timestamp in [from, to), oldest first.
	Query(from, to time.Time) []Entry
}

// #endregion history
