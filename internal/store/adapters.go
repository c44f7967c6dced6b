package store

import (
	"fmt"
	"time"

	"github.com/SimonXuku/tsunami/internal/logging"
	"github.com/SimonXuku/tsunami/internal/mode"
	"github.com/SimonXuku/tsunami/internal/sensitivity"
	"github.com/SimonXuku/tsunami/internal/treatments"
)

// #region adapters

// OverrideSource adapts a Store to the mode selector's override lookup.
// Read errors are logged and treated as "no override": a broken database
// must not freeze the loop in a manual mode.
type OverrideSource struct {
	store *Store
}

// NewOverrideSource wraps a store for the mode selector.
func NewOverrideSource(s *Store) *OverrideSource {
	return &OverrideSource{store: s}
}

// ActiveAt implements mode.OverrideStore.
func (o *OverrideSource) ActiveAt(ts time.Time) *mode.Mode {
	m, err := o.store.ModeOverrideAt(ts)
	if err != nil {
		log := logging.Component(logging.TagStore)
		log.Warn().Err(err).Msg("override lookup failed")
		return nil
	}
	return m
}

// RecommendationReplay adapts a Store to the sensitivity resolver's replay
// lookup: the newest stored recommendation within half an hour of the
// timestamp supplies the sensitivity it already used.
type RecommendationReplay struct {
	store *Store
}

// NewRecommendationReplay wraps a store for the sensitivity resolver.
func NewRecommendationReplay(s *Store) *RecommendationReplay {
	return &RecommendationReplay{store: s}
}

// NearbySensitivity implements sensitivity.ReplaySource.
func (r *RecommendationReplay) NearbySensitivity(ts time.Time) *float64 {
	rec, err := r.store.RecommendationNear(ts, 30*time.Minute)
	if err != nil {
		log := logging.Component(logging.TagStore)
		log.Warn().Err(err).Msg("recommendation lookup failed")
		return nil
	}
	if rec == nil {
		return nil
	}
	return rec.VariableSens
}

// RehydrateEntries maps the recommendations committed since the given time
// into sensitivity cache entries, so a restarted process resumes with the
// sensitivities it already dosed on. Recommendations without a variable
// sensitivity are skipped.
func (s *Store) RehydrateEntries(since time.Time) ([]sensitivity.RehydrateEntry, error) {
	rows, err := s.db.Query(
		`SELECT created_at, glucose, variable_sens FROM recommendations
		 WHERE created_at >= ? AND variable_sens IS NOT NULL
		 ORDER BY created_at ASC`,
		since.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query rehydrate entries: %w", err)
	}
	defer rows.Close()

	var entries []sensitivity.RehydrateEntry
	for rows.Next() {
		var createdStr string
		var e sensitivity.RehydrateEntry
		if err := rows.Scan(&createdStr, &e.Glucose, &e.Sensitivity); err != nil {
			return nil, fmt.Errorf("scan rehydrate entry: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DoseHistory adapts a Store to the treatment history interface consumed by
// the TDD aggregator and insulin calculator. Read errors are logged and
// surface as an empty window, which downstream code treats as missing data.
type DoseHistory struct {
	store *Store
}

// NewDoseHistory wraps a store as a treatment history.
func NewDoseHistory(s *Store) *DoseHistory {
	return &DoseHistory{store: s}
}

// Query implements treatments.History.
func (d *DoseHistory) Query(from, to time.Time) []treatments.Entry {
	entries, err := d.store.Doses(from, to)
	if err != nil {
		log := logging.Component(logging.TagStore)
		log.Warn().Err(err).Msg("dose history query failed")
		return nil
	}
	return entries
}

// #endregion adapters
