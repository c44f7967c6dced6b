// Package store persists dosing decisions and their inputs in SQLite so a
// cycle can be reconstructed after the fact and overrides survive restarts.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SimonXuku/tsunami/internal/mode"
	"github.com/SimonXuku/tsunami/internal/treatments"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS recommendations (
	id            TEXT PRIMARY KEY,
	created_at    TEXT NOT NULL,
	glucose       REAL NOT NULL DEFAULT 0,
	rate          REAL,
	smb           REAL,
	mode          INTEGER NOT NULL,
	variable_sens REAL,
	trace         TEXT
);
CREATE INDEX IF NOT EXISTS idx_recommendations_created
	ON recommendations(created_at);

CREATE TABLE IF NOT EXISTS mode_overrides (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	mode       INTEGER NOT NULL,
	starts_at  TEXT NOT NULL,
	ends_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS temp_targets (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	low        REAL NOT NULL,
	high       REAL NOT NULL,
	starts_at  TEXT NOT NULL,
	ends_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dose_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	ts           TEXT NOT NULL,
	basal_rate   REAL NOT NULL DEFAULT 0,
	bolus_amount REAL NOT NULL DEFAULT 0,
	carbs        REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_dose_history_ts ON dose_history(ts);
`
// #endregion schema

// #region types

// Recommendation is one persisted dosing decision. Glucose is the reading
// the cycle ran on; Rate and SMB are nil when the cycle produced no change
// for that channel; VariableSens is nil when dynamic sensitivity was not in
// play.
type Recommendation struct {
	ID           string
	CreatedAt    time.Time
	Glucose      float64
	Rate         *float64
	SMB          *float64
	Mode         mode.Mode
	VariableSens *float64
	Trace        string
}

// TempTarget is a temporary glucose target band active over a time span.
type TempTarget struct {
	Low      float64
	High     float64
	StartsAt time.Time
	EndsAt   time.Time
}

// #endregion types

// #region store-struct
// Store manages dosing records in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// New opens a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region recommendations

// SaveRecommendation persists one dosing decision.
func (s *Store) SaveRecommendation(rec Recommendation) error {
	_, err := s.db.Exec(
		`INSERT INTO recommendations (id, created_at, glucose, rate, smb, mode, variable_sens, trace)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.Glucose, rec.Rate, rec.SMB, int(rec.Mode), rec.VariableSens, rec.Trace,
	)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

// RecommendationNear returns the newest recommendation within the given
// window around ts, or nil when none exists.
func (s *Store) RecommendationNear(ts time.Time, within time.Duration) (*Recommendation, error) {
	from := ts.Add(-within).UTC().Format(time.RFC3339Nano)
	to := ts.Add(within).UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRow(
		`SELECT id, created_at, glucose, rate, smb, mode, variable_sens, trace
		 FROM recommendations
		 WHERE created_at >= ? AND created_at <= ?
		 ORDER BY created_at DESC LIMIT 1`, from, to,
	)
	rec, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recommendation near %s: %w", ts, err)
	}
	return rec, nil
}

// RecentRecommendations returns the newest recommendations, newest first.
func (s *Store) RecentRecommendations(limit int) ([]Recommendation, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, glucose, rate, smb, mode, variable_sens, trace
		 FROM recommendations ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var records []Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row scanner) (*Recommendation, error) {
	var rec Recommendation
	var createdStr string
	var rate, smb, sens sql.NullFloat64
	var modeInt int
	var trace sql.NullString

	if err := row.Scan(&rec.ID, &createdStr, &rec.Glucose, &rate, &smb, &modeInt, &sens, &trace); err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if rate.Valid {
		rec.Rate = &rate.Float64
	}
	if smb.Valid {
		rec.SMB = &smb.Float64
	}
	if sens.Valid {
		rec.VariableSens = &sens.Float64
	}
	rec.Mode = mode.Mode(modeInt)
	if trace.Valid {
		rec.Trace = trace.String
	}
	return &rec, nil
}

// #endregion recommendations

// #region overrides

// SaveModeOverride records a manual mode override for [startsAt, endsAt).
func (s *Store) SaveModeOverride(m mode.Mode, startsAt, endsAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO mode_overrides (mode, starts_at, ends_at) VALUES (?, ?, ?)`,
		int(m), startsAt.UTC().Format(time.RFC3339Nano), endsAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert override: %w", err)
	}
	return nil
}

// ModeOverrideAt returns the most recently created override covering ts,
// or nil when none is active.
func (s *Store) ModeOverrideAt(ts time.Time) (*mode.Mode, error) {
	tsStr := ts.UTC().Format(time.RFC3339Nano)
	var modeInt int
	err := s.db.QueryRow(
		`SELECT mode FROM mode_overrides
		 WHERE starts_at <= ? AND ends_at > ?
		 ORDER BY id DESC LIMIT 1`, tsStr, tsStr,
	).Scan(&modeInt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("override at %s: %w", ts, err)
	}
	m := mode.Mode(modeInt)
	return &m, nil
}

// #endregion overrides

// #region temp-targets

// SaveTempTarget records a temporary glucose target band for [startsAt, endsAt).
func (s *Store) SaveTempTarget(low, high float64, startsAt, endsAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO temp_targets (low, high, starts_at, ends_at) VALUES (?, ?, ?, ?)`,
		low, high, startsAt.UTC().Format(time.RFC3339Nano), endsAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert temp target: %w", err)
	}
	return nil
}

// TempTargetAt returns the most recently created temporary target covering
// ts, or nil when none is active.
func (s *Store) TempTargetAt(ts time.Time) (*TempTarget, error) {
	tsStr := ts.UTC().Format(time.RFC3339Nano)
	var tt TempTarget
	var startsStr, endsStr string
	err := s.db.QueryRow(
		`SELECT low, high, starts_at, ends_at FROM temp_targets
		 WHERE starts_at <= ? AND ends_at > ?
		 ORDER BY id DESC LIMIT 1`, tsStr, tsStr,
	).Scan(&tt.Low, &tt.High, &startsStr, &endsStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("temp target at %s: %w", ts, err)
	}
	tt.StartsAt, _ = time.Parse(time.RFC3339Nano, startsStr)
	tt.EndsAt, _ = time.Parse(time.RFC3339Nano, endsStr)
	return &tt, nil
}

// #endregion temp-targets

// #region doses

// AddDose appends one treatment record to the dose history.
func (s *Store) AddDose(e treatments.Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO dose_history (ts, basal_rate, bolus_amount, carbs) VALUES (?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.BasalRate, e.BolusAmount, e.Carbs,
	)
	if err != nil {
		return fmt.Errorf("insert dose: %w", err)
	}
	return nil
}

// Doses returns treatment records in [from, to), oldest first.
func (s *Store) Doses(from, to time.Time) ([]treatments.Entry, error) {
	rows, err := s.db.Query(
		`SELECT ts, basal_rate, bolus_amount, carbs FROM dose_history
		 WHERE ts >= ? AND ts < ? ORDER BY ts ASC`,
		from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query doses: %w", err)
	}
	defer rows.Close()

	var entries []treatments.Entry
	for rows.Next() {
		var e treatments.Entry
		var tsStr string
		if err := rows.Scan(&tsStr, &e.BasalRate, &e.BolusAmount, &e.Carbs); err != nil {
			return nil, fmt.Errorf("scan dose: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion doses
