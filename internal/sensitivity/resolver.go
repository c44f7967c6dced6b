package sensitivity

import (
	"math"
	"time"

	"github.com/SimonXuku/tsunami/internal/config"
	"github.com/SimonXuku/tsunami/internal/glucose"
	"github.com/SimonXuku/tsunami/internal/insulin"
	"github.com/SimonXuku/tsunami/internal/logging"
	"github.com/SimonXuku/tsunami/internal/tdd"
)

// #region reason

// Reason tags how a sensitivity lookup was answered.
type Reason string

const (
	ReasonOff       Reason = "OFF"      // dynamic sensitivity disabled
	ReasonDB        Reason = "DB"       // replayed from a stored recommendation
	ReasonNoGlucose Reason = "GLUC"     // no current glucose reading
	ReasonHit       Reason = "HIT"      // cache hit for a past timestamp
	ReasonTDDMiss   Reason = "TDD miss" // TDD windows incomplete
	ReasonCalc      Reason = "CALC"     // freshly computed
)

// #endregion reason

// #region result

// Result carries every intermediate of a raw dyn-ISF computation. Engine
// step 4 reuses the TDD parts for the sensitivity-ratio fallback logic.
type Result struct {
	Tdd1D        *float64
	Tdd7D        *float64
	TddLast24H   *float64
	TddLast4H    *float64
	TddLast8to4H *float64

	Tdd                 *float64
	VariableSensitivity *float64
	InsulinDivisor      int

	TddLast24HCarbs  float64
	Tdd7DCarbs       float64
	AllDaysHaveCarbs bool
}

// PartsCalculated reports whether all five TDD windows were available.
func (r *Result) PartsCalculated() bool {
	return r.Tdd1D != nil && r.Tdd7D != nil && r.TddLast24H != nil &&
		r.TddLast4H != nil && r.TddLast8to4H != nil
}

// #endregion result

// #region replay-source

// ReplaySource looks up the sensitivity a stored recommendation close to the
// timestamp already used, letting a historical decision replay exactly.
type ReplaySource interface {
	NearbySensitivity(ts time.Time) *float64
}

// #endregion replay-source

// #region resolver

// Resolver answers per-cycle sensitivity lookups. The whole SensitivityFor
// operation is a single critical section: the engine's cycle lock must
// serialize calls because steps 4-5 read then write the cache.
type Resolver struct {
	prefs   config.Preferences
	cache   *Cache
	replays ReplaySource
	glucose glucose.Provider
	tdd     *tdd.Aggregator
	model   insulin.Model
	log     logging.Logger
}

// NewResolver wires a resolver to its collaborators.
func NewResolver(prefs config.Preferences, cache *Cache, replays ReplaySource, gluc glucose.Provider, agg *tdd.Aggregator, model insulin.Model) *Resolver {
	return &Resolver{
		prefs:   prefs,
		cache:   cache,
		replays: replays,
		glucose: gluc,
		tdd:     agg,
		model:   model,
		log:     logging.Component(logging.TagSensitivity),
	}
}

// SensitivityFor resolves the sensitivity for a timestamp, first match wins:
// disabled, stored-recommendation replay, no glucose, cache hit (past
// timestamps only), TDD recompute.
func (r *Resolver) SensitivityFor(ts, now time.Time, multiplier float64) (Reason, *float64) {
	if !r.prefs.UseDynamicSensitivity {
		return ReasonOff, nil
	}

	if stored := r.replays.NearbySensitivity(ts); stored != nil && *stored != 0 {
		return ReasonDB, stored
	}

	status := r.glucose.Current()
	if status == nil {
		return ReasonNoGlucose, nil
	}

	key := Key(ts, status.Glucose)
	if cached, ok := r.cache.Get(key); ok && ts.Before(now) {
		return ReasonHit, &cached
	}

	result := r.Compute(now, multiplier)
	if !result.PartsCalculated() {
		return ReasonTDDMiss, nil
	}
	r.cache.Put(key, *result.VariableSensitivity)
	return ReasonCalc, result.VariableSensitivity
}

// Compute runs the raw dyn-ISF calculation from TDD windows without
// touching the cache. Missing windows leave the result partial; the caller
// falls back.
func (r *Resolver) Compute(now time.Time, multiplier float64) *Result {
	result := &Result{}

	if w := r.tdd.Calculate(now, 1, false); w != nil {
		result.Tdd1D = &w.TotalAmount
	}
	if w := r.tdd.Calculate(now, 7, false); w != nil {
		result.Tdd7D = &w.TotalAmount
		result.Tdd7DCarbs = w.Carbs
		result.AllDaysHaveCarbs = w.AllDaysHaveCarbs
	}
	if w := r.tdd.CalculateDaily(now, -24, 0); w != nil {
		result.TddLast24H = &w.TotalAmount
		result.TddLast24HCarbs = w.Carbs
	}
	if w := r.tdd.CalculateDaily(now, -4, 0); w != nil {
		result.TddLast4H = &w.TotalAmount
	}
	if w := r.tdd.CalculateDaily(now, -8, -4); w != nil {
		result.TddLast8to4H = &w.TotalAmount
	}

	result.InsulinDivisor = InsulinDivisor(r.model.PeakMinutes())

	status := r.glucose.Current()
	if !result.PartsCalculated() || status == nil {
		return result
	}

	weightedRecent := ((1.4 * *result.TddLast4H) + (0.6 * *result.TddLast8to4H)) * 3
	tddValue := ((weightedRecent * 0.33) + (*result.Tdd7D * 0.34) + (*result.Tdd1D * 0.33)) *
		float64(r.prefs.AdjustmentFactorPct) / 100.0 * multiplier
	result.Tdd = &tddValue

	sens := roundTo(1800/(tddValue*math.Log(status.Glucose/float64(result.InsulinDivisor)+1)), 0.1)
	result.VariableSensitivity = &sens

	r.log.Debug().
		Float64("multiplier", multiplier).
		Float64("tdd", tddValue).
		Int("insulin_divisor", result.InsulinDivisor).
		Float64("glucose", status.Glucose).
		Float64("variable_sensitivity", sens).
		Msg("dyn-ISF computed")
	return result
}

// Rehydrate loads previously stored sensitivities into the cache, so a
// restart replays history instead of recomputing it.
func (r *Resolver) Rehydrate(entries []RehydrateEntry) int {
	count := 0
	for _, e := range entries {
		if e.Sensitivity <= 0 {
			continue
		}
		r.cache.Put(Key(e.Timestamp, e.Glucose), e.Sensitivity)
		count++
	}
	r.log.Debug().Int("count", count).Msg("sensitivity cache rehydrated")
	return count
}

// RehydrateEntry is one stored recommendation's sensitivity snapshot.
type RehydrateEntry struct {
	Timestamp   time.Time
	Glucose     float64
	Sensitivity float64
}

// #endregion resolver

// #region helpers

// InsulinDivisor maps the model's pharmacodynamic peak to the effective
// divisor: the divisor shrinks as peak time grows past the thresholds.
func InsulinDivisor(peakMinutes float64) int {
	switch {
	case peakMinutes > 65:
		return 55
	case peakMinutes > 50:
		return 65
	default:
		return 75
	}
}

func roundTo(x, step float64) float64 {
	if x == 0 {
		return 0
	}
	return math.Round(x/step) * step
}

// #endregion helpers
