// Package engine runs the dosing decision cycle: it gathers inputs from the
// collaborators, applies the safety chain, and hands an immutable snapshot to
// the dosing algorithm. A cycle either commits a recommendation or aborts at
// a precondition; it never doses on partial data.
package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SimonXuku/tsunami/internal/activity"
	"github.com/SimonXuku/tsunami/internal/config"
	"github.com/SimonXuku/tsunami/internal/constraints"
	"github.com/SimonXuku/tsunami/internal/glucose"
	"github.com/SimonXuku/tsunami/internal/hardlimits"
	"github.com/SimonXuku/tsunami/internal/insulin"
	"github.com/SimonXuku/tsunami/internal/logging"
	"github.com/SimonXuku/tsunami/internal/mode"
	"github.com/SimonXuku/tsunami/internal/sensitivity"
	"github.com/SimonXuku/tsunami/internal/store"
	"github.com/SimonXuku/tsunami/internal/tdd"
	"github.com/SimonXuku/tsunami/internal/treatments"
)

// #region errors
var (
	// ErrCycleInFlight is returned when a cycle starts while one is running.
	// Overlapping cycles are rejected, not queued.
	ErrCycleInFlight = errors.New("cycle already in flight")

	// ErrMissingInput is wrapped with the specific missing precondition.
	ErrMissingInput = errors.New("missing input")
)
// #endregion errors

// #region collaborators

// Profile is the active pump profile as supplied by the profile collaborator.
type Profile struct {
	DIAHours      float64
	CarbRatio     float64 // g/U
	ISF           float64 // mg/dL per U
	CurrentBasal  float64 // U/h
	MaxDailyBasal float64 // U/h
	TargetLow     float64 // mg/dL
	TargetHigh    float64 // mg/dL
	Percentage    int
}

// ProfileStore supplies the active profile, or nil when none is loaded.
type ProfileStore interface {
	Active() *Profile
}

// AutosensSource supplies the classic autosens ratio, or nil when autosens
// has no data yet.
type AutosensSource interface {
	Ratio() *float64
}

// TempTargetSource supplies the temporary target active at a timestamp.
type TempTargetSource interface {
	TempTargetAt(ts time.Time) (*store.TempTarget, error)
}

// RecommendationStore persists committed recommendations.
type RecommendationStore interface {
	SaveRecommendation(rec store.Recommendation) error
}

// #endregion collaborators

// #region input

// AlgorithmInput is the immutable snapshot handed to the dosing algorithm.
// VariableSens is 0 when dynamic sensitivity is off; this disabled marker
// exists only at this boundary, everything upstream models absence as nil.
type AlgorithmInput struct {
	Timestamp     time.Time
	Glucose       float64
	ShortAvgDelta float64

	TargetLow  float64
	TargetHigh float64

	ProfileISF   float64
	CarbRatio    float64
	CurrentBasal float64

	IOB      float64
	MaxIOB   float64
	MaxBasal float64

	SMBEnabled        bool
	UAMEnabled        bool
	MaxSMB            float64
	SMBMinInterval    int     // minutes between micro-boluses
	MinutesSinceBolus float64 // +Inf when no bolus in the last day

	SensitivityRatio float64
	VariableSens     float64

	Activity activity.Sums
	Mode     mode.Params
}

// Suggestion is the raw dosing proposal returned by the algorithm. Nil
// channels mean "no change".
type Suggestion struct {
	Rate *float64
	SMB  *float64
}

// DosingFunc is a deterministic dosing algorithm over one input snapshot.
type DosingFunc func(in AlgorithmInput) Suggestion

// Recommendation is a committed cycle outcome.
type Recommendation struct {
	ID           string
	Timestamp    time.Time
	Glucose      float64
	Rate         *float64
	SMB          *float64
	Mode         mode.Mode
	VariableSens *float64
	Trace        string
}

// #endregion input

// #region engine

// Engine drives dosing cycles over injected collaborators.
type Engine struct {
	mu sync.Mutex

	prefs       config.Preferences
	limits      hardlimits.Limits
	profiles    ProfileStore
	glucose     glucose.Provider
	autosens    AutosensSource
	tempTargets TempTargetSource
	recs        RecommendationStore
	history     treatments.History

	calc      *insulin.Calculator
	resolver  *sensitivity.Resolver
	predictor *activity.Predictor
	selector  *mode.Selector
	checker   *constraints.Checker

	dose DosingFunc
	log  logging.Logger
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Prefs       config.Preferences
	Limits      hardlimits.Limits
	Profiles    ProfileStore
	Glucose     glucose.Provider
	History     treatments.History
	Autosens    AutosensSource
	TempTargets TempTargetSource
	Recs        RecommendationStore
	Overrides   mode.OverrideStore
	Replays     sensitivity.ReplaySource
	Model       insulin.Model
	Dose        DosingFunc
}

// New wires an engine from its collaborators. The sensitivity cache is owned
// by the engine and serialized by its cycle lock.
func New(d Deps) *Engine {
	calc := insulin.NewCalculator(d.History, d.Model)
	agg := tdd.NewAggregator(d.History)
	return &Engine{
		prefs:       d.Prefs,
		limits:      d.Limits,
		profiles:    d.Profiles,
		glucose:     d.Glucose,
		autosens:    d.Autosens,
		tempTargets: d.TempTargets,
		recs:        d.Recs,
		history:     d.History,
		calc:        calc,
		resolver:    sensitivity.NewResolver(d.Prefs, sensitivity.NewCache(sensitivity.DefaultCapacity), d.Replays, d.Glucose, agg, d.Model),
		predictor:   activity.NewPredictor(calc),
		selector:    mode.NewSelector(d.Prefs, d.Overrides),
		checker:     constraints.NewChecker(&d.Prefs, d.Limits),
		dose:        d.Dose,
		log:         logging.Component(logging.TagAPS),
	}
}

// Resolver exposes the engine's sensitivity resolver for startup rehydration.
func (e *Engine) Resolver() *sensitivity.Resolver { return e.resolver }

// #endregion engine

// #region run-cycle

// RunCycle executes one dosing cycle at the given time.
func (e *Engine) RunCycle(now time.Time) (*Recommendation, error) {
	if !e.mu.TryLock() {
		return nil, ErrCycleInFlight
	}
	defer e.mu.Unlock()

	// 1. Preconditions. Missing data never produces a fallback dose.
	if !e.prefs.Enabled {
		return nil, fmt.Errorf("%w: plugin disabled", ErrMissingInput)
	}
	profile := e.profiles.Active()
	if profile == nil {
		return nil, fmt.Errorf("%w: no active profile", ErrMissingInput)
	}
	status := e.glucose.Current()
	if status == nil {
		return nil, fmt.Errorf("%w: no glucose status", ErrMissingInput)
	}

	// 2. Hard-limit validation of every profile-derived scalar.
	if err := e.checkProfile(profile); err != nil {
		return nil, err
	}

	var trace []string

	// Dynamic sensitivity additionally requires the adjustment factor
	// inside its hard bounds. Out of bounds is a fallback to classic
	// behavior, not an abort.
	dynOK := e.prefs.UseDynamicSensitivity
	if dynOK {
		if err := hardlimits.Check("adjustmentFactor", float64(e.prefs.AdjustmentFactorPct), e.limits.AdjustmentPct); err != nil {
			dynOK = false
			trace = append(trace, "dynamic sensitivity off: adjustment factor out of bounds")
			e.log.Warn().Err(err).Msg("dynamic sensitivity disabled for this cycle")
		}
	}

	// 3. Target band, temporary target first. Temp target edges are clamped
	// into the wider temporary-target bounds.
	targetLow, targetHigh, tt := e.resolveTargets(now, profile, &trace)

	// The profile percentage scales the TDD estimate the same way it scales
	// every basal rate.
	multiplier := float64(profile.Percentage) / 100

	// 5 (fan-out). TDD windows and activity sums are independent; both must
	// complete before the sensitivity steps consume them.
	var (
		wg   sync.WaitGroup
		sums activity.Sums
		dyn  *sensitivity.Result
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sums = e.predictor.Predict(now)
	}()
	go func() {
		defer wg.Done()
		if dynOK {
			dyn = e.resolver.Compute(now, multiplier)
		}
	}()
	wg.Wait()

	// 4. Sensitivity ratio.
	ratio := e.sensitivityRatio(dyn, &trace)

	// 5. Mode and variable sensitivity.
	params := e.selector.Select(now, profile.Percentage, status.ShortAvgDelta)
	trace = append(trace, fmt.Sprintf("mode=%s deltaReduction=%.1f", params.Mode, params.DeltaReductionPCT))

	sensReason, variableSens := sensitivity.ReasonOff, (*float64)(nil)
	if dynOK {
		sensReason, variableSens = e.resolver.SensitivityFor(now, now, multiplier)
	}
	trace = append(trace, fmt.Sprintf("sensitivity=%s", sensReason))

	// 6. Constraint chain, then the immutable snapshot.
	smbCtx, minutesSinceBolus := e.smbContext(now, profile, tt)
	maxIOB := e.checker.MaxIOB(constraints.NewValue(e.prefs.MaxIOB))
	maxBasal := e.checker.MaxBasal(constraints.NewValue(e.prefs.MaxBasal), constraints.Profile{
		CurrentBasal:  profile.CurrentBasal,
		MaxDailyBasal: profile.MaxDailyBasal,
		Percentage:    profile.Percentage,
	})
	smbOK := e.checker.SMBEnabled(constraints.NewValue(e.prefs.UseSMB), smbCtx)
	uamOK := e.checker.UAMEnabled(constraints.NewValue(e.prefs.UseUAM))
	uam := uamOK.Value() && !smbCtx.CarbsOnBoard
	maxSMB := e.checker.MaxSMB(constraints.NewValue(params.SMBCap), constraints.Profile{
		CurrentBasal:  profile.CurrentBasal,
		MaxDailyBasal: profile.MaxDailyBasal,
		Percentage:    profile.Percentage,
	}, uam)
	for _, v := range [][]constraints.Record{maxIOB.Records(), maxBasal.Records(), smbOK.Records(), uamOK.Records(), maxSMB.Records()} {
		for _, r := range v {
			trace = append(trace, fmt.Sprintf("constraint %s: %s -> %s (%s)", r.Rule, r.Previous, r.New, r.Note))
		}
	}

	input := AlgorithmInput{
		Timestamp:         now,
		Glucose:           status.Glucose,
		ShortAvgDelta:     status.ShortAvgDelta,
		TargetLow:         targetLow,
		TargetHigh:        targetHigh,
		ProfileISF:        profile.ISF,
		CarbRatio:         profile.CarbRatio,
		CurrentBasal:      profile.CurrentBasal,
		IOB:               e.calc.IOBAt(now),
		MaxIOB:            maxIOB.Value(),
		MaxBasal:          maxBasal.Value(),
		SMBEnabled:        smbOK.Value(),
		UAMEnabled:        uamOK.Value(),
		MaxSMB:            maxSMB.Value(),
		SMBMinInterval:    e.prefs.SMBInterval,
		MinutesSinceBolus: minutesSinceBolus,

		SensitivityRatio: ratio,
		VariableSens:     disabledMarker(variableSens),
		Activity:         sums,
		Mode:             params,
	}

	// 7. Dosing algorithm over the snapshot.
	suggestion := e.dose(input)

	// 8. Commit, so future cycles replay this sensitivity via the stored
	// recommendation path.
	rec := &Recommendation{
		ID:           uuid.New().String(),
		Timestamp:    now,
		Glucose:      status.Glucose,
		Rate:         suggestion.Rate,
		SMB:          suggestion.SMB,
		Mode:         params.Mode,
		VariableSens: variableSens,
		Trace:        strings.Join(trace, "\n"),
	}
	if err := e.recs.SaveRecommendation(store.Recommendation{
		ID:           rec.ID,
		CreatedAt:    rec.Timestamp,
		Glucose:      rec.Glucose,
		Rate:         rec.Rate,
		SMB:          rec.SMB,
		Mode:         rec.Mode,
		VariableSens: rec.VariableSens,
		Trace:        rec.Trace,
	}); err != nil {
		return nil, fmt.Errorf("store recommendation: %w", err)
	}

	e.log.Debug().
		Str("id", rec.ID).
		Str("mode", params.Mode.String()).
		Str("sensitivity", string(sensReason)).
		Msg("cycle committed")
	return rec, nil
}

// #endregion run-cycle

// #region steps

func (e *Engine) checkProfile(p *Profile) error {
	checks := []struct {
		field string
		value float64
		bound hardlimits.Bound
	}{
		{"dia", p.DIAHours, e.limits.DIA},
		{"carbRatio", p.CarbRatio, e.limits.CarbRatio},
		{"isf", p.ISF, e.limits.ISF},
		{"maxDailyBasal", p.MaxDailyBasal, e.limits.MaxBasal},
		{"currentBasal", p.CurrentBasal, e.limits.MaxBasal},
	}
	for _, c := range checks {
		if err := hardlimits.Check(c.field, c.value, c.bound); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) resolveTargets(now time.Time, p *Profile, trace *[]string) (low, high float64, tt *store.TempTarget) {
	tt, err := e.tempTargets.TempTargetAt(now)
	if err != nil {
		e.log.Warn().Err(err).Msg("temp target lookup failed")
		tt = nil
	}
	if tt != nil {
		low = hardlimits.Clamp(tt.Low, e.limits.TempMinBG)
		high = hardlimits.Clamp(tt.High, e.limits.TempMaxBG)
		*trace = append(*trace, fmt.Sprintf("temp target %.0f-%.0f active", low, high))
		return low, high, tt
	}
	low = hardlimits.Clamp(p.TargetLow, e.limits.MinBG)
	high = hardlimits.Clamp(p.TargetHigh, e.limits.MaxBG)
	return low, high, nil
}

// smbContext derives the per-cycle SMB enablement facts from the dose
// history and the active temp target, along with the minutes since the last
// bolus. No bolus within the last day reports +Inf.
func (e *Engine) smbContext(now time.Time, p *Profile, tt *store.TempTarget) (constraints.SMBContext, float64) {
	var ctx constraints.SMBContext

	dia := time.Duration(e.calc.Model().DIAMinutes()) * time.Minute
	minutes := math.Inf(1)
	for _, entry := range e.history.Query(now.Add(-24*time.Hour), now) {
		age := now.Sub(entry.Timestamp)
		if entry.Carbs > 0 {
			if age <= dia {
				ctx.CarbsOnBoard = true
			}
			if age <= 6*time.Hour {
				ctx.RecentCarbs = true
			}
		}
		if entry.BolusAmount > 0 && age.Minutes() < minutes {
			minutes = age.Minutes()
		}
	}
	if tt != nil {
		ctx.LowTempTarget = tt.Low < p.TargetLow
		ctx.HighTempTarget = tt.High > p.TargetHigh
	}
	return ctx, minutes
}

// sensitivityRatio implements the dynamic TDD ratio with classic-autosens
// fallback. Incomplete TDD history is a fallback, not an abort. The result
// never exceeds the configured autosens maximum.
func (e *Engine) sensitivityRatio(dyn *sensitivity.Result, trace *[]string) float64 {
	ratio := e.rawSensitivityRatio(dyn, trace)
	if e.prefs.AutosensMax > 0 && ratio > e.prefs.AutosensMax {
		*trace = append(*trace, fmt.Sprintf("sensitivity ratio capped at %.2f", e.prefs.AutosensMax))
		ratio = e.prefs.AutosensMax
	}
	return ratio
}

func (e *Engine) rawSensitivityRatio(dyn *sensitivity.Result, trace *[]string) float64 {
	useRatio := e.checker.AutosensEnabled(constraints.NewValue(true)).Value()
	if !useRatio {
		*trace = append(*trace, "sensitivity ratio neutral: autosens disabled")
		return 1.0
	}
	if e.prefs.UseDynamicSensitivity && dyn != nil && dyn.PartsCalculated() {
		ratio := *dyn.TddLast24H / *dyn.Tdd7D
		if dyn.AllDaysHaveCarbs && dyn.Tdd7DCarbs > 0 {
			carbsRatio := ((dyn.TddLast24HCarbs/dyn.Tdd7DCarbs)-1)*0.6 + 1
			ratio /= carbsRatio
			*trace = append(*trace, fmt.Sprintf("sensitivity ratio %.3f (carb-adjusted)", ratio))
			return ratio
		}
		*trace = append(*trace, fmt.Sprintf("sensitivity ratio %.3f (tdd)", ratio))
		return ratio
	}
	if r := e.autosens.Ratio(); r != nil {
		*trace = append(*trace, fmt.Sprintf("sensitivity ratio %.3f (autosens)", *r))
		return *r
	}
	*trace = append(*trace, "sensitivity ratio neutral: no autosens data")
	return 1.0
}

func disabledMarker(sens *float64) float64 {
	if sens == nil {
		return 0
	}
	return *sens
}

// #endregion steps
