package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SimonXuku/tsunami/internal/config"
	"github.com/SimonXuku/tsunami/internal/engine"
	"github.com/SimonXuku/tsunami/internal/glucose"
	"github.com/SimonXuku/tsunami/internal/hardlimits"
	"github.com/SimonXuku/tsunami/internal/insulin"
	"github.com/SimonXuku/tsunami/internal/replay"
	"github.com/SimonXuku/tsunami/internal/store"
)

var (
	cycleDB      string
	cyclePrefs   string
	cycleProfile string
	cycleGlucose float64
	cycleDelta   float64
	cycleAt      string
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one dosing cycle against the local database",
	RunE:  runCycleCmd,
}

func init() {
	cycleCmd.Flags().StringVar(&cycleDB, "db", "loop.db", "path to the loop database")
	cycleCmd.Flags().StringVar(&cyclePrefs, "prefs", "", "preferences JSON file (optional)")
	cycleCmd.Flags().StringVar(&cycleProfile, "profile", "", "pump profile JSON file")
	cycleCmd.Flags().Float64Var(&cycleGlucose, "glucose", 0, "current glucose, mg/dL")
	cycleCmd.Flags().Float64Var(&cycleDelta, "delta", 0, "short average delta, mg/dL per 5 min")
	cycleCmd.Flags().StringVar(&cycleAt, "at", "", "cycle time, RFC3339 (default: now)")
	cycleCmd.MarkFlagRequired("profile")
	cycleCmd.MarkFlagRequired("glucose")
}

// fixedGlucose serves the operator-supplied reading as the current status.
type fixedGlucose struct{ status glucose.Status }

func (f fixedGlucose) Current() *glucose.Status { return &f.status }

type noAutosens struct{}

func (noAutosens) Ratio() *float64 { return nil }

func runCycleCmd(cmd *cobra.Command, args []string) error {
	now := time.Now().UTC()
	if cycleAt != "" {
		parsed, err := time.Parse(time.RFC3339, cycleAt)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		now = parsed
	}

	prefs, err := config.Load(cyclePrefs)
	if err != nil {
		return err
	}
	profile, model, err := loadProfile(cycleProfile)
	if err != nil {
		return err
	}

	db, err := store.New(cycleDB)
	if err != nil {
		return err
	}
	defer db.Close()

	eng := engine.New(engine.Deps{
		Prefs:    prefs,
		Limits:   hardlimits.DefaultLimits(),
		Profiles: staticProfile{p: profile},
		Glucose: fixedGlucose{status: glucose.Status{
			Glucose:       cycleGlucose,
			ShortAvgDelta: cycleDelta,
			Timestamp:     now,
		}},
		History:     store.NewDoseHistory(db),
		Autosens:    noAutosens{},
		TempTargets: db,
		Recs:        db,
		Overrides:   store.NewOverrideSource(db),
		Replays:     store.NewRecommendationReplay(db),
		Model:       model,
		Dose:        engine.ReferenceDosing,
	})

	// Rehydrate the sensitivity cache from the last day of committed
	// recommendations so a restart resumes with the sensitivities already
	// dosed on.
	entries, err := db.RehydrateEntries(now.Add(-24 * time.Hour))
	if err != nil {
		return err
	}
	eng.Resolver().Rehydrate(entries)

	rec, err := eng.RunCycle(now)
	if err != nil {
		return err
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(rec)
}

type staticProfile struct{ p *engine.Profile }

func (s staticProfile) Active() *engine.Profile { return s.p }

func loadProfile(path string) (*engine.Profile, insulin.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	var fp replay.FixtureProfile
	if err := json.Unmarshal(data, &fp); err != nil {
		return nil, nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return fp.ToProfile(), fp.Model(), nil
}
