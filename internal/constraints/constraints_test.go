package constraints

import (
	"testing"

	"github.com/SimonXuku/tsunami/internal/config"
	"github.com/SimonXuku/tsunami/internal/hardlimits"
)

func testChecker(mutate func(*config.Preferences)) *Checker {
	prefs := config.Default()
	prefs.Enabled = true
	prefs.MaxIOB = 8
	prefs.MaxBasal = 3
	prefs.CurrentBasalMultiplier = 4
	prefs.MaxDailyMultiplier = 3
	if mutate != nil {
		mutate(&prefs)
	}
	return NewChecker(&prefs, hardlimits.DefaultLimits())
}

func TestMaxIOBPreferenceWins(t *testing.T) {
	c := testChecker(nil)
	v := c.MaxIOB(NewValue(12.0))
	if v.Value() != 8 {
		t.Fatalf("MaxIOB = %v, want 8", v.Value())
	}
	recs := v.Records()
	if len(recs) != 1 || recs[0].Rule != "maxIOB" {
		t.Errorf("records = %+v", recs)
	}
}

func TestMaxIOBHardCeilingWins(t *testing.T) {
	c := testChecker(func(p *config.Preferences) { p.MaxIOB = 40 })
	v := c.MaxIOB(NewValue(40.0))
	if v.Value() != hardlimits.DefaultLimits().MaxIOBForSMB {
		t.Fatalf("MaxIOB = %v, want hard ceiling", v.Value())
	}
}

func TestMaxIOBNeverRelaxes(t *testing.T) {
	c := testChecker(nil)
	v := c.MaxIOB(NewValue(2.0))
	if v.Value() != 2 {
		t.Fatalf("MaxIOB relaxed %v above input 2", v.Value())
	}
	if len(v.Records()) != 0 {
		t.Errorf("no record expected when nothing tightened, got %+v", v.Records())
	}
}

func TestMaxBasalSmallestCapWins(t *testing.T) {
	c := testChecker(nil)
	profile := Profile{CurrentBasal: 0.5, MaxDailyBasal: 1.2}
	v := c.MaxBasal(NewValue(10.0), profile)
	// preference 3, current 0.5*4=2.00, daily 1.2*3=3.60: current cap wins
	if v.Value() != 2.00 {
		t.Fatalf("MaxBasal = %v, want 2.00", v.Value())
	}
}

func TestMaxBasalFlooredToTwoDecimals(t *testing.T) {
	c := testChecker(func(p *config.Preferences) {
		p.MaxBasal = 10
		p.CurrentBasalMultiplier = 3
	})
	profile := Profile{CurrentBasal: 0.333, MaxDailyBasal: 5}
	v := c.MaxBasal(NewValue(10.0), profile)
	// 0.333*3 = 0.999, floored to 0.99
	if v.Value() != 0.99 {
		t.Fatalf("MaxBasal = %v, want 0.99", v.Value())
	}
}

func TestMaxBasalRaisedToMaxDailyBasal(t *testing.T) {
	c := testChecker(func(p *config.Preferences) { p.MaxBasal = 1 })
	profile := Profile{CurrentBasal: 1, MaxDailyBasal: 2}
	v := c.MaxBasal(NewValue(10.0), profile)
	// preference 1 raised to 2; current 1*4=4, daily 2*3=6
	if v.Value() != 2 {
		t.Fatalf("MaxBasal = %v, want 2", v.Value())
	}
	var raised bool
	for _, r := range v.Records() {
		if r.Note == "raised to max daily basal" {
			raised = true
		}
	}
	if !raised {
		t.Error("expected a record for raising the preference ceiling")
	}
}

func TestBoolGatesDisabledPlugin(t *testing.T) {
	c := testChecker(func(p *config.Preferences) {
		p.Enabled = false
		p.UseSMB = true
		p.UseUAM = true
		p.UseAutosens = true
	})
	if c.SMBEnabled(NewValue(true), SMBContext{}).Value() {
		t.Error("SMB must be off when plugin disabled")
	}
	if c.UAMEnabled(NewValue(true)).Value() {
		t.Error("UAM must be off when plugin disabled")
	}
	if c.AutosensEnabled(NewValue(true)).Value() {
		t.Error("autosens must be off when plugin disabled")
	}
}

func TestSMBNeedsEnablingCondition(t *testing.T) {
	c := testChecker(func(p *config.Preferences) { p.UseSMB = true })
	v := c.SMBEnabled(NewValue(true), SMBContext{})
	if v.Value() {
		t.Fatal("SMB must be off without an enabling condition")
	}
	recs := v.Records()
	if len(recs) != 1 || recs[0].Note != "no enabling condition met" {
		t.Errorf("records = %+v", recs)
	}
}

func TestSMBEnablingConditions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Preferences)
		ctx    SMBContext
		want   bool
	}{
		{"always", func(p *config.Preferences) { p.SMBAlways = true }, SMBContext{}, true},
		{"cob", func(p *config.Preferences) { p.SMBWithCOB = true }, SMBContext{CarbsOnBoard: true}, true},
		{"cob flag without carbs", func(p *config.Preferences) { p.SMBWithCOB = true }, SMBContext{}, false},
		{"after carbs", func(p *config.Preferences) { p.SMBAfterCarbs = true }, SMBContext{RecentCarbs: true}, true},
		{"low temp target", func(p *config.Preferences) { p.SMBWithLowTT = true }, SMBContext{LowTempTarget: true}, true},
		{"high temp target", func(p *config.Preferences) { p.SMBWithHighTT = true }, SMBContext{HighTempTarget: true}, true},
		{"condition without flag", nil, SMBContext{CarbsOnBoard: true, LowTempTarget: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testChecker(func(p *config.Preferences) {
				p.UseSMB = true
				if tc.mutate != nil {
					tc.mutate(p)
				}
			})
			if got := c.SMBEnabled(NewValue(true), tc.ctx).Value(); got != tc.want {
				t.Fatalf("SMBEnabled = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMaxSMBBasalMinutes(t *testing.T) {
	c := testChecker(func(p *config.Preferences) {
		p.MaxSMBBasalMin = 30
		p.MaxUAMSMBBasalMin = 45
	})
	profile := Profile{CurrentBasal: 1.0}

	// 30 min of 1.0 U/h basal: 0.5 U cap.
	v := c.MaxSMB(NewValue(2.0), profile, false)
	if v.Value() != 0.5 {
		t.Fatalf("MaxSMB = %v, want 0.5", v.Value())
	}
	if recs := v.Records(); len(recs) != 1 || recs[0].Rule != "maxSMB" {
		t.Errorf("records = %+v", recs)
	}

	// UAM uses its own window: 45 min of basal.
	v = c.MaxSMB(NewValue(2.0), profile, true)
	if v.Value() != 0.75 {
		t.Fatalf("UAM MaxSMB = %v, want 0.75", v.Value())
	}
	if recs := v.Records(); len(recs) != 1 || recs[0].Rule != "maxUAMSMB" {
		t.Errorf("records = %+v", recs)
	}
}

func TestMaxSMBNeverRelaxes(t *testing.T) {
	c := testChecker(func(p *config.Preferences) { p.MaxSMBBasalMin = 60 })
	v := c.MaxSMB(NewValue(0.3), Profile{CurrentBasal: 1.0}, false)
	if v.Value() != 0.3 {
		t.Fatalf("MaxSMB relaxed %v above input 0.3", v.Value())
	}
	if len(v.Records()) != 0 {
		t.Errorf("no record expected when nothing tightened, got %+v", v.Records())
	}
}

func TestAutosensDynamicBranch(t *testing.T) {
	c := testChecker(func(p *config.Preferences) {
		p.UseDynamicSensitivity = true
		p.AdjustSensitivity = true
		p.UseAutosens = false
	})
	if !c.AutosensEnabled(NewValue(true)).Value() {
		t.Error("dynamic branch should ignore the classic autosens flag")
	}
	c = testChecker(func(p *config.Preferences) {
		p.UseDynamicSensitivity = true
		p.AdjustSensitivity = false
	})
	if c.AutosensEnabled(NewValue(true)).Value() {
		t.Error("dynamic branch with adjust disabled should gate off")
	}
}

func TestAutosensClassicBranch(t *testing.T) {
	c := testChecker(func(p *config.Preferences) {
		p.UseDynamicSensitivity = false
		p.UseAutosens = true
	})
	if !c.AutosensEnabled(NewValue(true)).Value() {
		t.Error("classic branch with autosens on should stay on")
	}
}

func TestRecordsCaptureTransitions(t *testing.T) {
	v := NewValue(5.0)
	v.Set(3, "rule-a", "first")
	v.Set(1, "rule-b", "second")
	recs := v.Records()
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Previous != "5" || recs[0].New != "3" {
		t.Errorf("first record = %+v", recs[0])
	}
	if recs[1].Previous != "3" || recs[1].New != "1" {
		t.Errorf("second record = %+v", recs[1])
	}
}
