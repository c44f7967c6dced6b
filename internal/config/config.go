// Package config provides preference types and loading for the dosing engine.
package config

// Preferences is the root configuration struct. Every tunable the engine
// reads lives here; collaborator adapters carry their own settings.
type Preferences struct {
	// Master switch. When false every constraint answers with its safe
	// default and no cycle produces a dose.
	Enabled bool `json:"enabled" envconfig:"ENABLED"`

	// Dynamic sensitivity (dyn-ISF).
	UseDynamicSensitivity bool `json:"useDynamicSensitivity" envconfig:"USE_DYNAMIC_SENSITIVITY"`
	AdjustmentFactorPct   int  `json:"adjustmentFactorPct" envconfig:"DYN_ISF_ADJUSTMENT_FACTOR"`
	AdjustSensitivity     bool `json:"adjustSensitivity" envconfig:"DYN_ISF_ADJUST_SENSITIVITY"`

	// Classic autosens, used when dynamic sensitivity is off.
	UseAutosens bool    `json:"useAutosens" envconfig:"USE_AUTOSENS"`
	AutosensMax float64 `json:"autosensMax" envconfig:"AUTOSENS_MAX"`

	// SMB feature and sub-flags.
	UseSMB           bool `json:"useSmb" envconfig:"USE_SMB"`
	SMBAlways        bool `json:"smbAlways" envconfig:"SMB_ALWAYS"`
	SMBWithCOB       bool `json:"smbWithCob" envconfig:"SMB_WITH_COB"`
	SMBWithLowTT     bool `json:"smbWithLowTt" envconfig:"SMB_WITH_LOW_TT"`
	SMBWithHighTT    bool `json:"smbWithHighTt" envconfig:"SMB_WITH_HIGH_TT"`
	SMBAfterCarbs    bool `json:"smbAfterCarbs" envconfig:"SMB_AFTER_CARBS"`
	SMBInterval      int  `json:"smbInterval" envconfig:"SMB_INTERVAL"`
	MaxSMBBasalMin   int  `json:"maxSmbBasalMinutes" envconfig:"MAX_SMB_BASAL_MINUTES"`
	MaxUAMSMBBasalMin int `json:"maxUamSmbBasalMinutes" envconfig:"MAX_UAM_SMB_BASAL_MINUTES"`

	// Unannounced meal handling.
	UseUAM bool `json:"useUam" envconfig:"USE_UAM"`

	// Dosing ceilings.
	MaxIOB                 float64 `json:"maxIob" envconfig:"MAX_IOB"`
	MaxBasal               float64 `json:"maxBasal" envconfig:"MAX_BASAL"`
	MaxDailyMultiplier     float64 `json:"maxDailyMultiplier" envconfig:"MAX_DAILY_MULTIPLIER"`
	CurrentBasalMultiplier float64 `json:"currentBasalMultiplier" envconfig:"CURRENT_BASAL_MULTIPLIER"`

	// Wave operating window, hours of day. End may be smaller than start,
	// meaning the window wraps past midnight.
	EnableWave bool    `json:"enableWave" envconfig:"ENABLE_WAVE"`
	WaveStart  float64 `json:"waveStart" envconfig:"WAVE_START"`
	WaveEnd    float64 `json:"waveEnd" envconfig:"WAVE_END"`

	// Wave mode parameters.
	WaveSMBCap            float64 `json:"waveSmbCap" envconfig:"WAVE_SMB_CAP"`
	WaveSMBCapScaling     bool    `json:"waveSmbCapScaling" envconfig:"WAVE_SMB_CAP_SCALING"`
	WaveInsulinReqPct     int     `json:"waveInsulinReqPct" envconfig:"WAVE_INSULIN_REQ_PCT"`
	WaveActivityTarget    int     `json:"waveActivityTarget" envconfig:"WAVE_ACTIVITY_TARGET"`
	WaveDeltaScoreDivisor int     `json:"waveDeltaScoreDivisor" envconfig:"WAVE_DELTA_SCORE_DIVISOR"`

	// Tsunami mode parameters.
	TsunamiSMBCap            float64 `json:"tsunamiSmbCap" envconfig:"TSUNAMI_SMB_CAP"`
	TsunamiSMBCapScaling     bool    `json:"tsunamiSmbCapScaling" envconfig:"TSUNAMI_SMB_CAP_SCALING"`
	TsunamiInsulinReqPct     int     `json:"tsunamiInsulinReqPct" envconfig:"TSUNAMI_INSULIN_REQ_PCT"`
	TsunamiActivityTarget    int     `json:"tsunamiActivityTarget" envconfig:"TSUNAMI_ACTIVITY_TARGET"`
	TsunamiDeltaScoreDivisor int     `json:"tsunamiDeltaScoreDivisor" envconfig:"TSUNAMI_DELTA_SCORE_DIVISOR"`
}

// Default returns the preference set a fresh install runs with. Dosing
// features default off; ceilings default conservative.
func Default() Preferences {
	return Preferences{
		Enabled:                  true,
		UseDynamicSensitivity:    false,
		AdjustmentFactorPct:      100,
		AdjustSensitivity:        false,
		UseAutosens:              false,
		AutosensMax:              1.2,
		UseSMB:                   false,
		SMBInterval:              3,
		MaxSMBBasalMin:           30,
		MaxUAMSMBBasalMin:        30,
		UseUAM:                   false,
		MaxIOB:                   3.0,
		MaxBasal:                 1.0,
		MaxDailyMultiplier:       3.0,
		CurrentBasalMultiplier:   4.0,
		EnableWave:               false,
		WaveStart:                22.0,
		WaveEnd:                  5.0,
		WaveSMBCap:               0.0,
		WaveInsulinReqPct:        65,
		WaveActivityTarget:       100,
		WaveDeltaScoreDivisor:    6,
		TsunamiSMBCap:            0.0,
		TsunamiInsulinReqPct:     65,
		TsunamiActivityTarget:    100,
		TsunamiDeltaScoreDivisor: 6,
	}
}
