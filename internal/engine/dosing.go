package engine

import "math"

// #region reference-dosing

// ReferenceDosing is the deterministic dosing algorithm shipped with the
// engine. It proposes a temporary basal from the glucose excursion over the
// target band and, when SMB delivery survives the constraint chain and the
// minimum bolus interval has passed, a capped micro-bolus covering part of
// the remaining insulin requirement.
func ReferenceDosing(in AlgorithmInput) Suggestion {
	target := (in.TargetLow + in.TargetHigh) / 2
	sens := in.ProfileISF
	if in.VariableSens > 0 {
		sens = in.VariableSens
	}
	if in.SensitivityRatio > 0 {
		sens /= in.SensitivityRatio
	}

	// Insulin needed to bring glucose to target, net of what is on board.
	// The mode's delta reduction discounts the trend contribution.
	trend := in.ShortAvgDelta * (1 - in.Mode.DeltaReductionPCT)
	insulinReq := (in.Glucose+trend*5-target)/sens - in.IOB

	if insulinReq <= 0 {
		// Below target or covered by IOB: suspend to zero basal.
		zero := 0.0
		return Suggestion{Rate: &zero}
	}

	rate := roundTo2(math.Min(in.CurrentBasal+insulinReq*2, in.MaxBasal))
	s := Suggestion{Rate: &rate}

	if in.SMBEnabled && in.MaxSMB > 0 && in.IOB < in.MaxIOB &&
		in.MinutesSinceBolus >= float64(in.SMBMinInterval) {
		smb := insulinReq * in.Mode.InsulinReqPCT
		smb = math.Min(smb, in.MaxSMB)
		smb = math.Min(smb, in.MaxIOB-in.IOB)
		if smb = roundTo2(smb); smb > 0 {
			s.SMB = &smb
		}
	}
	return s
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// #endregion reference-dosing
