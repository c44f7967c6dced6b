// Package activity samples the insulin activity curve at several time
// offsets and aggregates the samples into the four rolling sums the dosing
// algorithm consumes as delta-prediction inputs.
package activity

import (
	"math"
	"time"

	"github.com/SimonXuku/tsunami/internal/insulin"
)

// #region constants

const (
	// sensorLagMinutes compensates for the CGM reporting lag: the current
	// reading reflects blood glucose from about this long ago.
	sensorLagMinutes = -10

	// historicCenterMinutes centers the past-activity window used as the
	// activity target baseline.
	historicCenterMinutes = -20

	// pdPeakMinutes is the fixed activity-prediction peak for
	// pharmacodynamic-only insulin models, which expose no usable
	// pharmacokinetic peak.
	pdPeakMinutes = 65
)

// #endregion constants

// #region sums

// Sums are the four rolling activity aggregates. Each is the sum (not
// average) of five one-minute-spaced samples, rounded to 4 decimals.
// Cheap to compute, so never cached.
type Sums struct {
	Current   float64 // offsets 0..-4 min: activity over the last 5 minutes
	Future    float64 // centered at the prediction peak
	SensorLag float64 // centered at -10 min
	Historic  float64 // offsets -22..-18 min
}

// PredictionMinutes returns the activity-prediction offset for a model:
// its pharmacodynamic peak, or the fixed 65-minute peak for the two
// pharmacodynamic-only model IDs.
func PredictionMinutes(model insulin.Model) float64 {
	switch model.ID() {
	case insulin.ModelIDPharmacodynamicBolus, insulin.ModelIDPharmacodynamicExtended:
		return pdPeakMinutes
	default:
		return model.PeakMinutes()
	}
}

// #endregion sums

// #region predictor

// Predictor computes activity sums from an insulin activity calculator.
type Predictor struct {
	calc *insulin.Calculator
}

// NewPredictor wires a predictor to its calculator.
func NewPredictor(calc *insulin.Calculator) *Predictor {
	return &Predictor{calc: calc}
}

// Predict evaluates all four rolling sums at the given cycle instant.
func (p *Predictor) Predict(now time.Time) Sums {
	predMinutes := PredictionMinutes(p.calc.Model())

	return Sums{
		Current:   p.window(now, 0, -4, now),
		Future:    p.window(now, predMinutes+2, predMinutes-2, now),
		SensorLag: p.window(now, sensorLagMinutes+2, sensorLagMinutes-2, now),
		Historic:  p.window(now, historicCenterMinutes+2, historicCenterMinutes-2, now),
	}
}

// window sums five samples from the `from` offset down to the `to` offset,
// one minute apart, doses cut off at the cycle instant.
func (p *Predictor) window(now time.Time, from, to float64, cutoff time.Time) float64 {
	var sum float64
	for offset := from; offset >= to; offset-- {
		at := now.Add(time.Duration(offset * float64(time.Minute)))
		sum += p.calc.ActivityAt(at, cutoff)
	}
	return roundTo4(sum)
}

func roundTo4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

// #endregion predictor
