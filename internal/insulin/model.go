// Package insulin provides the pharmacokinetic insulin model and the
// activity calculator built on top of dose history.
package insulin

import "math"

// #region model

// Model is the supplied pharmacokinetic curve. The engine only decides at
// which time offsets to sample it and how to combine the samples.
type Model interface {
	// Activity returns activity units contributed by a dose taken
	// elapsedMinutes ago. Zero outside (0, DIA].
	Activity(elapsedMinutes, dose float64) float64
	PeakMinutes() float64
	DIAMinutes() float64
	ID() int
}

// Pharmacodynamic-only model identifiers. These models carry no usable
// pharmacokinetic peak, so activity prediction falls back to a fixed
// 65-minute peak.
const (
	ModelIDPharmacodynamicBolus    = 105
	ModelIDPharmacodynamicExtended = 205
)

// #endregion model

// #region exponential

// Exponential is an exponential-curve insulin model with a configurable
// peak and duration of action.
type Exponential struct {
	ModelID int
	Peak    float64 // minutes to peak activity
	DIA     float64 // duration of insulin action, minutes
}

// RapidActing returns the default rapid-acting preset (75 min peak, 5 h DIA).
func RapidActing() Exponential {
	return Exponential{ModelID: 1, Peak: 75, DIA: 300}
}

// UltraRapid returns the ultra-rapid preset (55 min peak, 5 h DIA).
func UltraRapid() Exponential {
	return Exponential{ModelID: 2, Peak: 55, DIA: 300}
}

func (m Exponential) PeakMinutes() float64 { return m.Peak }
func (m Exponential) DIAMinutes() float64  { return m.DIA }
func (m Exponential) ID() int              { return m.ModelID }

// curve returns the tau, a, S parameters of the exponential model. The
// curve is normalized so activity integrates to the full dose over the DIA
// and remaining insulin reaches exactly zero at the DIA.
func (m Exponential) curve() (tau, a, s float64) {
	dia := m.DIA
	if dia <= 2*m.Peak {
		dia = 3 * m.Peak
	}
	tau = m.Peak * (1 - m.Peak/dia) / (1 - 2*m.Peak/dia)
	a = 2 * tau / dia
	s = 1 / (1 - a + (1+a)*math.Exp(-dia/tau))
	return tau, a, s
}

// Activity evaluates the exponential activity curve
// a(t) = dose * (S/tau^2) * t * (1 - t/DIA) * exp(-t/tau).
func (m Exponential) Activity(elapsedMinutes, dose float64) float64 {
	if elapsedMinutes <= 0 || elapsedMinutes >= m.DIA || dose == 0 {
		return 0
	}
	tau, _, s := m.curve()
	t := elapsedMinutes
	return dose * (s / (tau * tau)) * t * (1 - t/m.DIA) * math.Exp(-t/tau)
}

// Remaining returns the fraction of a unit dose still active after
// elapsedMinutes. Used for IOB reporting.
func (m Exponential) Remaining(elapsedMinutes float64) float64 {
	if elapsedMinutes <= 0 {
		return 1
	}
	if elapsedMinutes >= m.DIA {
		return 0
	}
	tau, a, s := m.curve()
	t := elapsedMinutes
	remaining := 1 - s*(1-a)*((t*t/(tau*m.DIA*(1-a))-t/tau-1)*math.Exp(-t/tau)+1)
	return math.Max(0, math.Min(1, remaining))
}

// #endregion exponential
