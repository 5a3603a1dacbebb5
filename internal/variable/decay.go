package variable

import (
	"math"
	"time"
)

// latentPrecisionFloor bounds how uncertain a decayed latent trait can become.
const latentPrecisionFloor = latentPriorPrec

// DecayFactor returns 0.5^(elapsed/halfLife), or 1 when decay does not apply.
func DecayFactor(elapsed, halfLife time.Duration) float64 {
	if halfLife <= 0 || elapsed <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(elapsed)/float64(halfLife))
}

// Decay regresses v toward its prior according to the time since its last
// update. Pseudo-counts shrink, so older evidence weighs less against new
// evidence; point estimates of Beta and Dirichlet families are preserved.
// The returned variable is stamped with now so decay is never applied twice
// for the same interval.
func Decay(v Variable, now time.Time) Variable {
	if v.HalfLife <= 0 || v.LastUpdatedAt.IsZero() || !now.After(v.LastUpdatedAt) {
		return v
	}
	f := DecayFactor(now.Sub(v.LastUpdatedAt), v.HalfLife)
	out := v.Clone()

	switch s := out.Stats.(type) {
	case BetaStats:
		s.Alpha *= f
		s.Beta *= f
		out.Stats = s
	case OrdinalStats:
		for i := range s.Counts {
			s.Counts[i] *= f
		}
		out.Stats = s
	case GammaStats:
		s.Shape = gammaPriorShape + (s.Shape-gammaPriorShape)*f
		s.Rate = gammaPriorRate + (s.Rate-gammaPriorRate)*f
		out.Stats = s
	case SurvivalStats:
		s.Shape = gammaPriorShape + (s.Shape-gammaPriorShape)*f
		s.Rate = gammaPriorRate + (s.Rate-gammaPriorRate)*f
		s.Events *= f
		s.Censored *= f
		out.Stats = s
	case CategoricalStats:
		for label := range s.Counts {
			s.Counts[label] *= f
		}
		out.Stats = s
	case LatentStats:
		if s.Precision > latentPrecisionFloor {
			s.Precision = latentPrecisionFloor + (s.Precision-latentPrecisionFloor)*f
		}
		out.Stats = s
	}

	out.LastUpdatedAt = now
	return out
}
