package variable

import (
	"math"
	"time"
)

// Evidence is one piece of information routed to a variable. Only the fields
// relevant to the target family are read; a variable that finds nothing it can
// use is left unchanged.
type Evidence struct {
	// Outcome feeds binary variables.
	Outcome *bool
	// Score feeds continuous_01 variables, weighted by Weight.
	Score *float64
	// Level feeds ordinal variables (0-based).
	Level *int
	// Count feeds count variables over Weight units of exposure.
	Count *float64
	// Duration feeds time_to_event variables; Censored marks an exposure
	// that ended without the event.
	Duration *float64
	Censored bool
	// Label feeds categorical variables with Weight pseudo-counts.
	Label string
	// Value feeds latent_trait variables with the given Precision.
	Value     *float64
	Precision float64

	Weight float64
	At     time.Time
}

// ClampUnit clamps x into [0,1]. NaN maps to 0.
func ClampUnit(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func (e Evidence) weight() float64 {
	if e.Weight <= 0 || math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
		return 1
	}
	return e.Weight
}

func usable(p *float64) bool {
	return p != nil && !math.IsNaN(*p) && !math.IsInf(*p, 0)
}

// Update applies e to v and reports whether any statistic changed. v itself
// is never mutated.
func Update(v Variable, e Evidence) (Variable, bool) {
	out := v.Clone()
	applied := false

	switch s := out.Stats.(type) {
	case BetaStats:
		switch {
		case out.Family == FamilyBinary && e.Outcome != nil:
			if *e.Outcome {
				s.Alpha++
			} else {
				s.Beta++
			}
			applied = true
		case out.Family == FamilyContinuous01 && usable(e.Score):
			score := ClampUnit(*e.Score)
			w := e.weight()
			s.Alpha += score * w
			s.Beta += (1 - score) * w
			applied = true
		}
		out.Stats = s

	case OrdinalStats:
		if e.Level != nil && len(s.Counts) > 0 {
			lvl := *e.Level
			if lvl < 0 {
				lvl = 0
			}
			if lvl >= len(s.Counts) {
				lvl = len(s.Counts) - 1
			}
			s.Counts[lvl] += e.weight()
			applied = true
		}
		out.Stats = s

	case GammaStats:
		if usable(e.Count) {
			s.Shape += math.Max(0, *e.Count)
			s.Rate += e.weight()
			applied = true
		}
		out.Stats = s

	case SurvivalStats:
		if usable(e.Duration) {
			d := math.Max(0, *e.Duration)
			s.Rate += d
			if e.Censored {
				s.Censored++
			} else {
				s.Shape++
				s.Events++
			}
			applied = true
		}
		out.Stats = s

	case CategoricalStats:
		if e.Label != "" {
			s.Counts[e.Label] += e.weight()
			applied = true
		}
		out.Stats = s

	case LatentStats:
		if usable(e.Value) {
			p := e.Precision
			if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
				p = 1
			}
			val := ClampUnit(*e.Value)
			s.Mean = (s.Mean*s.Precision + val*p) / (s.Precision + p)
			s.Precision += p
			applied = true
		}
		out.Stats = s
	}

	if applied && !e.At.IsZero() {
		out.LastUpdatedAt = e.At
	}
	return out, applied
}
