package variable

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultCredibleLevel is the interval mass used when callers pass zero.
const DefaultCredibleLevel = 0.95

// Interval is a closed credible interval.
type Interval struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// UnitInterval is the uninformative interval on [0,1].
var UnitInterval = Interval{Lo: 0, Hi: 1}

// PointEstimate returns the family's summary value:
//   - binary, continuous_01: posterior mean success probability
//   - ordinal_k: expected level (0-based)
//   - count: expected rate
//   - time_to_event: expected duration until the event
//   - categorical: posterior share of the most frequent label
//   - latent_trait: current mean
func PointEstimate(v Variable) float64 {
	switch s := v.Stats.(type) {
	case BetaStats:
		return betaMean(s.Alpha, s.Beta)
	case OrdinalStats:
		mean, _ := ordinalMoments(s.Counts)
		return mean
	case GammaStats:
		if s.Rate <= 0 {
			return 0
		}
		return s.Shape / s.Rate
	case SurvivalStats:
		if s.Shape <= 0 {
			return 0
		}
		return s.Rate / s.Shape
	case CategoricalStats:
		_, share := categoricalMode(s.Counts)
		return share
	case LatentStats:
		return s.Mean
	}
	return 0
}

// CredibleInterval returns the central interval holding the given posterior
// mass. Zero or out-of-range levels use DefaultCredibleLevel.
func CredibleInterval(v Variable, level float64) Interval {
	if level <= 0 || level >= 1 || math.IsNaN(level) {
		level = DefaultCredibleLevel
	}
	tail := (1 - level) / 2

	switch s := v.Stats.(type) {
	case BetaStats:
		return BetaInterval(s.Alpha, s.Beta, level)

	case OrdinalStats:
		k := float64(len(s.Counts) - 1)
		total := sum(s.Counts)
		if total == 0 {
			return Interval{Lo: 0, Hi: k}
		}
		mean, variance := ordinalMoments(s.Counts)
		sd := math.Sqrt(variance / (total + 1))
		return normalInterval(mean, sd, tail, 0, k)

	case GammaStats:
		if s.Shape <= 0 || s.Rate <= 0 {
			return Interval{}
		}
		g := distuv.Gamma{Alpha: s.Shape, Beta: s.Rate}
		return Interval{Lo: g.Quantile(tail), Hi: g.Quantile(1 - tail)}

	case SurvivalStats:
		if s.Shape <= 0 || s.Rate <= 0 {
			return Interval{}
		}
		// Quantiles of the hazard invert into duration bounds.
		g := distuv.Gamma{Alpha: s.Shape, Beta: s.Rate}
		return Interval{Lo: 1 / g.Quantile(1-tail), Hi: 1 / g.Quantile(tail)}

	case CategoricalStats:
		if len(s.Counts) == 0 {
			return UnitInterval
		}
		label, _ := categoricalMode(s.Counts)
		top := s.Counts[label] + 1
		rest := sum(values(s.Counts)) - s.Counts[label] + float64(len(s.Counts)-1)
		if rest <= 0 {
			rest = 0.5
		}
		b := distuv.Beta{Alpha: top, Beta: rest}
		return Interval{Lo: b.Quantile(tail), Hi: b.Quantile(1 - tail)}

	case LatentStats:
		if s.Precision <= 0 {
			return UnitInterval
		}
		return normalInterval(s.Mean, 1/math.Sqrt(s.Precision), tail, 0, 1)
	}
	return UnitInterval
}

// BetaInterval is the Jeffreys interval for Beta(alpha, beta) pseudo-counts,
// widened where needed so it always contains the posterior mean.
func BetaInterval(alpha, beta, level float64) Interval {
	if level <= 0 || level >= 1 {
		level = DefaultCredibleLevel
	}
	tail := (1 - level) / 2
	alpha, beta = math.Max(alpha, 0), math.Max(beta, 0)
	b := distuv.Beta{Alpha: alpha + 0.5, Beta: beta + 0.5}
	iv := Interval{Lo: b.Quantile(tail), Hi: b.Quantile(1 - tail)}
	if alpha+beta > 0 {
		mean := betaMean(alpha, beta)
		iv.Lo = math.Min(iv.Lo, mean)
		iv.Hi = math.Max(iv.Hi, mean)
	}
	return iv
}

// Distribution returns the smoothed label shares of a categorical variable,
// or nil for any other family.
func Distribution(v Variable) map[string]float64 {
	s, ok := v.Stats.(CategoricalStats)
	if !ok {
		return nil
	}
	total := sum(values(s.Counts)) + float64(len(s.Counts))
	out := make(map[string]float64, len(s.Counts))
	for label, c := range s.Counts {
		out[label] = (c + 1) / total
	}
	return out
}

// LabelCount returns the pseudo-count recorded for label on a categorical variable.
func LabelCount(v Variable, label string) float64 {
	if s, ok := v.Stats.(CategoricalStats); ok {
		return s.Counts[label]
	}
	return 0
}

// Labels returns the labels seen by a categorical variable, sorted.
func Labels(v Variable) []string {
	s, ok := v.Stats.(CategoricalStats)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(s.Counts))
	for label := range s.Counts {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func betaMean(alpha, beta float64) float64 {
	if alpha+beta <= 0 {
		return 0.5
	}
	return alpha / (alpha + beta)
}

func ordinalMoments(counts []float64) (mean, variance float64) {
	total := sum(counts)
	if total == 0 {
		return float64(len(counts)-1) / 2, 0
	}
	var m1, m2 float64
	for i, c := range counts {
		p := c / total
		m1 += float64(i) * p
		m2 += float64(i*i) * p
	}
	return m1, math.Max(0, m2-m1*m1)
}

// categoricalMode picks the most frequent label, ties broken alphabetically.
func categoricalMode(counts map[string]float64) (string, float64) {
	if len(counts) == 0 {
		return "", 0
	}
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best := labels[0]
	for _, label := range labels[1:] {
		if counts[label] > counts[best] {
			best = label
		}
	}
	total := sum(values(counts)) + float64(len(counts))
	return best, (counts[best] + 1) / total
}

func normalInterval(mean, sd, tail, lo, hi float64) Interval {
	if sd == 0 {
		return Interval{Lo: mean, Hi: mean}
	}
	z := distuv.UnitNormal.Quantile(1 - tail)
	return Interval{
		Lo: math.Max(lo, mean-z*sd),
		Hi: math.Min(hi, mean+z*sd),
	}
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total
}

func values(m map[string]float64) []float64 {
	out := make([]float64, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
