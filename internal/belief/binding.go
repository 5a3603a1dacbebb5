package belief

import (
	"strconv"
	"time"

	"github.com/fyrsmithlabs/inferd/internal/variable"
)

// Standard variable names.
const (
	VarResult = "result"
	VarScore  = "score"
	VarTrait  = "trait"
)

// Extractor pulls evidence for one variable out of an Observation. It returns
// false when the Observation says nothing about the variable.
type Extractor func(Observation) (variable.Evidence, bool)

// Binding routes Observations to a variable.
type Binding struct {
	Spec    variable.Spec
	Extract Extractor
}

// Bind is shorthand for constructing a Binding.
func Bind(spec variable.Spec, extract Extractor) Binding {
	return Binding{Spec: spec, Extract: extract}
}

// WithHalfLife returns a copy of b whose variable decays with the given half-life.
func (b Binding) WithHalfLife(d time.Duration) Binding {
	b.Spec.HalfLife = d
	return b
}

// OutcomeBinding feeds a binary variable from Observation.Outcome. Neutral
// and empty outcomes carry no evidence.
func OutcomeBinding(name string) Binding {
	return Bind(variable.Spec{Name: name, Family: variable.FamilyBinary}, func(o Observation) (variable.Evidence, bool) {
		var success bool
		switch {
		case o.Outcome.IsSuccess():
			success = true
		case o.Outcome.IsFailure():
			success = false
		default:
			return variable.Evidence{}, false
		}
		return variable.Evidence{Outcome: &success}, true
	})
}

// ScoreBinding feeds a continuous_01 variable from Observation.Score. A
// "weight" metadata entry overrides the default pseudo-trial weight of 1.
func ScoreBinding(name string) Binding {
	return Bind(variable.Spec{Name: name, Family: variable.FamilyContinuous01}, func(o Observation) (variable.Evidence, bool) {
		if o.Score == nil {
			return variable.Evidence{}, false
		}
		score := *o.Score
		return variable.Evidence{Score: &score, Weight: MetadataFloat(o.Metadata, "weight", 1)}, true
	})
}

// LabelBinding feeds a categorical variable with a fixed label.
func LabelBinding(name, label string) Binding {
	return Bind(variable.Spec{Name: name, Family: variable.FamilyCategorical}, func(Observation) (variable.Evidence, bool) {
		if label == "" {
			return variable.Evidence{}, false
		}
		return variable.Evidence{Label: label}, true
	})
}

// TraitBinding feeds a latent_trait variable from Observation.Score.
func TraitBinding(spec variable.Spec, precision float64) Binding {
	spec.Family = variable.FamilyLatentTrait
	return Bind(spec, func(o Observation) (variable.Evidence, bool) {
		if o.Score == nil {
			return variable.Evidence{}, false
		}
		v := *o.Score
		return variable.Evidence{Value: &v, Precision: precision}, true
	})
}

// MetadataFloat parses a numeric metadata entry, returning fallback when it
// is missing or malformed.
func MetadataFloat(md map[string]string, key string, fallback float64) float64 {
	raw, ok := md[key]
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return f
}
