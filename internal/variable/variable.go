package variable

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stats holds the sufficient statistics for one family.
type Stats interface {
	isStats()
	clone() Stats
}

// BetaStats backs the binary and continuous_01 families.
type BetaStats struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// OrdinalStats holds Dirichlet counts for levels 0..k-1.
type OrdinalStats struct {
	Counts []float64 `json:"counts"`
}

// GammaStats is the Gamma posterior over a Poisson rate.
type GammaStats struct {
	Shape float64 `json:"shape"`
	Rate  float64 `json:"rate"`
}

// SurvivalStats is the Gamma posterior over an exponential hazard.
// Events and Censored count observed and right-censored exposures.
type SurvivalStats struct {
	Shape    float64 `json:"shape"`
	Rate     float64 `json:"rate"`
	Events   float64 `json:"events"`
	Censored float64 `json:"censored"`
}

// CategoricalStats holds Dirichlet counts keyed by label.
type CategoricalStats struct {
	Counts map[string]float64 `json:"counts"`
}

// LatentStats is a precision-weighted estimate on [0,1].
type LatentStats struct {
	Mean      float64 `json:"mean"`
	Precision float64 `json:"precision"`
}

func (BetaStats) isStats()        {}
func (OrdinalStats) isStats()     {}
func (GammaStats) isStats()       {}
func (SurvivalStats) isStats()    {}
func (CategoricalStats) isStats() {}
func (LatentStats) isStats()      {}

func (s BetaStats) clone() Stats     { return s }
func (s GammaStats) clone() Stats    { return s }
func (s SurvivalStats) clone() Stats { return s }
func (s LatentStats) clone() Stats   { return s }

func (s OrdinalStats) clone() Stats {
	counts := make([]float64, len(s.Counts))
	copy(counts, s.Counts)
	return OrdinalStats{Counts: counts}
}

func (s CategoricalStats) clone() Stats {
	counts := make(map[string]float64, len(s.Counts))
	for k, v := range s.Counts {
		counts[k] = v
	}
	return CategoricalStats{Counts: counts}
}

// Priors shared by the families that are not flat.
const (
	gammaPriorShape   = 1.0
	gammaPriorRate    = 1.0
	latentPriorMean   = 0.5
	latentPriorPrec   = 1.0
	defaultOrdinalLvl = 5
)

// Spec declares a variable a Summary should carry.
type Spec struct {
	Name     string        `json:"name"`
	Family   Family        `json:"family"`
	Levels   int           `json:"levels,omitempty"`
	HalfLife time.Duration `json:"half_life,omitempty"`
}

// Variable is a named statistical model over one aspect of an agent.
type Variable struct {
	Name          string
	Family        Family
	Stats         Stats
	HalfLife      time.Duration
	LastUpdatedAt time.Time
}

// New creates a variable at its prior.
func New(spec Spec) (Variable, error) {
	v := Variable{Name: spec.Name, Family: spec.Family, HalfLife: spec.HalfLife}
	switch spec.Family {
	case FamilyBinary, FamilyContinuous01:
		v.Stats = BetaStats{}
	case FamilyOrdinal:
		levels := spec.Levels
		if levels == 0 {
			levels = defaultOrdinalLvl
		}
		if levels < 2 {
			return Variable{}, fmt.Errorf("variable %q: %w", spec.Name, ErrInvalidLevels)
		}
		v.Stats = OrdinalStats{Counts: make([]float64, levels)}
	case FamilyCount:
		v.Stats = GammaStats{Shape: gammaPriorShape, Rate: gammaPriorRate}
	case FamilyTimeToEvent:
		v.Stats = SurvivalStats{Shape: gammaPriorShape, Rate: gammaPriorRate}
	case FamilyCategorical:
		v.Stats = CategoricalStats{Counts: map[string]float64{}}
	case FamilyLatentTrait:
		v.Stats = LatentStats{Mean: latentPriorMean, Precision: latentPriorPrec}
	default:
		return Variable{}, fmt.Errorf("variable %q family %q: %w", spec.Name, spec.Family, ErrUnknownFamily)
	}
	return v, nil
}

// Clone returns a deep copy of v.
func (v Variable) Clone() Variable {
	out := v
	if v.Stats != nil {
		out.Stats = v.Stats.clone()
	}
	return out
}

type variableJSON struct {
	Name          string          `json:"name"`
	Family        Family          `json:"family"`
	Stats         json.RawMessage `json:"stats"`
	HalfLife      time.Duration   `json:"half_life,omitempty"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
}

// MarshalJSON encodes the variable with its family as the discriminator.
func (v Variable) MarshalJSON() ([]byte, error) {
	stats, err := json.Marshal(v.Stats)
	if err != nil {
		return nil, fmt.Errorf("marshal %s stats: %w", v.Family, err)
	}
	return json.Marshal(variableJSON{
		Name:          v.Name,
		Family:        v.Family,
		Stats:         stats,
		HalfLife:      v.HalfLife,
		LastUpdatedAt: v.LastUpdatedAt,
	})
}

// UnmarshalJSON decodes stats according to the family field.
func (v *Variable) UnmarshalJSON(data []byte) error {
	var raw variableJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var stats Stats
	var err error
	switch raw.Family {
	case FamilyBinary, FamilyContinuous01:
		var s BetaStats
		err = json.Unmarshal(raw.Stats, &s)
		stats = s
	case FamilyOrdinal:
		var s OrdinalStats
		err = json.Unmarshal(raw.Stats, &s)
		if err == nil && len(s.Counts) < 2 {
			err = ErrInvalidLevels
		}
		stats = s
	case FamilyCount:
		var s GammaStats
		err = json.Unmarshal(raw.Stats, &s)
		stats = s
	case FamilyTimeToEvent:
		var s SurvivalStats
		err = json.Unmarshal(raw.Stats, &s)
		stats = s
	case FamilyCategorical:
		var s CategoricalStats
		err = json.Unmarshal(raw.Stats, &s)
		if s.Counts == nil {
			s.Counts = map[string]float64{}
		}
		stats = s
	case FamilyLatentTrait:
		var s LatentStats
		err = json.Unmarshal(raw.Stats, &s)
		stats = s
	default:
		return fmt.Errorf("decode variable %q: %w", raw.Name, ErrUnknownFamily)
	}
	if err != nil {
		return fmt.Errorf("decode %s stats for %q: %w", raw.Family, raw.Name, err)
	}

	*v = Variable{
		Name:          raw.Name,
		Family:        raw.Family,
		Stats:         stats,
		HalfLife:      raw.HalfLife,
		LastUpdatedAt: raw.LastUpdatedAt,
	}
	return nil
}
