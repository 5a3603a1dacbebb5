package variable

// Family identifies the statistical model a Variable uses.
type Family string

const (
	FamilyBinary       Family = "binary"
	FamilyContinuous01 Family = "continuous_01"
	FamilyOrdinal      Family = "ordinal_k"
	FamilyCount        Family = "count"
	FamilyTimeToEvent  Family = "time_to_event"
	FamilyCategorical  Family = "categorical"
	FamilyLatentTrait  Family = "latent_trait"
)

// Families lists every supported family.
var Families = []Family{
	FamilyBinary,
	FamilyContinuous01,
	FamilyOrdinal,
	FamilyCount,
	FamilyTimeToEvent,
	FamilyCategorical,
	FamilyLatentTrait,
}

// IsValid reports whether f is a known family.
func (f Family) IsValid() bool {
	for _, known := range Families {
		if f == known {
			return true
		}
	}
	return false
}

// IsSuccessLike reports whether the family models a success probability and
// therefore contributes to a Summary's pooled success estimate.
func (f Family) IsSuccessLike() bool {
	return f == FamilyBinary || f == FamilyContinuous01
}

func (f Family) String() string {
	return string(f)
}
