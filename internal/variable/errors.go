package variable

import "errors"

var (
	// ErrUnknownFamily is returned when a family name is not recognised.
	ErrUnknownFamily = errors.New("unknown variable family")

	// ErrInvalidLevels is returned when an ordinal variable has fewer than two levels.
	ErrInvalidLevels = errors.New("ordinal variable needs at least two levels")

	// ErrFamilyMismatch is returned when decoded stats do not match the declared family.
	ErrFamilyMismatch = errors.New("stats do not match family")
)
