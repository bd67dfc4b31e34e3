package citizen

import "errors"

var (
	// ErrInvariantViolation is returned when a bound home or work association
	// would be replaced by a different building. Callers must clear first.
	ErrInvariantViolation = errors.New("citizen: invariant violation")

	// ErrWrongBuildingRole is returned when a work building is offered as a
	// home or the other way around.
	ErrWrongBuildingRole = errors.New("citizen: wrong building role")

	// ErrMismatchedIdentity is returned when an entity representing a
	// different citizen is attached.
	ErrMismatchedIdentity = errors.New("citizen: mismatched identity")

	// ErrMalformedRecord is returned when a durable document or a view blob
	// is missing required structure.
	ErrMalformedRecord = errors.New("citizen: malformed record")
)
