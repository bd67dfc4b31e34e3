package colony

import (
	"errors"

	"colonycraft.ai/internal/protocol"
	"colonycraft.ai/internal/sim/citizen"
)

var (
	ErrCitizenNotFound     = errors.New("colony: citizen not found")
	ErrBuildingNotFound    = errors.New("colony: building not found")
	ErrBuildingExists      = errors.New("colony: building already exists")
	ErrUnknownBuildingKind = errors.New("colony: unknown building kind")
	ErrStopped             = errors.New("colony: stopped")
)

// ErrorCode maps colony and citizen errors to protocol error codes.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCitizenNotFound), errors.Is(err, ErrBuildingNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, ErrBuildingExists), errors.Is(err, citizen.ErrInvariantViolation):
		return protocol.ErrConflict
	case errors.Is(err, ErrUnknownBuildingKind):
		return protocol.ErrBadRequest
	case errors.Is(err, citizen.ErrWrongBuildingRole):
		return protocol.ErrInvalidTarget
	case errors.Is(err, citizen.ErrMismatchedIdentity):
		return protocol.ErrMismatchedIdentity
	case errors.Is(err, citizen.ErrMalformedRecord):
		return protocol.ErrMalformedRecord
	case errors.Is(err, ErrStopped):
		return protocol.ErrColonyBusy
	default:
		return protocol.ErrInternal
	}
}
