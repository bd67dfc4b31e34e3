package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Colony routing.
	ErrColonyNotFound = "E_COLONY_NOT_FOUND"
	ErrColonyBusy     = "E_COLONY_BUSY"

	// Record layer.
	ErrBadRequest         = "E_BAD_REQUEST"
	ErrNotFound           = "E_NOT_FOUND"
	ErrConflict           = "E_CONFLICT"
	ErrInvalidTarget      = "E_INVALID_TARGET"
	ErrMismatchedIdentity = "E_MISMATCHED_IDENTITY"
	ErrMalformedRecord    = "E_MALFORMED_RECORD"
	ErrInternal           = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrColonyNotFound:     {},
	ErrColonyBusy:         {},
	ErrBadRequest:         {},
	ErrNotFound:           {},
	ErrConflict:           {},
	ErrInvalidTarget:      {},
	ErrMismatchedIdentity: {},
	ErrMalformedRecord:    {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
