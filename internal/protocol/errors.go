package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest  = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion     = "E_PROTO_VERSION"
	ErrProtoUnsupported = "E_PROTO_UNSUPPORTED"

	// Session layer.
	ErrBadToken  = "E_BAD_TOKEN"
	ErrNotJoined = "E_NOT_JOINED"

	// Rule layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrStale         = "E_STALE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrProtoVersion:     {},
	ErrProtoUnsupported: {},
	ErrBadToken:         {},
	ErrNotJoined:        {},
	ErrBadRequest:       {},
	ErrInvalidTarget:    {},
	ErrRateLimit:        {},
	ErrStale:            {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
