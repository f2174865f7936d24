package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Table routing.
	ErrSeatUnknown = "E_SEAT_UNKNOWN"
	ErrReadOnly    = "E_READ_ONLY"

	// Rule layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidState  = "E_INVALID_STATE"
	ErrNotYourTurn   = "E_NOT_YOUR_TURN"
	ErrInvalidChoice = "E_INVALID_CHOICE"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrCircuitFull   = "E_CIRCUIT_FULL"
	ErrRoundClosed   = "E_ROUND_CLOSED"
	ErrBusy          = "E_BUSY"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrSeatUnknown:     {},
	ErrReadOnly:        {},
	ErrBadRequest:      {},
	ErrInvalidState:    {},
	ErrNotYourTurn:     {},
	ErrInvalidChoice:   {},
	ErrNoResource:      {},
	ErrCircuitFull:     {},
	ErrRoundClosed:     {},
	ErrBusy:            {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
