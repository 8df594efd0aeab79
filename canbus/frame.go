package canbus

import "errors"

// Identifier limits.
const (
	maxStdID = 0x7FF
	maxExtID = 0x1FFFFFFF
)

// Payload limits per backend.
const (
	// MaxFDData is the payload limit of the FD-capable Busmust backend.
	MaxFDData = 64
	// MaxClassicData is the payload limit of the classic-CAN PCAN backend.
	MaxClassicData = 8
)

var (
	// ErrClosed indicates the bus has been closed.
	ErrClosed = errors.New("canbus: closed")
	// ErrUnsupportedBusType indicates an unrecognized bus-type token.
	ErrUnsupportedBusType = errors.New("canbus: unsupported bustype")
	// ErrUnsupportedBitrate indicates a bitrate the backend cannot express.
	ErrUnsupportedBitrate = errors.New("canbus: unsupported bitrate")
	// ErrListenerRegistered indicates a second listener registration for an
	// event kind that already has one.
	ErrListenerRegistered = errors.New("canbus: listener already registered")
	// ErrInvalidID indicates an identifier above the 29-bit extended range.
	ErrInvalidID = errors.New("canbus: invalid identifier")
)

// Frame is one CAN message as exchanged with callers.
//
// On send, the standard/extended classification follows the identifier: ids
// above 0x7FF are transmitted as extended frames. Payloads longer than the
// backend's maximum (64 bytes for busmust, 8 for pcan) are truncated
// silently. On receive, Extended reflects the backend's frame format and
// Data holds exactly the received payload.
type Frame struct {
	ID       uint32
	Extended bool
	Data     []byte
}

// Error is a backend failure: the vendor SDK's numeric status code together
// with its rendered text. Codes are backend-specific and not unified.
type Error struct {
	Code    uint32
	Message string
}

func (e *Error) Error() string { return e.Message }
