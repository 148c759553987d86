package sbus

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by this module's codec, transports and
// protocol engine wraps exactly one of these roots, so callers classify with
// errors.Is or KindOf.
var (
	// ErrTimeout indicates no complete response arrived within the deadline.
	ErrTimeout = errors.New("sbus: timeout")
	// ErrCRC indicates a telegram failed its CRC-16 integrity check.
	ErrCRC = errors.New("sbus: CRC mismatch")
	// ErrProtocol indicates a malformed or unexpected telegram structure.
	ErrProtocol = errors.New("sbus: protocol error")
	// ErrValidation indicates a caller supplied an out-of-range argument.
	ErrValidation = errors.New("sbus: validation error")
	// ErrConnection indicates the transport is unusable (not connected, closed, I/O failure).
	ErrConnection = errors.New("sbus: connection error")
)

// Protocol error details.
var (
	ErrTooShort          = fmt.Errorf("%w: telegram too short", ErrProtocol)
	ErrLengthMismatch    = fmt.Errorf("%w: length field mismatch", ErrProtocol)
	ErrSequenceMismatch  = fmt.Errorf("%w: sequence mismatch", ErrProtocol)
	ErrInvalidAttribute  = fmt.Errorf("%w: invalid attribute", ErrProtocol)
	ErrUnexpectedPayload = fmt.Errorf("%w: unexpected payload length", ErrProtocol)
)

var (
	// ErrOutOfRange is returned before any I/O when an address, count or value is out of bounds.
	ErrOutOfRange = fmt.Errorf("%w: out of range", ErrValidation)
	// ErrNotConnected is returned by transports used before Connect or after Disconnect.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrConnection)
)

// Kind is the coarse classification of an error chain.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTimeout
	KindCRC
	KindProtocol
	KindValidation
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindCRC:
		return "crc"
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of err, or KindUnknown when err does not wrap any
// of the kind roots. A nil error is KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrCRC):
		return KindCRC
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConnection):
		return KindConnection
	default:
		return KindUnknown
	}
}
