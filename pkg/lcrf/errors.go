package lcrf

import (
	"errors"
	"fmt"
)

var (
	// ErrIO reports a failure of the underlying stream or file.
	ErrIO = errors.New("lcrf: i/o failure")

	// ErrProtocolViolation reports a writer call made outside its legal state,
	// or arguments that would break the file's invariants.
	ErrProtocolViolation = errors.New("lcrf: protocol violation")

	// ErrFormat reports a file that is not a valid lCRF model.
	ErrFormat = errors.New("lcrf: format error")

	// ErrTooLarge reports content that cannot be addressed with 32-bit offsets.
	ErrTooLarge = errors.New("lcrf: exceeds 32-bit offsets")

	// ErrIDOutOfRange reports a reader query outside a chunk's id space.
	ErrIDOutOfRange = errors.New("lcrf: id out of range")
)

// ProtocolError describes a rejected writer call.
type ProtocolError struct {
	Op     string
	State  string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("lcrf: %s in state %s: %s", e.Op, e.State, e.Reason)
	}
	return fmt.Sprintf("lcrf: %s not allowed in state %s", e.Op, e.State)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocolViolation }

func ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

func formatErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}
