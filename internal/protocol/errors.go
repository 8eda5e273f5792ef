package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrVersionMismatch = errors.New("protocol: version mismatch")
	ErrTruncated       = errors.New("protocol: truncated data")
	ErrMalformed       = errors.New("protocol: malformed packet")
	ErrTrailingBytes   = errors.New("protocol: trailing bytes after last field")
	ErrBodyTooLarge    = errors.New("protocol: body too large")
	ErrTooManyFields   = errors.New("protocol: too many fields")
	ErrTooManyEntries  = errors.New("protocol: too many entries")
	ErrEntryTooLarge   = errors.New("protocol: entry too large")
	ErrInvalidLength   = errors.New("protocol: invalid length")
	ErrNilPacket       = errors.New("protocol: nil packet")
)

// BoundsError reports a read that would leave the declared body.
type BoundsError struct {
	Stage     string
	Offset    int
	Need      int
	Remaining int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf(
		"protocol: %s at offset %d needs %d bytes, %d remaining",
		e.Stage,
		e.Offset,
		e.Need,
		e.Remaining,
	)
}

func (e *BoundsError) Unwrap() error {
	return ErrMalformed
}
