package analysis

import (
	"errors"
	"fmt"
)

// Request-level failures. Capability failures never surface as errors; they
// leave the affected field at its default.
var (
	ErrEmptyInput          = errors.New("empty input")
	ErrUnsupportedModality = errors.New("unsupported modality")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrDecode              = errors.New("undecodable input")

	errInternal    = errors.New("internal error")
	errInvalidUTF8 = errors.New("text is not valid UTF-8")
)

// DecodeError reports media bytes that could not be decoded. It matches
// ErrDecode with errors.Is.
type DecodeError struct {
	Media string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid %s data: %v", e.Media, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
