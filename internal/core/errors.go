package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers test with errors.Is.
var (
	// Capture-level, fatal for the whole read.
	ErrUnsupportedFormat = errors.New("pktkit: unsupported capture format")

	// Frame/layer-level, contained within one frame.
	ErrTruncated        = errors.New("pktkit: truncated")
	ErrStructural       = errors.New("pktkit: structural error")
	ErrMaxDepthExceeded = errors.New("pktkit: max depth exceeded")

	// Registry errors
	ErrRegistrySealed  = errors.New("pktkit: registry sealed")
	ErrProtocolUnknown = errors.New("pktkit: protocol not registered")

	// Configuration errors
	ErrConfigInvalid = errors.New("pktkit: invalid configuration")
)

// Error tags reported by raw terminal layers.
const (
	TagUnknown    = "unknown"
	TagTruncated  = "truncated"
	TagStructural = "structural"
	TagMaxDepth   = "max_depth"
)

// ErrorTag maps a dissection error to the tag carried by the raw layer it produced.
func ErrorTag(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTruncated):
		return TagTruncated
	case errors.Is(err, ErrMaxDepthExceeded):
		return TagMaxDepth
	default:
		return TagStructural
	}
}

// DissectError records which protocol failed and where in the frame.
type DissectError struct {
	Protocol string
	Offset   int
	Err      error
}

func (e *DissectError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", e.Protocol, e.Offset, e.Err)
}

func (e *DissectError) Unwrap() error { return e.Err }

// Structuralf returns an ErrStructural wrapping a formatted reason.
func Structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
}

// Truncatedf returns an ErrTruncated wrapping a formatted reason.
func Truncatedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTruncated, fmt.Sprintf(format, args...))
}
