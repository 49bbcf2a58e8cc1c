package inference

import (
	"errors"
	"fmt"
)

// Sentinel kinds for inference failures.
var (
	ErrConnect      = errors.New("connect to inference space failed")
	ErrNotConnected = errors.New("inference space not connected")
	ErrTransport    = errors.New("inference call failed")
	ErrParse        = errors.New("unexpected inference response")
)

// ParseError reports a response that did not have the expected shape.
// Raw holds the offending response text for diagnosis.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrParse.Error(), e.Reason)
}

// Is makes errors.Is(err, ErrParse) match.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

func parseErrorf(raw []byte, format string, args ...any) *ParseError {
	return &ParseError{Raw: string(raw), Reason: fmt.Sprintf(format, args...)}
}

// RawResponse extracts the raw response text from a parse failure.
func RawResponse(err error) (string, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Raw, true
	}
	return "", false
}
