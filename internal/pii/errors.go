package pii

import (
	"errors"
	"fmt"
)

var (
	// ErrRecognizerUnavailable is returned when no recognizer backend is configured or reachable.
	ErrRecognizerUnavailable = errors.New("entity recognizer unavailable")

	// ErrRecognizerFailed is returned when a recognizer call fails.
	ErrRecognizerFailed = errors.New("entity recognizer failed")

	// ErrInvalidRecognizerOutput is returned when a recognizer reply cannot be interpreted.
	ErrInvalidRecognizerOutput = errors.New("entity recognizer returned invalid output")
)

// DetectionError wraps recognizer failures with the operation that failed.
type DetectionError struct {
	Op      string
	Err     error
	Details string
}

func (e *DetectionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("pii: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("pii: %s failed: %v", e.Op, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

func (e *DetectionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDetectionError creates a DetectionError.
func NewDetectionError(op string, err error, details string) *DetectionError {
	return &DetectionError{Op: op, Err: err, Details: details}
}

// WrapDetectionError wraps err unless it already is a DetectionError.
func WrapDetectionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var detErr *DetectionError
	if errors.As(err, &detErr) {
		return err
	}
	return NewDetectionError(op, err, details)
}
