package ocr

import (
	"errors"
	"fmt"

	"redactor/internal/imageio"
)

// Common OCR processing errors
var (
	// ErrEngineUnavailable is returned when an engine could not be initialized
	// or is not compiled into this binary.
	ErrEngineUnavailable = errors.New("OCR engine unavailable")

	// ErrMissingCredentials is returned when a cloud engine has no credentials configured.
	ErrMissingCredentials = errors.New("missing credentials for OCR engine")

	// ErrRecognitionFailed is returned when an engine fails on an otherwise valid image.
	ErrRecognitionFailed = errors.New("OCR recognition failed")

	// ErrInvalidEngineOutput is returned when an engine response cannot be mapped to text blocks.
	ErrInvalidEngineOutput = errors.New("OCR engine returned invalid output")

	// ErrQuotaExceeded is returned when a cloud provider rejects a call for quota reasons.
	ErrQuotaExceeded = errors.New("OCR provider quota exceeded")

	// ErrContextCanceled is returned when the context is canceled during processing.
	ErrContextCanceled = errors.New("OCR processing was canceled")

	// ErrUndecodableImage is returned when the input is not a readable image.
	// It is the only extraction error surfaced to callers of the pipeline.
	ErrUndecodableImage = imageio.ErrUndecodableImage

	// ErrImageTooLarge is returned when the input exceeds the 20MB limit.
	ErrImageTooLarge = imageio.ErrImageTooLarge

	// ErrEmptyImage is returned for zero-length input.
	ErrEmptyImage = imageio.ErrEmptyImage
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Recognize", "NewDocumentAIEngine").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	return NewOCRError(op, err, details)
}
