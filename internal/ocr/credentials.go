package ocr

import (
	"context"
	"os"
	"strings"

	"google.golang.org/api/option"
)

// googleClientOptions returns credential options from GOOGLE_CREDENTIALS
// (inline JSON) or GOOGLE_APPLICATION_CREDENTIALS (file path). An empty result
// means the client falls back to application default credentials.
func googleClientOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

// getEnvVar returns the first non-empty value among the given environment variables.
func getEnvVar(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}

// classifyCloudError maps a Google API error to one of the package sentinels.
func classifyCloudError(op string, err error, service string) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED") || strings.Contains(errStr, "UNAUTHENTICATED"):
		return WrapOCRError(op, ErrMissingCredentials, "insufficient permissions for "+service)
	case strings.Contains(errStr, "QUOTA_EXCEEDED") || strings.Contains(errStr, "RESOURCE_EXHAUSTED"):
		return WrapOCRError(op, ErrQuotaExceeded, service+" quota exceeded")
	case strings.Contains(errStr, "DeadlineExceeded") || strings.Contains(errStr, "context deadline exceeded"):
		return WrapOCRError(op, context.DeadlineExceeded, service+" timeout")
	case strings.Contains(errStr, "Canceled") || strings.Contains(errStr, "context canceled"):
		return WrapOCRError(op, ErrContextCanceled, service+" call canceled")
	default:
		return WrapOCRError(op, ErrRecognitionFailed, service+": "+errStr)
	}
}
