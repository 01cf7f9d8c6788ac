package provider

import (
	"errors"
	"fmt"
)

var (
	ErrAPIKeyRequired   = errors.New("API key is required")
	ErrAuth             = errors.New("authentication failed")
	ErrNotFound         = errors.New("endpoint or model not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrTransientServer  = errors.New("transient server error")
	ErrNetwork          = errors.New("network error")
	ErrValidation       = errors.New("validation failed")
	ErrUpload           = errors.New("image upload failed")
	ErrPublish          = errors.New("publish failed")
	ErrNews             = errors.New("news request failed")
	ErrExhaustedRetries = errors.New("exhausted retries")
)

// StatusError is a non-success HTTP response. Body is the raw upstream text.
type StatusError struct {
	Kind       error
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", e.Kind, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Kind
}

// GenerationError is returned by a Generator once it gives up.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("image generation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err belongs to a class worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTransientServer) ||
		errors.Is(err, ErrNetwork)
}

// Message returns the text shown to users for err. Upstream response bodies
// are passed through verbatim.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var se *StatusError
	if errors.As(err, &se) && se.Body != "" {
		return se.Body
	}
	return err.Error()
}
