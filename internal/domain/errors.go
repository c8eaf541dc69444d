package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrMissingMetadata     = errors.New("missing staging metadata")
	ErrDownloadFailed      = errors.New("download failed")
	ErrRenderFailed        = errors.New("render failed")
	ErrAssetUnavailable    = errors.New("asset unavailable")
	ErrFulfillmentFailed   = errors.New("fulfillment failed")
)

// ValidationError carries a message that is safe to return to the caller.
type ValidationError struct {
	Message string
}

// Invalid builds a ValidationError with the given user-facing message.
func Invalid(message string) error {
	return &ValidationError{Message: message}
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// RenderError reports a rendering call that produced no usable result.
// Payload keeps the provider response for diagnostics; it is logged, never
// returned to callers of the orchestrated endpoints.
type RenderError struct {
	Status  int
	Reason  string
	Payload json.RawMessage
	Err     error
}

func (e *RenderError) Error() string {
	var b strings.Builder
	b.WriteString("render failed")
	if e.Status > 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RenderError) Unwrap() []error {
	errs := []error{ErrRenderFailed, ErrUpstreamUnavailable}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// DownloadError reports a failed fetch of a rendered asset.
type DownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("download %s: status %d", e.URL, e.Status)
}

func (e *DownloadError) Unwrap() []error {
	errs := []error{ErrDownloadFailed}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
