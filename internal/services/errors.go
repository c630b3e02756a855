package services

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable classification of a service
// failure, surfaced to callers alongside a human-readable message.
type Kind string

const (
	KindUnsupportedMediaType Kind = "UNSUPPORTED_MEDIA_TYPE"
	KindPayloadTooLarge      Kind = "PAYLOAD_TOO_LARGE"
	KindIngestFailed         Kind = "INGEST_FAILED"
	KindDocumentNotFound     Kind = "DOCUMENT_NOT_FOUND"
	KindOCRTimeout           Kind = "OCR_TIMEOUT"
	KindOCRJobFailed         Kind = "OCR_JOB_FAILED"
)

// Error is a classified service failure. Failures without a Kind are
// unexpected and must be surfaced to callers as generic errors.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a classified error around an underlying cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the classification from err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}
