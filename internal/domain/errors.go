package domain

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	// ErrPostNotFound is returned when a post cannot be found in the metadata store.
	ErrPostNotFound = errors.New("post not found")

	// ErrMediaNotFound is returned when a media row cannot be found.
	ErrMediaNotFound = errors.New("media not found")

	// ErrUnresolvableReference is returned when no post id can be extracted from a reference.
	ErrUnresolvableReference = errors.New("no post id in media reference")

	// ErrNoResolvableURL is returned when every resolution strategy came back empty.
	ErrNoResolvableURL = errors.New("no resolvable media URL")

	// ErrInvalidMediaKind is returned for kinds outside image, video, audio and gif.
	ErrInvalidMediaKind = errors.New("invalid media kind")

	// ErrSizeLimitExceeded is returned when a payload is larger than the configured cap.
	ErrSizeLimitExceeded = errors.New("payload exceeds size limit")

	// ErrIntegrityCheck is returned when a written file does not match the bytes received.
	ErrIntegrityCheck = errors.New("integrity check failed")

	// ErrEmptyPayload is returned when the server sent a successful but empty body.
	ErrEmptyPayload = errors.New("empty response body")

	// ErrRateLimited is returned when rate limited by external services.
	ErrRateLimited = errors.New("rate limited")

	// ErrGuestToken is returned when a guest credential could not be obtained.
	ErrGuestToken = errors.New("guest token unavailable")

	// ErrAnalysisFailed is returned when the AI analysis call fails.
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrAlreadyInProgress is returned when a post is already being processed.
	ErrAlreadyInProgress = errors.New("post is already being processed")

	// ErrInvalidAPIKey is returned when the API key is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// TransferError carries the classification of a failed transfer attempt.
type TransferError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Permanent reports whether further attempts cannot succeed.
func (e *TransferError) Permanent() bool {
	return e.Kind.Terminal()
}

// NewTransferError creates a new TransferError.
func NewTransferError(kind ErrorKind, status int, err error) *TransferError {
	return &TransferError{Kind: kind, StatusCode: status, Err: err}
}

// KindOf extracts the ErrorKind from an error chain, defaulting to transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrUnresolvableReference):
		return ErrorKindUnresolvableReference
	case errors.Is(err, ErrNoResolvableURL):
		return ErrorKindNoResolvableURL
	case errors.Is(err, ErrInvalidMediaKind):
		return ErrorKindInvalidMediaKind
	case errors.Is(err, ErrSizeLimitExceeded):
		return ErrorKindSizeLimitExceeded
	}
	return ErrorKindTransientTransfer
}
