package domain

import (
	"errors"
	"fmt"
)

// ErrTooManyNew is returned when a listing yields more unseen documents than the run allows.
var ErrTooManyNew = errors.New("too many new documents")

// RetrievalError reports that the object store could not serve a listing, object or ledger.
type RetrievalError struct {
	Op  string
	Key string
	Err error
}

func (e *RetrievalError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("retrieval: %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("retrieval: %s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ExtractionError reports that no text could be recovered from a document.
type ExtractionError struct {
	DocumentID string
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.DocumentID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// FailureReason classifies a publish failure.
type FailureReason string

const (
	ReasonAuth      FailureReason = "auth"
	ReasonRateLimit FailureReason = "rate_limit"
	ReasonTransient FailureReason = "transient"
	ReasonRejected  FailureReason = "rejected"
)

// PublishError is a platform-scoped publish failure.
type PublishError struct {
	Platform Platform
	Reason   FailureReason
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (%s): %v", e.Platform, e.Reason, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// StateCommitError reports that the ledger could not be written back.
type StateCommitError struct {
	Err error
}

func (e *StateCommitError) Error() string {
	return fmt.Sprintf("commit state: %v", e.Err)
}

func (e *StateCommitError) Unwrap() error { return e.Err }

// IsRetrieval reports whether err carries a RetrievalError.
func IsRetrieval(err error) bool {
	var target *RetrievalError
	return errors.As(err, &target)
}
