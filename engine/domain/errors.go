package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for dependency failures, one per pipeline stage. The
// pipeline never degrades past these: a failed stage fails the request.
var (
	ErrEmbeddingUnavailable  = errors.New("embedding backend unavailable")
	ErrIndexUnavailable      = errors.New("vector index unavailable")
	ErrRerankUnavailable     = errors.New("rerank backend unavailable")
	ErrGenerationUnavailable = errors.New("generation backend unavailable")
)

// Sentinel errors for malformed input, rejected before any external call.
var (
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrQuestionTooShort = errors.New("question too short")
	ErrEmptyPMID        = errors.New("pmid is empty")
	ErrEmptyTitle       = errors.New("title is empty")
	ErrNoText           = errors.New("paper has no abstract or full text")
	ErrBadChunkConfig   = errors.New("chunk overlap must be smaller than chunk size")
)

// ValidationError wraps a sentinel with field context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// IsDependencyFailure reports whether err is one of the unavailable-dependency
// sentinels. Callers use it to distinguish "the system could not process the
// request" from input rejection.
func IsDependencyFailure(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrIndexUnavailable) ||
		errors.Is(err, ErrRerankUnavailable) ||
		errors.Is(err, ErrGenerationUnavailable)
}
