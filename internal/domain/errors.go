package domain

import "errors"

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrUnknownLanguage  = errors.New("unknown language")
	ErrQueueUnavailable = errors.New("queue unavailable")
	ErrInternal         = errors.New("internal error")
)

// ValidationError carries a short machine-readable reason tag alongside the
// invalid-argument sentinel so rejection counters can be labeled.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

// Unwrap makes every validation error match ErrInvalidArgument.
func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// NewValidationError builds a tagged validation error.
func NewValidationError(reason, detail string) error {
	return &ValidationError{Reason: reason, Detail: detail}
}
