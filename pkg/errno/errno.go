package errno

import (
	"errors"
	"fmt"
	"net/http"
)

// Errno is a coded error value. Status is the HTTP status surfaced when the
// error reaches a handler; stage failures never reach a client directly and are
// recorded on the job instead.
type Errno struct {
	Code    string
	Status  int
	Message string
}

// Error implements the error interface
func (e *Errno) Error() string {
	return e.Message
}

// With wraps the coded error with a detail string, keeping errors.Is working.
func (e *Errno) With(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprintf(format, args...))
}

// Wrap attaches a cause to the coded error.
func (e *Errno) Wrap(err error) error {
	if err == nil {
		return e
	}
	return fmt.Errorf("%w: %w", e, err)
}

// From returns the first *Errno in err's chain, if any.
func From(err error) (*Errno, bool) {
	var e *Errno
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

var (
	// Client input errors, raised before a job exists
	ErrInvalidReference         = &Errno{Code: "INVALID_REFERENCE", Status: http.StatusBadRequest, Message: "invalid change request reference"}
	ErrCrossRepositoryReference = &Errno{Code: "CROSS_REPOSITORY_REFERENCE", Status: http.StatusBadRequest, Message: "change requests must belong to the same repository"}
	ErrDuplicateReference       = &Errno{Code: "DUPLICATE_REFERENCE", Status: http.StatusBadRequest, Message: "duplicate change request reference"}

	// Stage failures, recorded on the job
	ErrSourceFetch     = &Errno{Code: "SOURCE_FETCH_ERROR", Status: http.StatusBadGateway, Message: "source fetch failed"}
	ErrNarrativeParse  = &Errno{Code: "NARRATIVE_PARSE_ERROR", Status: http.StatusBadGateway, Message: "narrative response invalid"}
	ErrVoiceSynthesis  = &Errno{Code: "VOICE_SYNTHESIS_ERROR", Status: http.StatusBadGateway, Message: "voice synthesis failed"}
	ErrRenderDispatch  = &Errno{Code: "RENDER_DISPATCH_ERROR", Status: http.StatusBadGateway, Message: "render dispatch failed"}
	ErrDispatchFailure = &Errno{Code: "DISPATCH_ERROR", Status: http.StatusInternalServerError, Message: "failed to enqueue pipeline"}

	// Auth layer
	ErrUnauthorized = &Errno{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, Message: "unauthorized"}
	ErrRateLimited  = &Errno{Code: "RATE_LIMITED", Status: http.StatusTooManyRequests, Message: "rate limit exceeded"}

	// Resource state
	ErrJobNotFound            = &Errno{Code: "NOT_FOUND", Status: http.StatusNotFound, Message: "job not found"}
	ErrRetryNotAllowed        = &Errno{Code: "RETRY_NOT_ALLOWED", Status: http.StatusConflict, Message: "job cannot be retried in its current state"}
	ErrInvalidTransition      = &Errno{Code: "INVALID_TRANSITION", Status: http.StatusConflict, Message: "job is not in the expected state"}
	ErrCredentialLimitReached = &Errno{Code: "CREDENTIAL_LIMIT_REACHED", Status: http.StatusConflict, Message: "maximum number of active API keys reached"}
	ErrCredentialNotFound     = &Errno{Code: "NOT_FOUND", Status: http.StatusNotFound, Message: "API key not found"}
	ErrShareNotFound          = &Errno{Code: "NOT_FOUND", Status: http.StatusNotFound, Message: "video not found"}
	ErrRecordingTooLarge      = &Errno{Code: "VALIDATION_ERROR", Status: http.StatusBadRequest, Message: "screen recording exceeds size limit"}
	ErrRecordingNotFound      = &Errno{Code: "NOT_FOUND", Status: http.StatusNotFound, Message: "screen recording not found"}
)
