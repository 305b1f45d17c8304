package github

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

var (
	// ErrRepoNotFound means the repository does not exist or the token
	// cannot see it. GitHub answers 404 for both.
	ErrRepoNotFound = errors.New("github: repository not found")

	// ErrCloneFailed means git could not produce a checkout. Fetchers fall
	// back to the tree API when they see it.
	ErrCloneFailed = errors.New("github: clone failed")
)

// RateLimitError reports an exhausted GitHub quota.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("github: rate limit exceeded (%d/%d left)", e.Remaining, e.Limit)
	if e.ResetAt.IsZero() {
		return msg
	}
	return fmt.Sprintf("%s, resets at %s", msg, e.ResetAt.UTC().Format(time.RFC3339))
}

// Unwrap matches domain.ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// APIError is a non-2xx GitHub answer other than rate limiting.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("github: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github: %d %s (%s)", e.StatusCode, e.Message, e.URL)
}

// Unwrap maps access failures to domain.ErrSourceUnavailable and rejected
// input to domain.ErrInvalidInput. Server errors unwrap to nothing and
// stay retryable.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusGone, http.StatusUnavailableForLegalReasons:
		return domain.ErrSourceUnavailable
	case http.StatusUnprocessableEntity:
		return domain.ErrInvalidInput
	default:
		return nil
	}
}

// StatusCode returns the HTTP status of an APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound || errors.Is(err, ErrRepoNotFound)
}
