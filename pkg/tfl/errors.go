package tfl

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth means the provider rejected the API token. Never retried.
	ErrAuth = errors.New("provider rejected credentials")

	// ErrNotFound means the provider has no data for the requested entity.
	ErrNotFound = errors.New("provider resource not found")

	// ErrNoJourney means the journey planner found no route between the
	// two stop points.
	ErrNoJourney = errors.New("no journey found")
)

// apiError carries the HTTP status of a failed provider call. It exposes
// StatusCode so the retry helper can classify 429/5xx as retryable.
type apiError struct {
	statusCode int
	url        string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("provider returned status %d for %s", e.statusCode, e.url)
}

func (e *apiError) StatusCode() int { return e.statusCode }
