package search

import (
	"context"
	"fmt"
)

// SearchResultEntry is one ranked hit returned by the search backend.
// Rank is zero based and follows backend order.
type SearchResultEntry struct {
	Rank    int    `json:"rank"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Engine is a search backend that returns at most maxResults ranked entries.
type Engine interface {
	// Name returns the identifier used in logs.
	Name() string
	// Search runs the query. Any failure is reported as *BackendError.
	Search(ctx context.Context, query string, maxResults int) ([]SearchResultEntry, error)
}

// BackendError reports that the ranked result list could not be obtained:
// the backend was unreachable, answered with a non-success status, or
// returned output that is not the expected JSON.
type BackendError struct {
	Engine string
	// StatusCode is the HTTP status when the backend answered, zero otherwise.
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend returned status %d: %v", e.Engine, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s backend failed: %v", e.Engine, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
