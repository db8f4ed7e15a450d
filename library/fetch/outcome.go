package fetch

import (
	"fmt"
	"time"
)

// Outcome is the result of one fetch. It is exactly one of Success, Timeout,
// HTTPError or NetworkError; consumers switch on the concrete type.
type Outcome interface {
	isOutcome()
}

// Success carries a 2xx response body.
type Success struct {
	Body        []byte
	ContentType string
}

// Timeout reports that the per-call deadline expired before the body was read.
type Timeout struct {
	// After is the deadline that expired, zero when unknown.
	After time.Duration
}

// HTTPError reports a non-2xx response.
type HTTPError struct {
	StatusCode int
}

// NetworkError reports an invalid URL or a DNS, TCP, TLS or proxy failure.
type NetworkError struct {
	Message string
	// ProxyFailure is set when the configured proxy itself could not be reached.
	ProxyFailure bool
}

func (Success) isOutcome()      {}
func (Timeout) isOutcome()      {}
func (HTTPError) isOutcome()    {}
func (NetworkError) isOutcome() {}

func (o HTTPError) String() string {
	return fmt.Sprintf("http status %d", o.StatusCode)
}
