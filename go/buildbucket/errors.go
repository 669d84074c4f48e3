package buildbucket

import (
	"fmt"
)

// ServiceError is returned when the server responds with a non-2xx status.
// Body is the raw response body, verbatim; no attempt is made to parse it.
type ServiceError struct {
	StatusCode int
	Body       string
}

// Error implements error.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("Got status code %d from buildbucket: %s", e.StatusCode, e.Body)
}

// DecodeError is returned when a 2xx response body cannot be decoded, either
// because the anti-XSSI preamble is missing or because the JSON payload does
// not match the expected response type.
type DecodeError struct {
	Err error
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("Failed to decode buildbucket response: %s", e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
