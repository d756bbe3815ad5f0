package hyperliquid

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse marks a payload that decoded but did not have the
// expected shape.
var ErrMalformedResponse = errors.New("malformed response")

// APIError is a non-200 reply from the venue.
type APIError struct {
	URL    string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.Status, e.URL, e.Body)
}

func (e *APIError) StatusCode() int {
	return e.Status
}
