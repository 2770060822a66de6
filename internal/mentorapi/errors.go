package mentorapi

import (
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the upstream API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Message)
}

// Conflict reports whether the upstream rejected the request because the
// resource is already taken.
func (e *APIError) Conflict() bool {
	return e.Status == http.StatusConflict
}

// NetworkError is a transport failure talking to the upstream API.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
