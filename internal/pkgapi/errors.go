package pkgapi

import (
	"errors"
	"fmt"
)

var (
	// ErrProofInvalid indicates the key server rejected the credential:
	// the session was not done or the disclosure proof did not validate.
	ErrProofInvalid = errors.New("disclosure proof not accepted by key server")

	// ErrSessionNotFound indicates an unknown session token.
	ErrSessionNotFound = errors.New("session not found")
)

// APIError represents an HTTP error from the key generator.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("key generator error %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("key generator error %d at %s", e.StatusCode, e.Endpoint)
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	return e.StatusCode == 404 && target == ErrSessionNotFound
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err error
	URL string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}
