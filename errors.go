package attrmail

import (
	"errors"
	"fmt"

	"github.com/attrmail/client-go/internal/mailstore"
	"github.com/attrmail/client-go/internal/pkgapi"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrNoRecipients is returned when an encrypt operation has no To recipients.
	ErrNoRecipients = errors.New("no recipients")

	// ErrBccUnsupported is returned when a Bcc recipient is present on an
	// encrypt operation. Bcc identities cannot be sealed for without leaking
	// them to the other recipients, so the whole operation is refused.
	ErrBccUnsupported = errors.New("bcc recipients are not supported for encrypted mail")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrRecipientNotTargeted is returned when the sealed header carries no
	// policy for the current identity.
	ErrRecipientNotTargeted = errors.New("recipient not targeted by this message")

	// ErrDisclosureFailed is returned when a disclosure session ends in any
	// state other than a valid completion.
	ErrDisclosureFailed = errors.New("disclosure session failed")

	// ErrDisclosureCancelled is returned when the user dismisses the
	// disclosure prompt before the session completes.
	ErrDisclosureCancelled = errors.New("disclosure session cancelled")

	// ErrIdentityMismatch is returned when unsealing rejects the supplied
	// key as proving a different identity than the header policy names.
	ErrIdentityMismatch = errors.New("credential does not match asserted identity")

	// ErrMalformedEnvelope is returned when the outer envelope cannot be
	// parsed or carries an unsupported version.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrKeyRequestDenied is returned when the key server reports the
	// disclosure proof as incomplete or invalid.
	ErrKeyRequestDenied = errors.New("key request denied")
)

// AttrMailError is implemented by all SDK errors.
type AttrMailError interface {
	error
	AttrMailError() // marker method
}

// APIError represents an HTTP error from the key server, disclosure
// coordinator, or mail store.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d from %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("API error %d from %s", e.StatusCode, e.Endpoint)
}

// AttrMailError implements the AttrMailError interface.
func (e *APIError) AttrMailError() {}

// NetworkError represents a network-level failure. Transport failures are
// retryable by re-running the whole encrypt or decrypt flow, unlike
// cryptographic failures.
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

// AttrMailError implements the AttrMailError interface.
func (e *NetworkError) AttrMailError() {}

// DisclosureError represents a failed or cancelled disclosure session.
type DisclosureError struct {
	State     SessionState
	Message   string
	Cancelled bool
	Err       error
}

func (e *DisclosureError) Error() string {
	if e.Cancelled {
		return "disclosure session cancelled by user"
	}
	if e.Err != nil {
		return fmt.Sprintf("disclosure session failed in state %s: %v", e.State, e.Err)
	}
	return fmt.Sprintf("disclosure session failed in state %s: %s", e.State, e.Message)
}

// Unwrap returns the underlying error.
func (e *DisclosureError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *DisclosureError) Is(target error) bool {
	if e.Cancelled {
		return target == ErrDisclosureCancelled
	}
	return target == ErrDisclosureFailed
}

// AttrMailError implements the AttrMailError interface.
func (e *DisclosureError) AttrMailError() {}

// SealError represents a cryptographic failure during seal or unseal.
// Cryptographic failures are fatal for the message and are never retried
// automatically.
type SealError struct {
	Stage string // "seal", "inspect", "unseal"
	Err   error
}

func (e *SealError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *SealError) Unwrap() error {
	return e.Err
}

// AttrMailError implements the AttrMailError interface.
func (e *SealError) AttrMailError() {}

// EnvelopeError represents a failure to build or parse a MIME envelope.
type EnvelopeError struct {
	Message string
	Err     error
}

func (e *EnvelopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("envelope error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("envelope error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *EnvelopeError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *EnvelopeError) Is(target error) bool {
	return target == ErrMalformedEnvelope
}

// AttrMailError implements the AttrMailError interface.
func (e *EnvelopeError) AttrMailError() {}

// ValidationError contains input validation failures detected before any
// network call is made.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Errors)
}

// AttrMailError implements the AttrMailError interface.
func (e *ValidationError) AttrMailError() {}

// wrapError converts internal API errors to public errors so that
// errors.Is() checks work with public sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *pkgapi.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Endpoint:   apiErr.Endpoint,
		}
	}

	var netErr *pkgapi.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err: netErr.Err,
			URL: netErr.URL,
		}
	}

	if errors.Is(err, pkgapi.ErrProofInvalid) {
		return fmt.Errorf("%w: %v", ErrKeyRequestDenied, err)
	}

	var mailAPIErr *mailstore.APIError
	if errors.As(err, &mailAPIErr) {
		return &APIError{
			StatusCode: mailAPIErr.StatusCode,
			Message:    mailAPIErr.Message,
			Endpoint:   mailAPIErr.Endpoint,
		}
	}

	var mailNetErr *mailstore.NetworkError
	if errors.As(err, &mailNetErr) {
		return &NetworkError{
			Err: mailNetErr.Err,
			URL: mailNetErr.URL,
		}
	}

	return err
}
