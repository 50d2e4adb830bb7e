package sealcrypto

import "errors"

var (
	// ErrMalformedHeader is returned when the sealed stream does not start
	// with a valid magic, version, and header block.
	ErrMalformedHeader = errors.New("malformed sealed header")

	// ErrUnsupportedVersion is returned for a valid magic with an unknown
	// format version.
	ErrUnsupportedVersion = errors.New("unsupported sealed format version")

	// ErrIdentityNotFound is returned when the header carries no policy
	// for the requested identity.
	ErrIdentityNotFound = errors.New("identity not found in sealed header")

	// ErrKeyMismatch is returned when the supplied attribute key cannot
	// unwrap the session key for the requested identity: the key proves
	// different attributes than the policy requires.
	ErrKeyMismatch = errors.New("key does not match identity policy")

	// ErrDecryptionFailed is returned when payload authentication fails.
	ErrDecryptionFailed = errors.New("payload decryption failed")

	// ErrInvalidParams is returned when the public parameters cannot be parsed.
	ErrInvalidParams = errors.New("invalid public parameters")

	// ErrInvalidKey is returned when an attribute key cannot be parsed.
	ErrInvalidKey = errors.New("invalid attribute key")
)
