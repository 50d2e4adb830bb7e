// Package sealcrypto is the reference implementation of the sealing
// primitive: a streaming transform that encrypts a plaintext under
// per-recipient attribute policies and decrypts it for a recipient
// holding a matching attribute key.
//
// The scheme is hybrid. A random session key encrypts the payload with
// AES-256-GCM in length-prefixed chunks, keyed through HKDF-SHA-512. The
// session key itself is wrapped once per recipient with CP-ABE
// (TKN20) under that recipient's attribute conjunction, so the key
// server can authorize decryption by issuing an attribute key for the
// proven attributes and the policy's timestamp epoch. The header mapping
// identities to policies and wrapped keys is CBOR, length-prefixed after
// a fixed magic and version byte.
package sealcrypto

const (
	// HKDFContext is the context string used in HKDF key derivation
	// for domain separation.
	HKDFContext = "attrmail:seal:v1"

	// FormatVersion is the sealed stream format version.
	FormatVersion = 1

	// SessionKeySize is the size of the random payload session key in bytes.
	SessionKeySize = 32

	// AESKeySize is the size of an AES-256 key in bytes.
	AESKeySize = 32
	// AESNonceSize is the size of an AES-GCM nonce in bytes.
	AESNonceSize = 12
	// AESTagSize is the size of an AES-GCM authentication tag in bytes.
	AESTagSize = 16

	// ChunkSize is the plaintext chunk size of the streaming payload cipher.
	ChunkSize = 64 * 1024

	// MaxHeaderSize bounds the CBOR header length accepted during parsing.
	MaxHeaderSize = 1 << 20

	// epochAttribute is the reserved attribute name carrying the policy
	// timestamp, so attribute keys are only valid for one epoch.
	epochAttribute = "ts"
)

// magic identifies a sealed stream.
var magic = [6]byte{'A', 'M', 'S', 'E', 'A', 'L'}

// AttributeRequest is one attribute of a sealing policy.
type AttributeRequest struct {
	Type  string `cbor:"1,keyasint"`
	Value string `cbor:"2,keyasint,omitempty"`
}

// Policy is the per-recipient access policy recorded in the sealed header.
type Policy struct {
	Timestamp   int64              `cbor:"1,keyasint"`
	Conjunction []AttributeRequest `cbor:"2,keyasint"`
}
