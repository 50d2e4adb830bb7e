package sealcrypto

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
)

// Unsealer parses a sealed stream's header and decrypts the payload for
// one recipient. The header is read eagerly at construction so callers
// can inspect policies before any key material exists.
type Unsealer struct {
	r           io.Reader
	hdr         *header
	headerBytes []byte
	consumed    bool
}

// NewUnsealer reads the header from the sealed stream.
func NewUnsealer(r io.Reader) (*Unsealer, error) {
	hdr, headerBytes, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}
	return &Unsealer{r: r, hdr: hdr, headerBytes: headerBytes}, nil
}

// Policies returns the per-identity policies recorded at seal time.
func (u *Unsealer) Policies() map[string]Policy {
	out := make(map[string]Policy, len(u.hdr.Recipients))
	for identity, entry := range u.hdr.Recipients {
		out[identity] = entry.Policy
	}
	return out
}

// Sender returns the claimed sender identity from the header, which is
// only trustworthy alongside a verified assertion.
func (u *Unsealer) Sender() string {
	return u.hdr.Sender
}

// Unseal decrypts the payload for the given identity using an attribute
// key issued for that identity's policy, writing plaintext to w. It
// returns the sender assertion recorded at seal time, if any. The
// payload can be consumed once.
func (u *Unsealer) Unseal(identity string, attributeKey []byte, w io.Writer) ([]byte, error) {
	if u.consumed {
		return nil, fmt.Errorf("sealed payload already consumed")
	}
	u.consumed = true

	entry, ok := u.hdr.Recipients[identity]
	if !ok {
		return nil, ErrIdentityNotFound
	}

	sessionKey, err := unwrapSessionKey(attributeKey, entry.WrappedKey)
	if err != nil {
		return nil, err
	}

	aead, aad, err := payloadCipher(sessionKey, u.headerBytes)
	if err != nil {
		return nil, err
	}

	var counter uint64
	for {
		plain, err := readChunk(u.r, aead, aad, counter)
		if err != nil {
			return nil, err
		}
		counter++

		if len(plain) == 0 {
			// Terminal chunk: require EOF so trailing garbage is rejected.
			var tail [1]byte
			if _, err := u.r.Read(tail[:]); err != io.EOF {
				return nil, ErrDecryptionFailed
			}
			return u.hdr.Assertion, nil
		}

		if _, err := w.Write(plain); err != nil {
			return nil, fmt.Errorf("write plaintext: %w", err)
		}
	}
}

func readChunk(r io.Reader, aead cipher.AEAD, aad []byte, counter uint64) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, ErrDecryptionFailed
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < AESTagSize || length > ChunkSize+AESTagSize {
		return nil, ErrDecryptionFailed
	}

	sealed := make([]byte, length)
	if _, err := io.ReadFull(r, sealed); err != nil {
		return nil, ErrDecryptionFailed
	}

	plain, err := aead.Open(nil, chunkNonce(counter), sealed, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}
