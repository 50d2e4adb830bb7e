package sealcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cloudflare/circl/abe/cpabe/tkn20"
	"golang.org/x/crypto/hkdf"
)

// SealOptions carries the optional parts of a seal call.
type SealOptions struct {
	// Sender is the claimed sender identity recorded in the header.
	Sender string
	// Assertion is an opaque signed sender assertion, returned verbatim
	// to recipients after a successful unseal.
	Assertion []byte
}

// Seal encrypts plaintext for every identity in policies and writes the
// sealed stream to ciphertext. The stream is fully drained before Seal
// returns; duration is bounded by message size, not by any timeout.
func Seal(params []byte, policies map[string]Policy, opts SealOptions, plaintext io.Reader, ciphertext io.Writer) error {
	if len(policies) == 0 {
		return fmt.Errorf("no policies to seal for")
	}

	var pk tkn20.PublicKey
	if err := pk.UnmarshalBinary(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	sessionKey := make([]byte, SessionKeySize)
	if _, err := rand.Read(sessionKey); err != nil {
		return fmt.Errorf("generate session key: %w", err)
	}

	h := &header{
		Recipients: make(map[string]recipientEntry, len(policies)),
		Sender:     opts.Sender,
		Assertion:  opts.Assertion,
	}
	for identity, policy := range policies {
		wrapped, err := wrapSessionKey(&pk, policy, sessionKey)
		if err != nil {
			return fmt.Errorf("wrap key for %s: %w", identity, err)
		}
		h.Recipients[identity] = recipientEntry{Policy: policy, WrappedKey: wrapped}
	}

	headerBytes, err := encodeHeader(ciphertext, h)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	aead, aad, err := payloadCipher(sessionKey, headerBytes)
	if err != nil {
		return err
	}

	buf := make([]byte, ChunkSize)
	var counter uint64
	for {
		n, readErr := io.ReadFull(plaintext, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return fmt.Errorf("read plaintext: %w", readErr)
		}

		if err := writeChunk(ciphertext, aead, aad, counter, buf[:n]); err != nil {
			return err
		}
		counter++

		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	// A zero-length terminal chunk authenticates the total chunk count,
	// so truncating the stream is detectable.
	return writeChunk(ciphertext, aead, aad, counter, nil)
}

// payloadCipher derives the AES-256-GCM payload cipher from the session
// key and the serialized header, which doubles as associated data so any
// header tampering breaks payload authentication.
func payloadCipher(sessionKey, headerBytes []byte) (cipher.AEAD, []byte, error) {
	headerSum := sha256.Sum256(headerBytes)

	reader := hkdf.New(sha512.New, sessionKey, headerSum[:], []byte(HKDFContext))
	aesKey := make([]byte, AESKeySize)
	if _, err := io.ReadFull(reader, aesKey); err != nil {
		return nil, nil, fmt.Errorf("derive payload key: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	return aead, headerSum[:], nil
}

// chunkNonce builds the per-chunk nonce from the chunk counter.
func chunkNonce(counter uint64) []byte {
	nonce := make([]byte, AESNonceSize)
	binary.BigEndian.PutUint64(nonce[AESNonceSize-8:], counter)
	return nonce
}

func writeChunk(w io.Writer, aead cipher.AEAD, aad []byte, counter uint64, plain []byte) error {
	sealed := aead.Seal(nil, chunkNonce(counter), plain, aad)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	if _, err := w.Write(sealed); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	return nil
}
