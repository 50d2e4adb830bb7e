package sealcrypto

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// recipientEntry is one identity's slot in the sealed header.
type recipientEntry struct {
	Policy     Policy `cbor:"1,keyasint"`
	WrappedKey []byte `cbor:"2,keyasint"`
}

// header is the CBOR structure following the magic and version byte.
type header struct {
	Recipients map[string]recipientEntry `cbor:"1,keyasint"`
	// Assertion optionally carries a signed sender-identity assertion,
	// opaque to this package. It is authenticated by the payload cipher
	// through the header digest.
	Assertion []byte `cbor:"2,keyasint,omitempty"`
	Sender    string `cbor:"3,keyasint,omitempty"`
}

// encodeHeader writes magic, version, length prefix, and the CBOR header,
// returning the serialized CBOR bytes for use as AAD material.
func encodeHeader(w io.Writer, h *header) ([]byte, error) {
	body, err := cbor.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}

	if _, err := w.Write(magic[:]); err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte{FormatVersion}); err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return nil, err
	}
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	return body, nil
}

// decodeHeader reads and parses the stream prefix, returning the header
// and its raw CBOR bytes.
func decodeHeader(r io.Reader) (*header, []byte, error) {
	var prefix [7]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, nil, ErrMalformedHeader
	}
	for i := range magic {
		if prefix[i] != magic[i] {
			return nil, nil, ErrMalformedHeader
		}
	}
	if prefix[6] != FormatVersion {
		return nil, nil, ErrUnsupportedVersion
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, nil, ErrMalformedHeader
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > MaxHeaderSize {
		return nil, nil, ErrMalformedHeader
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, ErrMalformedHeader
	}

	var h header
	if err := cbor.Unmarshal(body, &h); err != nil {
		return nil, nil, ErrMalformedHeader
	}
	if len(h.Recipients) == 0 {
		return nil, nil, ErrMalformedHeader
	}
	return &h, body, nil
}
