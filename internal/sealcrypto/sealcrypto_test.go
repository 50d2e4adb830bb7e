package sealcrypto

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

const testEpoch = int64(1700000000)

func testPolicy(identity string) Policy {
	return Policy{
		Timestamp: testEpoch,
		Conjunction: []AttributeRequest{
			{Type: "attrmail.user.email", Value: identity},
		},
	}
}

// sealFor is a test helper running a complete seal for the given
// identities with a fresh system.
func sealFor(t *testing.T, plaintext []byte, identities ...string) (params, masterKey []byte, sealed []byte) {
	t.Helper()

	params, masterKey, err := Setup()
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	policies := make(map[string]Policy, len(identities))
	for _, id := range identities {
		policies[id] = testPolicy(id)
	}

	var buf bytes.Buffer
	opts := SealOptions{Sender: identities[0], Assertion: []byte("assertion-token")}
	if err := Seal(params, policies, opts, bytes.NewReader(plaintext), &buf); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	return params, masterKey, buf.Bytes()
}

func recipientKey(t *testing.T, masterKey []byte, identity string) []byte {
	t.Helper()
	key, err := DeriveAttributeKey(masterKey, testPolicy(identity).Conjunction, testEpoch)
	if err != nil {
		t.Fatalf("DeriveAttributeKey() error = %v", err)
	}
	return key
}

func TestSealUnseal_RoundTrip(t *testing.T) {
	plaintext := []byte("From: alice@example.com\r\n\r\nhello sealed world")
	_, masterKey, sealed := sealFor(t, plaintext, "alice@example.com", "bob@example.org")

	un, err := NewUnsealer(bytes.NewReader(sealed))
	if err != nil {
		t.Fatalf("NewUnsealer() error = %v", err)
	}

	if un.Sender() != "alice@example.com" {
		t.Errorf("Sender() = %q", un.Sender())
	}
	policies := un.Policies()
	if len(policies) != 2 {
		t.Fatalf("policy count = %d, want 2", len(policies))
	}
	if p := policies["bob@example.org"]; p.Timestamp != testEpoch {
		t.Errorf("bob's timestamp = %d, want %d", p.Timestamp, testEpoch)
	}

	var out bytes.Buffer
	assertion, err := un.Unseal("bob@example.org", recipientKey(t, masterKey, "bob@example.org"), &out)
	if err != nil {
		t.Fatalf("Unseal() error = %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Errorf("plaintext = %q, want %q", out.Bytes(), plaintext)
	}
	if string(assertion) != "assertion-token" {
		t.Errorf("assertion = %q", assertion)
	}
}

func TestSealUnseal_LargePayloadSpansChunks(t *testing.T) {
	plaintext := bytes.Repeat([]byte("0123456789abcdef"), (ChunkSize/16)*2+7)
	_, masterKey, sealed := sealFor(t, plaintext, "bob@example.org")

	un, err := NewUnsealer(bytes.NewReader(sealed))
	if err != nil {
		t.Fatalf("NewUnsealer() error = %v", err)
	}
	var out bytes.Buffer
	if _, err := un.Unseal("bob@example.org", recipientKey(t, masterKey, "bob@example.org"), &out); err != nil {
		t.Fatalf("Unseal() error = %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Error("multi-chunk payload did not round trip")
	}
}

func TestSealUnseal_EmptyPayload(t *testing.T) {
	_, masterKey, sealed := sealFor(t, nil, "bob@example.org")

	un, err := NewUnsealer(bytes.NewReader(sealed))
	if err != nil {
		t.Fatalf("NewUnsealer() error = %v", err)
	}
	var out bytes.Buffer
	if _, err := un.Unseal("bob@example.org", recipientKey(t, masterKey, "bob@example.org"), &out); err != nil {
		t.Fatalf("Unseal() error = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("plaintext length = %d, want 0", out.Len())
	}
}

func TestUnseal_IdentityNotInHeader(t *testing.T) {
	_, masterKey, sealed := sealFor(t, []byte("x"), "bob@example.org")

	un, err := NewUnsealer(bytes.NewReader(sealed))
	if err != nil {
		t.Fatalf("NewUnsealer() error = %v", err)
	}
	_, err = un.Unseal("eve@example.org", recipientKey(t, masterKey, "eve@example.org"), io.Discard)
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("error = %v, want ErrIdentityNotFound", err)
	}
}

func TestUnseal_WrongIdentityKey(t *testing.T) {
	_, masterKey, sealed := sealFor(t, []byte("x"), "bob@example.org")

	un, err := NewUnsealer(bytes.NewReader(sealed))
	if err != nil {
		t.Fatalf("NewUnsealer() error = %v", err)
	}
	// Eve's key against bob's slot must not decrypt.
	_, err = un.Unseal("bob@example.org", recipientKey(t, masterKey, "eve@example.org"), io.Discard)
	if !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("error = %v, want ErrKeyMismatch", err)
	}
}

func TestUnseal_WrongEpochKey(t *testing.T) {
	_, masterKey, sealed := sealFor(t, []byte("x"), "bob@example.org")

	key, err := DeriveAttributeKey(masterKey, testPolicy("bob@example.org").Conjunction, testEpoch+86400)
	if err != nil {
		t.Fatalf("DeriveAttributeKey() error = %v", err)
	}

	un, err := NewUnsealer(bytes.NewReader(sealed))
	if err != nil {
		t.Fatalf("NewUnsealer() error = %v", err)
	}
	if _, err := un.Unseal("bob@example.org", key, io.Discard); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("error = %v, want ErrKeyMismatch for wrong epoch", err)
	}
}

func TestUnseal_TruncatedStream(t *testing.T) {
	_, masterKey, sealed := sealFor(t, bytes.Repeat([]byte("a"), 4096), "bob@example.org")

	// Cut off the terminal chunk and part of the payload.
	truncated := sealed[:len(sealed)-64]

	un, err := NewUnsealer(bytes.NewReader(truncated))
	if err != nil {
		t.Fatalf("NewUnsealer() error = %v", err)
	}
	if _, err := un.Unseal("bob@example.org", recipientKey(t, masterKey, "bob@example.org"), io.Discard); err == nil {
		t.Error("Unseal() accepted a truncated stream")
	}
}

func TestUnseal_TamperedCiphertext(t *testing.T) {
	plaintext := []byte("do not tamper")
	_, masterKey, sealed := sealFor(t, plaintext, "bob@example.org")

	// Flip a bit near the end, inside the payload chunks.
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-10] ^= 0x01

	un, err := NewUnsealer(bytes.NewReader(tampered))
	if err != nil {
		t.Fatalf("NewUnsealer() error = %v", err)
	}
	if _, err := un.Unseal("bob@example.org", recipientKey(t, masterKey, "bob@example.org"), io.Discard); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("error = %v, want ErrDecryptionFailed", err)
	}
}

func TestNewUnsealer_RejectsBadMagic(t *testing.T) {
	_, err := NewUnsealer(bytes.NewReader([]byte("NOTSEALBYTES")))
	if !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("error = %v, want ErrMalformedHeader", err)
	}
}

func TestNewUnsealer_RejectsUnknownVersion(t *testing.T) {
	_, _, sealed := sealFor(t, []byte("x"), "bob@example.org")
	sealed[len(magic)] = 0xFF

	_, err := NewUnsealer(bytes.NewReader(sealed))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestNewUnsealer_RejectsTruncatedHeader(t *testing.T) {
	_, _, sealed := sealFor(t, []byte("x"), "bob@example.org")

	if _, err := NewUnsealer(bytes.NewReader(sealed[:20])); err == nil {
		t.Error("NewUnsealer() accepted a truncated header")
	}
}

func TestPolicyString_EncodesAttributes(t *testing.T) {
	p := Policy{
		Timestamp: 42,
		Conjunction: []AttributeRequest{
			{Type: "attrmail.user.email", Value: "bob@example.org"},
		},
	}
	s := policyString(p)
	// Raw attribute strings would break the policy grammar; only the
	// hex-encoded forms may appear.
	if bytes.Contains([]byte(s), []byte("bob@example.org")) {
		t.Errorf("policy string leaks raw value: %s", s)
	}
	if !bytes.Contains([]byte(s), []byte("ts: e42")) {
		t.Errorf("policy string missing epoch attribute: %s", s)
	}
}
