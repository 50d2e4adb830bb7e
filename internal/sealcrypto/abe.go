package sealcrypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudflare/circl/abe/cpabe/tkn20"
)

// Setup generates a fresh key generator instance: public parameters for
// sealing and the system secret from which attribute keys are derived.
// It is used by the key server side; clients only ever see the public
// parameters.
func Setup() (params, masterKey []byte, err error) {
	pk, msk, err := tkn20.Setup(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	params, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	masterKey, err = msk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return params, masterKey, nil
}

// DeriveAttributeKey issues the decryption key for a proven conjunction
// in one timestamp epoch. Key server side.
func DeriveAttributeKey(masterKey []byte, conjunction []AttributeRequest, timestamp int64) ([]byte, error) {
	var msk tkn20.SystemSecretKey
	if err := msk.UnmarshalBinary(masterKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	attrs := tkn20.Attributes{}
	attrs.FromMap(attributeMap(conjunction, timestamp))

	key, err := msk.KeyGen(rand.Reader, attrs)
	if err != nil {
		return nil, err
	}
	return key.MarshalBinary()
}

// wrapSessionKey encrypts the session key under the policy's attribute
// conjunction and timestamp epoch.
func wrapSessionKey(pk *tkn20.PublicKey, policy Policy, sessionKey []byte) ([]byte, error) {
	abePolicy := tkn20.Policy{}
	if err := abePolicy.FromString(policyString(policy)); err != nil {
		return nil, fmt.Errorf("build policy: %w", err)
	}
	return pk.Encrypt(rand.Reader, abePolicy, sessionKey)
}

// unwrapSessionKey decrypts a wrapped session key with an attribute key.
// A failure means the key's attributes do not satisfy the policy.
func unwrapSessionKey(attributeKey, wrapped []byte) ([]byte, error) {
	var key tkn20.AttributeKey
	if err := key.UnmarshalBinary(attributeKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	sessionKey, err := key.Decrypt(wrapped)
	if err != nil {
		return nil, ErrKeyMismatch
	}
	if len(sessionKey) != SessionKeySize {
		return nil, ErrKeyMismatch
	}
	return sessionKey, nil
}

// policyString renders a policy as a TKN20 conjunction. Attribute types
// and values are hex-quoted so arbitrary strings (email addresses in
// particular) survive the policy grammar.
func policyString(policy Policy) string {
	terms := make([]string, 0, len(policy.Conjunction)+1)
	for _, req := range policy.Conjunction {
		terms = append(terms, fmt.Sprintf("(%s: %s)", attrName(req.Type), attrValue(req.Value)))
	}
	terms = append(terms, fmt.Sprintf("(%s: e%s)", epochAttribute, strconv.FormatInt(policy.Timestamp, 10)))
	return strings.Join(terms, " and ")
}

// attributeMap is the KeyGen-side mirror of policyString.
func attributeMap(conjunction []AttributeRequest, timestamp int64) map[string]string {
	m := make(map[string]string, len(conjunction)+1)
	for _, req := range conjunction {
		m[attrName(req.Type)] = attrValue(req.Value)
	}
	m[epochAttribute] = "e" + strconv.FormatInt(timestamp, 10)
	return m
}

func attrName(attrType string) string {
	return "a" + hex.EncodeToString([]byte(attrType))
}

func attrValue(value string) string {
	return "v" + hex.EncodeToString([]byte(value))
}
