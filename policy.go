package attrmail

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// AttributeRequest asks a recipient to prove one attribute. Value may be
// empty, which requests any value of the given type (a hidden request).
type AttributeRequest struct {
	Type  string `json:"t"`
	Value string `json:"v,omitempty"`
}

// Conjunction is an ordered list of attribute requests that must all be
// proven in a single disclosure. Construction order is preserved for
// display; identity for caching is defined over the sorted form.
type Conjunction []AttributeRequest

// Sorted returns a copy of the conjunction ordered by (type, value).
// Sorting is plain byte-wise comparison, never locale-aware collation,
// so the resulting hash is stable across platforms.
func (c Conjunction) Sorted() Conjunction {
	out := make(Conjunction, len(c))
	copy(out, c)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Equal reports whether two conjunctions request the same attributes,
// ignoring construction order.
func (c Conjunction) Equal(other Conjunction) bool {
	if len(c) != len(other) {
		return false
	}
	a, b := c.Sorted(), other.Sorted()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CanonicalHash returns the hex-encoded SHA-256 of the JSON serialization
// of the sorted conjunction. Two conjunctions that request the same
// attributes hash identically regardless of construction order.
func (c Conjunction) CanonicalHash() string {
	// json.Marshal on the sorted slice cannot fail for these field types.
	data, _ := json.Marshal(c.Sorted())
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Policy gates decryption for one recipient identity: the conjunction the
// recipient must prove, anchored to a timestamp epoch for which the key
// server derives decryption keys.
type Policy struct {
	Timestamp   int64       `json:"ts"`
	Conjunction Conjunction `json:"c"`
}

// PolicyMap maps a recipient identity to its policy.
type PolicyMap map[string]Policy

// BuildPolicies constructs a single-attribute policy for every distinct
// To/Cc recipient and for the sender, all stamped with the same timestamp.
// The sender is always included so that sent mail stays readable to its
// author. Identities are compared case-insensitively; duplicates collapse
// to one entry keyed by the first spelling seen.
//
// A non-empty bcc list is rejected with ErrBccUnsupported: a Bcc
// recipient's identity cannot appear in the sealed header without being
// revealed to every other recipient.
func BuildPolicies(to, cc, bcc []string, sender, attributeType string, now int64) (PolicyMap, error) {
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}
	if len(bcc) > 0 {
		return nil, ErrBccUnsupported
	}
	if sender == "" {
		return nil, &ValidationError{Errors: []string{"sender identity is empty"}}
	}

	policies := make(PolicyMap)
	seen := make(map[string]struct{})

	add := func(identity string) {
		key := strings.ToLower(identity)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		policies[identity] = Policy{
			Timestamp:   now,
			Conjunction: Conjunction{{Type: attributeType, Value: identity}},
		}
	}

	for _, r := range to {
		add(r)
	}
	for _, r := range cc {
		add(r)
	}
	add(sender)

	return policies, nil
}

// BuildExtendedPolicies stamps user-selected per-recipient conjunctions
// with a shared timestamp. It is used when the sender picks extra
// attributes per recipient instead of the default identity-only policy.
func BuildExtendedPolicies(conjunctions map[string]Conjunction, now int64) (PolicyMap, error) {
	if len(conjunctions) == 0 {
		return nil, ErrNoRecipients
	}

	policies := make(PolicyMap, len(conjunctions))
	for identity, con := range conjunctions {
		if len(con) == 0 {
			return nil, &ValidationError{Errors: []string{"empty conjunction for " + identity}}
		}
		policies[identity] = Policy{Timestamp: now, Conjunction: con}
	}
	return policies, nil
}

// Normalize resolves hidden attribute requests in a policy recovered from
// a sealed header. A blank value of the identity attribute type is
// substituted with the viewing recipient's own identity; blank values of
// other types stay type-only requests and are proven as such, so access
// control always rests on what the disclosure actually contained.
func (p Policy) Normalize(identity, identityAttributeType string) Policy {
	con := make(Conjunction, len(p.Conjunction))
	copy(con, p.Conjunction)
	for i, req := range con {
		if req.Value == "" && req.Type == identityAttributeType {
			con[i].Value = identity
		}
	}
	return Policy{Timestamp: p.Timestamp, Conjunction: con}
}
