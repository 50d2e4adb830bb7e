package attrmail

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attrmail/client-go/internal/storage"
)

// mintSeq makes every minted credential unique, like a real issuer.
var mintSeq int64

// mintCredential builds an unsigned test credential with the given expiry.
// The cache never verifies signatures, so an empty signature segment is
// enough.
func mintCredential(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]interface{}{
		"exp": exp.Unix(),
		"sub": fmt.Sprintf("test-disclosure-%d", atomic.AddInt64(&mintSeq, 1)),
	})
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

func testConjunction() Conjunction {
	return Conjunction{{Type: "attrmail.user.email", Value: "bob@example.org"}}
}

func TestCredentialCache_StoreAndLookup(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cache := newCredentialCache(storage.NewMemStore(), func() time.Time { return now })
	con := testConjunction()

	credential := mintCredential(t, now.Add(time.Hour))
	if err := cache.Store(con, credential); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, ok, err := cache.Lookup(con)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !ok {
		t.Fatal("Lookup() miss, want hit")
	}
	if got != credential {
		t.Errorf("Lookup() = %q, want %q", got, credential)
	}
}

func TestCredentialCache_MissForUnknownConjunction(t *testing.T) {
	cache := newCredentialCache(storage.NewMemStore(), nil)
	_, ok, err := cache.Lookup(testConjunction())
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if ok {
		t.Error("Lookup() hit for empty cache")
	}
}

func TestCredentialCache_ExpiryIsInclusive(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cache := newCredentialCache(storage.NewMemStore(), func() time.Time { return now })
	con := testConjunction()

	// Expires exactly now: already unusable.
	if err := cache.Store(con, mintCredential(t, now)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, ok, _ := cache.Lookup(con); ok {
		t.Error("Lookup() hit for credential expiring exactly now")
	}
}

func TestCredentialCache_ExpiredEntryEvicted(t *testing.T) {
	store := storage.NewMemStore()
	now := time.Unix(1700000000, 0)
	cache := newCredentialCache(store, func() time.Time { return now })
	con := testConjunction()

	if err := cache.Store(con, mintCredential(t, now.Add(-time.Second))); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, ok, _ := cache.Lookup(con); ok {
		t.Fatal("Lookup() hit for expired credential")
	}

	// The expired entry must be gone from the backing store.
	if _, err := store.Get("jwt_" + con.CanonicalHash()); err != storage.ErrNotFound {
		t.Errorf("backing store still holds expired entry, err = %v", err)
	}
}

func TestCredentialCache_OverwriteReplacesCredential(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cache := newCredentialCache(storage.NewMemStore(), func() time.Time { return now })
	con := testConjunction()

	first := mintCredential(t, now.Add(time.Hour))
	second := mintCredential(t, now.Add(2*time.Hour))
	cache.Store(con, first)
	cache.Store(con, second)

	got, ok, _ := cache.Lookup(con)
	if !ok || got != second {
		t.Errorf("Lookup() = %q, want latest credential", got)
	}
}

func TestCredentialCache_Evict(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cache := newCredentialCache(storage.NewMemStore(), func() time.Time { return now })
	con := testConjunction()

	cache.Store(con, mintCredential(t, now.Add(time.Hour)))
	if err := cache.Evict(con); err != nil {
		t.Fatalf("Evict() error = %v", err)
	}
	if _, ok, _ := cache.Lookup(con); ok {
		t.Error("Lookup() hit after eviction")
	}

	// Evicting an absent entry is not an error.
	if err := cache.Evict(con); err != nil {
		t.Errorf("Evict() on absent entry error = %v", err)
	}
}

func TestCredentialCache_DoesNotCacheUnreadableCredential(t *testing.T) {
	store := storage.NewMemStore()
	cache := newCredentialCache(store, nil)
	con := testConjunction()

	if err := cache.Store(con, "not-a-jwt"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, err := store.Get("jwt_" + con.CanonicalHash()); err != storage.ErrNotFound {
		t.Error("unreadable credential was cached")
	}
}

func TestCredentialCache_KeyedByCanonicalHash(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cache := newCredentialCache(storage.NewMemStore(), func() time.Time { return now })

	a := Conjunction{
		{Type: "attrmail.user.email", Value: "bob@example.org"},
		{Type: "attrmail.gov.age18", Value: "yes"},
	}
	permuted := Conjunction{
		{Type: "attrmail.gov.age18", Value: "yes"},
		{Type: "attrmail.user.email", Value: "bob@example.org"},
	}

	credential := mintCredential(t, now.Add(time.Hour))
	cache.Store(a, credential)

	got, ok, _ := cache.Lookup(permuted)
	if !ok || got != credential {
		t.Error("permuted conjunction missed the cached credential")
	}
}
