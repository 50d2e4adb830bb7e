package attrmail

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/attrmail/client-go/internal/storage"
)

// credentialKeyPrefix namespaces cached credentials in the store.
const credentialKeyPrefix = "jwt_"

// CredentialCache stores disclosure credentials keyed by the canonical
// hash of the conjunction they were disclosed for. Credentials are opaque
// signed tokens; the cache only inspects the expiry claim, it never
// verifies signatures. Verification happens server-side on key requests.
type CredentialCache struct {
	store storage.Store
	now   func() time.Time
}

func newCredentialCache(store storage.Store, now func() time.Time) *CredentialCache {
	if now == nil {
		now = time.Now
	}
	return &CredentialCache{store: store, now: now}
}

// Lookup returns the cached credential for the conjunction, if one exists
// and has not expired. Expired entries are evicted on the spot so a
// subsequent disclosure overwrites cleanly.
func (c *CredentialCache) Lookup(con Conjunction) (string, bool, error) {
	key := c.cacheKey(con)
	data, err := c.store.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	credential := string(data)
	exp, err := credentialExpiry(credential)
	if err != nil || !exp.After(c.now()) {
		// Unreadable or expired entries are useless, drop them.
		c.store.Delete(key)
		return "", false, nil
	}
	return credential, true, nil
}

// Store caches a credential under the conjunction it was disclosed for.
// Credentials without a readable expiry are not cached: they would be
// unevictable.
func (c *CredentialCache) Store(con Conjunction, credential string) error {
	if _, err := credentialExpiry(credential); err != nil {
		return nil
	}
	return c.store.Set(c.cacheKey(con), []byte(credential))
}

// Evict removes the cached credential for the conjunction. Used when the
// key server rejects a credential that looked valid locally.
func (c *CredentialCache) Evict(con Conjunction) error {
	err := c.store.Delete(c.cacheKey(con))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (c *CredentialCache) cacheKey(con Conjunction) string {
	return credentialKeyPrefix + con.CanonicalHash()
}

// credentialExpiry extracts the expiry claim without verifying the token
// signature.
func credentialExpiry(credential string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("credential has no expiry claim")
	}
	return exp.Time, nil
}
