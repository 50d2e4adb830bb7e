package attrmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/attrmail/client-go/internal/mailstore"
	"github.com/attrmail/client-go/internal/pkgapi"
	"github.com/attrmail/client-go/internal/storage"
)

// parametersKey is the storage key for cached key server parameters.
const parametersKey = "pkg_parameters"

// MailTokenFunc supplies a bearer token for mail store requests. Tokens
// are short lived; the function is called per request.
type MailTokenFunc func(ctx context.Context) (string, error)

// Client orchestrates sealing and unsealing of mail for one account
// identity. It talks to the key server for parameters, disclosure
// sessions, and decryption keys, and to the mail store for message
// transport.
type Client struct {
	identity string
	cfg      *clientConfig

	pkg   *pkgapi.Client
	mail  *mailstore.Client
	store storage.Store
	cache *CredentialCache

	mu     sync.Mutex
	params []byte // decoded sealing public key, fetched lazily
	closed bool
}

// New creates a client for the given account identity. The identity is
// the email address the account controls; unsealing only succeeds for
// messages targeting it. mailToken supplies bearer tokens for the mail
// store.
func New(identity string, mailToken MailTokenFunc, opts ...Option) (*Client, error) {
	if identity == "" {
		return nil, &ValidationError{Errors: []string{"identity must not be empty"}}
	}
	if mailToken == nil {
		return nil, &ValidationError{Errors: []string{"mail token function must not be nil"}}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	store := cfg.store
	if store == nil {
		if cfg.storageDir != "" {
			fs, err := storage.NewFileStore(cfg.storageDir)
			if err != nil {
				return nil, fmt.Errorf("open storage dir: %w", err)
			}
			store = fs
		} else {
			store = storage.NewMemStore()
		}
	}

	pkg, err := pkgapi.New(cfg.pkgBaseURL,
		pkgapi.WithHTTPClient(cfg.httpClient),
		pkgapi.WithClientVersion(cfg.clientVersion),
	)
	if err != nil {
		return nil, err
	}

	mail, err := mailstore.New(cfg.mailBaseURL, mailstore.TokenFunc(mailToken),
		mailstore.WithHTTPClient(cfg.httpClient),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		identity: identity,
		cfg:      cfg,
		pkg:      pkg,
		mail:     mail,
		store:    store,
		cache:    newCredentialCache(store, cfg.now),
	}, nil
}

// Identity returns the account identity the client was created for.
func (c *Client) Identity() string {
	return c.identity
}

// Close releases the client. Further operations fail with
// ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Client) checkClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// Parameters returns the sealing public key of the key server. The
// parameters are fetched once, cached in the store, and served from the
// cache when the key server is unreachable.
func (c *Client) Parameters(ctx context.Context) ([]byte, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.params != nil {
		params := c.params
		c.mu.Unlock()
		return params, nil
	}
	c.mu.Unlock()

	params, err := c.fetchParameters(ctx)
	if err != nil {
		cached, cacheErr := c.store.Get(parametersKey)
		if cacheErr != nil {
			return nil, err
		}
		params = cached
	}

	c.mu.Lock()
	c.params = params
	c.mu.Unlock()
	return params, nil
}

func (c *Client) fetchParameters(ctx context.Context) ([]byte, error) {
	resp, err := c.pkg.GetParameters(ctx)
	if err != nil {
		return nil, wrapError(err)
	}
	params, err := base64.RawURLEncoding.DecodeString(resp.PublicKey)
	if err != nil {
		if params, err = base64.URLEncoding.DecodeString(resp.PublicKey); err != nil {
			return nil, fmt.Errorf("decode key server public key: %w", err)
		}
	}
	c.store.Set(parametersKey, params)
	return params, nil
}

// RequestDisclosure runs one interactive disclosure session for the
// conjunction and caches the resulting credential. Callers normally do
// not use this directly; Decrypt drives disclosure as needed.
func (c *Client) RequestDisclosure(ctx context.Context, con Conjunction) (string, error) {
	if err := c.checkClosed(); err != nil {
		return "", err
	}
	return c.runDisclosure(ctx, con)
}

func (c *Client) runDisclosure(ctx context.Context, con Conjunction) (string, error) {
	session, err := startDisclosure(ctx, c.pkg, con, c.cfg.now(), c.cfg.onSessionState)
	if err != nil {
		return "", err
	}
	if c.cfg.onSessionPointer != nil {
		c.cfg.onSessionPointer(session.Pointer())
	}
	credential, err := session.Await(ctx)
	if err != nil {
		return "", err
	}
	if err := c.cache.Store(con, credential); err != nil {
		return "", fmt.Errorf("cache credential: %w", err)
	}
	return credential, nil
}

// obtainKey returns decryption key bytes for the conjunction at the given
// timestamp. A cached credential is tried first; when the key server
// rejects it, the cache entry is evicted and exactly one fresh disclosure
// is attempted before giving up.
func (c *Client) obtainKey(ctx context.Context, con Conjunction, timestamp int64) ([]byte, error) {
	credential, ok, err := c.cache.Lookup(con)
	if err != nil {
		return nil, fmt.Errorf("credential cache: %w", err)
	}

	if ok {
		key, err := c.pkg.RequestKey(ctx, credential, timestamp)
		if err == nil {
			return key, nil
		}
		if !credentialRejected(err) {
			return nil, wrapError(err)
		}
		// The server disagrees with our local expiry check. Evict and
		// fall through to a fresh disclosure.
		c.cache.Evict(con)
	}

	credential, err = c.runDisclosure(ctx, con)
	if err != nil {
		return nil, err
	}
	key, err := c.pkg.RequestKey(ctx, credential, timestamp)
	if err != nil {
		return nil, wrapError(err)
	}
	return key, nil
}

// credentialRejected reports whether a key request failed because the
// credential itself was not accepted, as opposed to a transport or
// server-side failure.
func credentialRejected(err error) bool {
	if errors.Is(err, pkgapi.ErrProofInvalid) {
		return true
	}
	var apiErr *pkgapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}
