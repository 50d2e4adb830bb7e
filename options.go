package attrmail

import (
	"net/http"
	"time"

	"github.com/attrmail/client-go/internal/storage"
)

const (
	defaultPKGBaseURL  = "https://pkg.attrmail.org"
	defaultMailBaseURL = "https://graph.microsoft.com"

	// defaultIdentityAttribute is the attribute type asserting control of
	// an email address. Sealing targets recipients by this attribute
	// unless a policy says otherwise.
	defaultIdentityAttribute = "attrmail.user.email"

	// defaultCopyFolder is where plaintext copies of sent messages are
	// kept when plaintext copies are enabled.
	defaultCopyFolder = "AttrMail Sent"

	// Version is the client library version, reported to the key server
	// on every request.
	Version = "0.4.0"
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	pkgBaseURL  string
	mailBaseURL string
	httpClient  *http.Client

	identityAttribute string
	clientVersion     string

	store      storage.Store
	storageDir string

	now func() time.Time

	onSessionState   func(SessionState)
	onSessionPointer func(SessionPointer)

	storePlaintextCopy bool
	copyFolder         string
	encryptSubject     bool
}

// Option configures the client.
type Option func(*clientConfig)

// WithPKGBaseURL sets the key server base URL.
func WithPKGBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.pkgBaseURL = url
	}
}

// WithMailBaseURL sets the mail store base URL.
func WithMailBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.mailBaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client, shared by the key server and
// mail store clients.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithIdentityAttribute sets the attribute type used to target recipients
// by email address.
// Default: "attrmail.user.email"
func WithIdentityAttribute(attributeType string) Option {
	return func(c *clientConfig) {
		c.identityAttribute = attributeType
	}
}

// WithClientVersion overrides the client version string reported to the
// key server.
func WithClientVersion(version string) Option {
	return func(c *clientConfig) {
		c.clientVersion = version
	}
}

// WithStorageDir sets the directory for cached credentials and key server
// parameters. When neither WithStorageDir nor WithStore is given, the
// client keeps its cache in memory only.
func WithStorageDir(dir string) Option {
	return func(c *clientConfig) {
		c.storageDir = dir
	}
}

// WithStore sets a custom backing store for cached credentials and key
// server parameters. Takes precedence over WithStorageDir.
func WithStore(store storage.Store) Option {
	return func(c *clientConfig) {
		c.store = store
	}
}

// WithClock sets the time source. Policies, credential expiry checks, and
// disclosure validity all read time through it.
// Default: time.Now
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		c.now = now
	}
}

// WithSessionStateFunc registers a callback invoked on every disclosure
// session state change, for driving UI such as a QR dialog.
func WithSessionStateFunc(fn func(SessionState)) Option {
	return func(c *clientConfig) {
		c.onSessionState = fn
	}
}

// WithSessionPointerFunc registers a callback invoked once per disclosure
// session with the session pointer, right after the session is opened.
// The pointer is what the UI renders as a QR code or wallet deep link.
func WithSessionPointerFunc(fn func(SessionPointer)) Option {
	return func(c *clientConfig) {
		c.onSessionPointer = fn
	}
}

// WithPlaintextCopies keeps a plaintext copy of each sent message in a
// dedicated mail folder, so the sender can still read their own sent
// mail without holding a usable decryption key. An empty folder name
// selects the default.
func WithPlaintextCopies(folder string) Option {
	return func(c *clientConfig) {
		c.storePlaintextCopy = true
		if folder != "" {
			c.copyFolder = folder
		}
	}
}

// WithEncryptedSubject replaces the outer subject with a fixed notice;
// the real subject travels only inside the sealed payload.
func WithEncryptedSubject() Option {
	return func(c *clientConfig) {
		c.encryptSubject = true
	}
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		pkgBaseURL:        defaultPKGBaseURL,
		mailBaseURL:       defaultMailBaseURL,
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		identityAttribute: defaultIdentityAttribute,
		clientVersion:     Version,
		now:               time.Now,
		copyFolder:        defaultCopyFolder,
	}
}
