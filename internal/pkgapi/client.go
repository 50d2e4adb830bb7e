// Package pkgapi implements the HTTP client for the policy key generator:
// public parameter fetch, disclosure session coordination, and per-epoch
// key retrieval.
package pkgapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 30 * time.Second

// Client is the HTTP client for the policy key generator.
type Client struct {
	baseURL       string
	clientVersion string
	httpClient    *http.Client

	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration
}

// Option configures the API client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRetry overrides the retry behavior: at most maxRetries extra
// attempts, with delays doubling from base up to max.
func WithRetry(maxRetries int, base, max time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBase = base
		c.retryMax = max
	}
}

// WithClientVersion sets the value of the client-version header sent on
// every request, identifying host platform and add-in version.
func WithClientVersion(version string) Option {
	return func(c *Client) {
		c.clientVersion = version
	}
}

// New creates a new key generator client.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	c := &Client{
		baseURL:       baseURL,
		clientVersion: "attrmail-go",
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
		retryMax:   defaultRetryMax,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// do performs one JSON request/response cycle with retries on retryable
// status codes. A bearer token is attached when non-empty.
func (c *Client) do(ctx context.Context, method, path, bearer string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = data
	}

	url := c.baseURL + path

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-AttrMail-Client-Version", c.clientVersion)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if c.shouldRetry(attempt, 0) {
				if werr := c.waitRetry(ctx, attempt); werr != nil {
					return werr
				}
				continue
			}
			return &NetworkError{Err: err, URL: url}
		}

		if resp.StatusCode >= 400 {
			apiErr := parseErrorResponse(resp, path)
			resp.Body.Close()
			if c.shouldRetry(attempt, resp.StatusCode) {
				if werr := c.waitRetry(ctx, attempt); werr != nil {
					return werr
				}
				continue
			}
			return apiErr
		}

		if result != nil {
			err = json.NewDecoder(resp.Body).Decode(result)
		}
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

func parseErrorResponse(resp *http.Response, endpoint string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	msg := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error != "" {
			msg = errResp.Error
		} else if errResp.Message != "" {
			msg = errResp.Message
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Endpoint:   endpoint,
	}
}
