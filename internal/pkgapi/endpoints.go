package pkgapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// GetParameters retrieves the key generator's public parameters.
func (c *Client) GetParameters(ctx context.Context) (*Parameters, error) {
	var result Parameters
	if err := c.do(ctx, http.MethodGet, "/v2/parameters", "", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartSession asks the coordinator to open a disclosure session for the
// given conjunction. The validity bounds how long the session may remain
// open for completion, not the resulting credential's lifetime.
func (c *Client) StartSession(ctx context.Context, req *StartSessionRequest) (*StartSessionResponse, error) {
	var result StartSessionResponse
	if err := c.do(ctx, http.MethodPost, "/v2/request/start", "", req, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, fmt.Errorf("coordinator returned no session token")
	}
	return &result, nil
}

// SessionStatus polls the coordinator for the session's current state.
// The coordinator reports a bare JSON string such as "DONE".
func (c *Client) SessionStatus(ctx context.Context, sessionToken string) (string, error) {
	path := fmt.Sprintf("/v2/request/status/%s", url.PathEscape(sessionToken))
	var status string
	if err := c.do(ctx, http.MethodGet, path, "", nil, &status); err != nil {
		return "", err
	}
	return strings.ToUpper(status), nil
}

// SessionResult exchanges a completed session's token for the signed
// credential. The result endpoint returns the credential as a plain text
// body rather than JSON.
func (c *Client) SessionResult(ctx context.Context, sessionToken string) (string, error) {
	path := fmt.Sprintf("/v2/request/jwt/%s", url.PathEscape(sessionToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-AttrMail-Client-Version", c.clientVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err, URL: c.baseURL + path}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", parseErrorResponse(resp, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}

	credential := strings.TrimSpace(string(body))
	// Tolerate coordinators that quote the credential as a JSON string.
	if strings.HasPrefix(credential, `"`) {
		var unquoted string
		if err := json.Unmarshal(body, &unquoted); err == nil {
			credential = unquoted
		}
	}
	if credential == "" {
		return "", fmt.Errorf("coordinator returned an empty credential")
	}
	return credential, nil
}

// RequestKey exchanges a credential for the decryption key of the given
// timestamp epoch. The caller must present a credential obtained from a
// completed disclosure session; the server re-checks the proof.
func (c *Client) RequestKey(ctx context.Context, credential string, timestamp int64) ([]byte, error) {
	path := fmt.Sprintf("/v2/request/key/%d", timestamp)
	var result KeyResponse
	if err := c.do(ctx, http.MethodGet, path, credential, nil, &result); err != nil {
		return nil, err
	}

	if result.Status != StatusDone || result.ProofStatus != "VALID" {
		return nil, fmt.Errorf("%w: status=%s proofStatus=%s",
			ErrProofInvalid, result.Status, result.ProofStatus)
	}

	key, err := fromBase64URL(result.Key)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return key, nil
}
