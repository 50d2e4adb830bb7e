package mailstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// GetMessageMIME fetches the raw MIME source of a message.
func (c *Client) GetMessageMIME(ctx context.Context, messageID string) ([]byte, error) {
	bearer, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch mail store token: %w", err)
	}

	path := fmt.Sprintf("/v1.0/me/messages/%s/$value", url.PathEscape(messageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err, URL: c.baseURL + path}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp, path)
	}
	return io.ReadAll(resp.Body)
}

// SendMIME submits a complete MIME message for delivery. The store
// expects the raw message base64-encoded with a text/plain content type.
func (c *Client) SendMIME(ctx context.Context, rawMIME []byte) error {
	encoded := base64.StdEncoding.EncodeToString(rawMIME)
	return c.do(ctx, http.MethodPost, "/v1.0/me/sendMail", "text/plain", []byte(encoded), nil)
}

// PatchMessage replaces the body and, when non-nil, the subject of a
// stored message.
func (c *Client) PatchMessage(ctx context.Context, messageID string, patch *MessagePatch) error {
	path := fmt.Sprintf("/v1.0/me/messages/%s", url.PathEscape(messageID))
	return c.doJSON(ctx, http.MethodPatch, path, patch, nil)
}

// ListFolders lists the account's mail folders.
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var result struct {
		Value []Folder `json:"value"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1.0/me/mailFolders", nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// CreateFolder creates a visible mail folder with the given display name.
func (c *Client) CreateFolder(ctx context.Context, displayName string) (*Folder, error) {
	req := map[string]interface{}{
		"displayName": displayName,
		"isHidden":    false,
	}
	var result Folder
	if err := c.doJSON(ctx, http.MethodPost, "/v1.0/me/mailFolders", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EnsureFolder returns the id of the folder with the given display name,
// creating it when missing.
func (c *Client) EnsureFolder(ctx context.Context, displayName string) (string, error) {
	folders, err := c.ListFolders(ctx)
	if err != nil {
		return "", err
	}
	for _, f := range folders {
		if f.DisplayName == displayName {
			return f.ID, nil
		}
	}
	created, err := c.CreateFolder(ctx, displayName)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// CreateMessageInFolder stores a message in the given folder and returns
// its id.
func (c *Client) CreateMessageInFolder(ctx context.Context, folderID string, msg *Message) (string, error) {
	path := fmt.Sprintf("/v1.0/me/mailFolders/%s/messages", url.PathEscape(folderID))
	var result struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, msg, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// ListAttachments lists a message's attachments.
func (c *Client) ListAttachments(ctx context.Context, messageID string) ([]Attachment, error) {
	path := fmt.Sprintf("/v1.0/me/messages/%s/attachments", url.PathEscape(messageID))
	var result struct {
		Value []Attachment `json:"value"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// AddAttachment attaches a file to a message.
func (c *Client) AddAttachment(ctx context.Context, messageID string, att *Attachment) error {
	path := fmt.Sprintf("/v1.0/me/messages/%s/attachments", url.PathEscape(messageID))
	return c.doJSON(ctx, http.MethodPost, path, att, nil)
}

// DeleteAttachment removes an attachment from a message.
func (c *Client) DeleteAttachment(ctx context.Context, messageID, attachmentID string) error {
	path := fmt.Sprintf("/v1.0/me/messages/%s/attachments/%s",
		url.PathEscape(messageID), url.PathEscape(attachmentID))
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}
