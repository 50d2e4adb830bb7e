package mailstore

import (
	"errors"
	"fmt"
)

// ErrMessageNotFound indicates the requested message does not exist.
var ErrMessageNotFound = errors.New("message not found")

// Folder represents a mail folder.
type Folder struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	IsHidden    bool   `json:"isHidden,omitempty"`
}

// EmailAddress wraps an address the way the store's JSON schema nests it.
type EmailAddress struct {
	Address string `json:"address"`
}

// Recipient is one entry of a recipient list.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is a message body with its content type.
type ItemBody struct {
	ContentType string `json:"contentType"` // "html" or "text"
	Content     string `json:"content"`
}

// Message is the store's JSON message shape, used when creating the
// local plaintext copy of a sent mail.
type Message struct {
	Subject        string      `json:"subject"`
	Body           ItemBody    `json:"body"`
	Sender         *Recipient  `json:"sender,omitempty"`
	ToRecipients   []Recipient `json:"toRecipients,omitempty"`
	CcRecipients   []Recipient `json:"ccRecipients,omitempty"`
	BccRecipients  []Recipient `json:"bccRecipients,omitempty"`
	HasAttachments bool        `json:"hasAttachments,omitempty"`
}

// MessagePatch carries the mutable fields of a stored message.
type MessagePatch struct {
	Subject *string   `json:"subject,omitempty"`
	Body    *ItemBody `json:"body,omitempty"`
}

// Attachment is a file attachment in the store's JSON schema.
// ContentBytes is standard base64.
type Attachment struct {
	ODataType    string `json:"@odata.type,omitempty"`
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType,omitempty"`
	ContentBytes string `json:"contentBytes,omitempty"`
	IsInline     bool   `json:"isInline,omitempty"`
}

// FileAttachmentType is the @odata.type value for file attachments.
const FileAttachmentType = "#microsoft.graph.fileAttachment"

// APIError represents an HTTP error from the mail store.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("mail store error %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("mail store error %d at %s", e.StatusCode, e.Endpoint)
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	return e.StatusCode == 404 && target == ErrMessageNotFound
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err error
	URL string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}
