package attrmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/attrmail/client-go/internal/mailstore"
	"github.com/attrmail/client-go/internal/sealcrypto"
)

// UnsealResult is the outcome of unsealing a message for this client's
// identity.
type UnsealResult struct {
	// Mail is the recovered inner mail, with inline images rewritten into
	// the HTML body.
	Mail *InnerMail

	// Sender is the sender identity claimed in the sealed header. It is
	// authenticated only when Assertion is present and verified by the
	// caller.
	Sender string

	// Assertion is the sender's disclosure credential when the message
	// was sealed signed, nil otherwise.
	Assertion []byte

	// Timestamp is the epoch this recipient's policy was stamped with.
	Timestamp int64
}

// Unseal recovers the inner mail from a received outer MIME message. It
// drives a disclosure session through the configured callback when no
// usable credential is cached. The raw message is not modified; use
// Decrypt to also rewrite the stored message in place.
func (c *Client) Unseal(ctx context.Context, rawMIME []byte) (*UnsealResult, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	env, err := ParseEnvelope(rawMIME)
	if err != nil {
		return nil, err
	}
	return c.unseal(ctx, env.Ciphertext)
}

func (c *Client) unseal(ctx context.Context, ciphertext []byte) (*UnsealResult, error) {
	un, err := sealcrypto.NewUnsealer(bytes.NewReader(ciphertext))
	if err != nil {
		if errors.Is(err, sealcrypto.ErrMalformedHeader) || errors.Is(err, sealcrypto.ErrUnsupportedVersion) {
			return nil, &EnvelopeError{Message: "sealed stream header", Err: err}
		}
		return nil, &SealError{Stage: "inspect", Err: err}
	}

	identityKey, policy, ok := findPolicy(un.Policies(), c.identity)
	if !ok {
		return nil, ErrRecipientNotTargeted
	}

	con := make(Conjunction, 0, len(policy.Conjunction))
	for _, attr := range policy.Conjunction {
		con = append(con, AttributeRequest{Type: attr.Type, Value: attr.Value})
	}
	con = Policy{Timestamp: policy.Timestamp, Conjunction: con}.
		Normalize(c.identity, c.cfg.identityAttribute).Conjunction

	key, err := c.obtainKey(ctx, con, policy.Timestamp)
	if err != nil {
		return nil, err
	}

	var plain bytes.Buffer
	assertion, err := un.Unseal(identityKey, key, &plain)
	if err != nil {
		if errors.Is(err, sealcrypto.ErrKeyMismatch) {
			// The key decrypted nothing for our slot: it proves a
			// different identity or epoch than the header names. The
			// credential behind it is useless for this message.
			c.cache.Evict(con)
			return nil, fmt.Errorf("%w: %v", ErrIdentityMismatch, err)
		}
		return nil, &SealError{Stage: "unseal", Err: err}
	}

	inner, err := ParseInnerMail(plain.Bytes())
	if err != nil {
		return nil, err
	}
	inner.HTMLBody, inner.Attachments = RewriteInlineImages(inner.HTMLBody, inner.Attachments)

	return &UnsealResult{
		Mail:      inner,
		Sender:    un.Sender(),
		Assertion: assertion,
		Timestamp: policy.Timestamp,
	}, nil
}

// Decrypt fetches a stored message, unseals it, and rewrites the stored
// copy in place: subject and body are replaced with the plaintext and the
// ciphertext attachment is swapped for the real attachments, so the mail
// client renders the message normally from then on.
func (c *Client) Decrypt(ctx context.Context, messageID string) (*UnsealResult, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	rawMIME, err := c.mail.GetMessageMIME(ctx, messageID)
	if err != nil {
		return nil, wrapError(err)
	}

	result, err := c.Unseal(ctx, rawMIME)
	if err != nil {
		return nil, err
	}

	if err := c.rewriteStoredMessage(ctx, messageID, result.Mail); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) rewriteStoredMessage(ctx context.Context, messageID string, inner *InnerMail) error {
	patch := &mailstore.MessagePatch{
		Subject: &inner.Subject,
		Body: &mailstore.ItemBody{
			ContentType: "html",
			Content:     inner.HTMLBody,
		},
	}
	if err := c.mail.PatchMessage(ctx, messageID, patch); err != nil {
		return wrapError(err)
	}

	existing, err := c.mail.ListAttachments(ctx, messageID)
	if err != nil {
		return wrapError(err)
	}
	for _, att := range existing {
		if err := c.mail.DeleteAttachment(ctx, messageID, att.ID); err != nil {
			return wrapError(err)
		}
	}

	for _, att := range inner.Attachments {
		a := &mailstore.Attachment{
			ODataType:    mailstore.FileAttachmentType,
			Name:         att.Filename,
			ContentType:  att.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
			IsInline:     att.Inline,
		}
		if err := c.mail.AddAttachment(ctx, messageID, a); err != nil {
			return wrapError(err)
		}
	}
	return nil
}

// findPolicy looks up the policy for an identity in the sealed header,
// comparing identities case-insensitively. It returns the header's own
// spelling of the identity, which keys the wrapped session key.
func findPolicy(policies map[string]sealcrypto.Policy, identity string) (string, sealcrypto.Policy, bool) {
	if p, ok := policies[identity]; ok {
		return identity, p, true
	}
	for key, p := range policies {
		if strings.EqualFold(key, identity) {
			return key, p, true
		}
	}
	return "", sealcrypto.Policy{}, false
}
