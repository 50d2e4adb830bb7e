package attrmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/attrmail/client-go/internal/mailstore"
	"github.com/attrmail/client-go/internal/sealcrypto"
)

// encryptedSubjectNotice replaces the outer subject when subject
// encryption is enabled.
const encryptedSubjectNotice = "Encrypted message"

// Seal builds the inner mail for the item, seals it for every recipient
// and the sender, and returns the complete outer MIME envelope ready for
// transport. Nothing is sent and the item is not modified. policies may
// be nil, in which case a single-identity-attribute policy per recipient
// is built from the item's address lists.
func (c *Client) Seal(ctx context.Context, item *MailItem, policies PolicyMap) ([]byte, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	return c.seal(ctx, item, policies, nil)
}

func (c *Client) seal(ctx context.Context, item *MailItem, policies PolicyMap, assertion []byte) ([]byte, error) {
	now := c.cfg.now().Unix()

	if policies == nil {
		var err error
		policies, err = BuildPolicies(item.To, item.Cc, item.Bcc, item.From, c.cfg.identityAttribute, now)
		if err != nil {
			return nil, err
		}
	} else if len(item.Bcc) > 0 {
		return nil, ErrBccUnsupported
	}

	var problems []string
	if item.Subject == "" {
		problems = append(problems, "message subject is empty")
	}
	if item.HTMLBody == "" && len(item.Attachments) == 0 {
		problems = append(problems, "message body is empty")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}

	inner, err := BuildInnerMail(&InnerMail{
		From:        item.From,
		To:          item.To,
		Cc:          item.Cc,
		Subject:     item.Subject,
		HTMLBody:    item.HTMLBody,
		Attachments: item.Attachments,
	})
	if err != nil {
		return nil, err
	}

	params, err := c.Parameters(ctx)
	if err != nil {
		return nil, err
	}

	sealPolicies := make(map[string]sealcrypto.Policy, len(policies))
	for identity, policy := range policies {
		normalized := policy.Normalize(identity, c.cfg.identityAttribute)
		con := make([]sealcrypto.AttributeRequest, 0, len(normalized.Conjunction))
		for _, attr := range normalized.Conjunction.Sorted() {
			con = append(con, sealcrypto.AttributeRequest{Type: attr.Type, Value: attr.Value})
		}
		sealPolicies[identity] = sealcrypto.Policy{
			Timestamp:   normalized.Timestamp,
			Conjunction: con,
		}
	}

	var sealed bytes.Buffer
	opts := sealcrypto.SealOptions{Sender: item.From, Assertion: assertion}
	if err := sealcrypto.Seal(params, sealPolicies, opts, bytes.NewReader(inner), &sealed); err != nil {
		return nil, &SealError{Stage: "seal", Err: err}
	}

	outerSubject := item.Subject
	if c.cfg.encryptSubject {
		outerSubject = encryptedSubjectNotice
	}
	return BuildOuterEnvelope(item.From, outerSubject, item.To, item.Cc, sealed.Bytes())
}

// Encrypt seals the item and hands the sealed envelope to the mail store
// for sending. On success the item's compose fields are wiped; on any
// failure the item is left untouched so the caller can retry.
func (c *Client) Encrypt(ctx context.Context, item *MailItem) error {
	return c.encrypt(ctx, item, nil)
}

// EncryptExtended behaves like Encrypt but seals under caller-supplied
// per-recipient conjunctions instead of the default identity-attribute
// policy. Every identity in conjunctions, plus the sender, is sealed for.
func (c *Client) EncryptExtended(ctx context.Context, item *MailItem, conjunctions map[string]Conjunction) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	now := c.cfg.now().Unix()
	policies, err := BuildExtendedPolicies(conjunctions, now)
	if err != nil {
		return err
	}
	if _, ok := policies[item.From]; !ok && item.From != "" {
		policies[item.From] = Policy{
			Timestamp:   now,
			Conjunction: Conjunction{{Type: c.cfg.identityAttribute, Value: item.From}},
		}
	}
	return c.encrypt(ctx, item, policies)
}

// EncryptSigned seals the item with an embedded sender assertion: the
// sender first discloses their own identity attribute and the resulting
// credential travels in the sealed header, where recipients receive it
// after a successful unseal.
func (c *Client) EncryptSigned(ctx context.Context, item *MailItem) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	con := Conjunction{{Type: c.cfg.identityAttribute, Value: item.From}}
	credential, ok, err := c.cache.Lookup(con)
	if err != nil {
		return fmt.Errorf("credential cache: %w", err)
	}
	if !ok {
		credential, err = c.runDisclosure(ctx, con)
		if err != nil {
			return err
		}
	}
	return c.encryptWith(ctx, item, nil, []byte(credential))
}

func (c *Client) encrypt(ctx context.Context, item *MailItem, policies PolicyMap) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	return c.encryptWith(ctx, item, policies, nil)
}

func (c *Client) encryptWith(ctx context.Context, item *MailItem, policies PolicyMap, assertion []byte) error {
	outer, err := c.seal(ctx, item, policies, assertion)
	if err != nil {
		return err
	}

	if err := c.mail.SendMIME(ctx, outer); err != nil {
		return wrapError(err)
	}

	if c.cfg.storePlaintextCopy {
		// Best effort: the sealed message is already out, a failed copy
		// must not fail the send.
		c.storePlaintext(ctx, item)
	}

	item.clearCompose()
	return nil
}

// storePlaintext files a plaintext copy of the sent item in the
// configured copy folder.
func (c *Client) storePlaintext(ctx context.Context, item *MailItem) error {
	folderID, err := c.mail.EnsureFolder(ctx, c.cfg.copyFolder)
	if err != nil {
		return wrapError(err)
	}

	msg := &mailstore.Message{
		Subject: item.Subject,
		Body: mailstore.ItemBody{
			ContentType: "html",
			Content:     item.HTMLBody,
		},
		ToRecipients: toRecipients(item.To),
		CcRecipients: toRecipients(item.Cc),
	}
	messageID, err := c.mail.CreateMessageInFolder(ctx, folderID, msg)
	if err != nil {
		return wrapError(err)
	}

	for _, att := range item.Attachments {
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

func toRecipients(addrs []string) []mailstore.Recipient {
	out := make([]mailstore.Recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, mailstore.Recipient{
			EmailAddress: mailstore.EmailAddress{Address: a},
		})
	}
	return out
}
