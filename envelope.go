package attrmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Canonical envelope format, version 1: the outer MIME message carries an
// X-AttrMail-Version header and exactly one attachment of type
// EnvelopeContentType holding the sealed stream. Earlier wire formats are
// not parsed.
const (
	// EnvelopeVersion is the canonical outer envelope format version.
	EnvelopeVersion = "1"

	// EnvelopeVersionHeader is the outer MIME header naming the format version.
	EnvelopeVersionHeader = "X-AttrMail-Version"

	// EnvelopeContentType is the MIME type of the ciphertext payload part.
	EnvelopeContentType = "application/vnd.attrmail.encrypted"

	// EnvelopeFilename is the filename of the ciphertext payload part.
	EnvelopeFilename = "attrmail.enc"
)

// Attachment is a file carried by an inner mail. Inline attachments are
// referenced from the HTML body by Content-ID and excluded from the
// regular attachment list shown next to the message.
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Inline      bool
	Content     []byte
}

// InnerMail is the plaintext message wrapped by a sealed envelope. It is
// built immediately before sealing and reparsed immediately after
// unsealing; it is never retained across operations.
type InnerMail struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// OuterEnvelope is the parsed form of a received sealed message.
type OuterEnvelope struct {
	From       string
	To         []string
	Cc         []string
	Subject    string
	Ciphertext []byte
}

// BuildInnerMail serializes the inner mail as a standards-conformant MIME
// message. Reparsing the result with ParseInnerMail reproduces the
// recipient lists, subject, body, and attachment set.
func BuildInnerMail(m *InnerMail) ([]byte, error) {
	if m.From == "" {
		return nil, &EnvelopeError{Message: "inner mail has no sender"}
	}

	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(m.Subject)
	h.SetAddressList("From", toAddressList([]string{m.From}))
	h.SetAddressList("To", toAddressList(m.To))
	if len(m.Cc) > 0 {
		h.SetAddressList("Cc", toAddressList(m.Cc))
	}
	if len(m.Bcc) > 0 {
		h.SetAddressList("Bcc", toAddressList(m.Bcc))
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, &EnvelopeError{Message: "create inner mail writer", Err: err}
	}

	var th mail.InlineHeader
	th.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, &EnvelopeError{Message: "create body part", Err: err}
	}
	if _, err := io.WriteString(tw, m.HTMLBody); err != nil {
		return nil, &EnvelopeError{Message: "write body", Err: err}
	}
	if err := tw.Close(); err != nil {
		return nil, &EnvelopeError{Message: "close body part", Err: err}
	}

	for _, att := range m.Attachments {
		if err := writeAttachment(mw, att); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, &EnvelopeError{Message: "close inner mail", Err: err}
	}
	return buf.Bytes(), nil
}

func writeAttachment(mw *mail.Writer, att Attachment) error {
	ct := att.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	var ah mail.AttachmentHeader
	ah.Set("Content-Type", ct)
	ah.Set("Content-Transfer-Encoding", "base64")
	if att.Inline {
		ah.Set("Content-Disposition",
			mime.FormatMediaType("inline", map[string]string{"filename": att.Filename}))
		if att.ContentID != "" {
			ah.Set("Content-Id", "<"+att.ContentID+">")
		}
	} else {
		ah.SetFilename(att.Filename)
	}

	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return &EnvelopeError{Message: "create attachment " + att.Filename, Err: err}
	}
	if _, err := aw.Write(att.Content); err != nil {
		return &EnvelopeError{Message: "write attachment " + att.Filename, Err: err}
	}
	if err := aw.Close(); err != nil {
		return &EnvelopeError{Message: "close attachment " + att.Filename, Err: err}
	}
	return nil
}

// ParseInnerMail is the inverse of BuildInnerMail. A plain text body is
// promoted to HTML so callers always receive displayable HTML.
func ParseInnerMail(raw []byte) (*InnerMail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &EnvelopeError{Message: "parse inner mail", Err: err}
	}

	m := &InnerMail{}
	m.Subject, _ = mr.Header.Subject()
	m.From = firstAddress(mr.Header, "From")
	m.To = addressStrings(mr.Header, "To")
	m.Cc = addressStrings(mr.Header, "Cc")
	m.Bcc = addressStrings(mr.Header, "Bcc")

	var textBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &EnvelopeError{Message: "read inner mail part", Err: err}
		}

		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			content, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, &EnvelopeError{Message: "read part body", Err: err}
			}
			switch {
			case ct == "text/html":
				m.HTMLBody = string(content)
			case strings.HasPrefix(ct, "text/"):
				textBody = string(content)
			default:
				// Inline non-text part: an embedded image or similar.
				m.Attachments = append(m.Attachments, Attachment{
					Filename:    inlineFilename(ph),
					ContentType: ct,
					ContentID:   contentID(ph.Get("Content-Id")),
					Inline:      true,
					Content:     content,
				})
			}
		case *mail.AttachmentHeader:
			filename, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			content, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, &EnvelopeError{Message: "read attachment " + filename, Err: err}
			}
			m.Attachments = append(m.Attachments, Attachment{
				Filename:    filename,
				ContentType: ct,
				ContentID:   contentID(ph.Get("Content-Id")),
				Content:     content,
			})
		}
	}

	if m.HTMLBody == "" && textBody != "" {
		m.HTMLBody = textToHTML(textBody)
	}
	return m, nil
}

// BuildOuterEnvelope wraps a sealed stream in the canonical versioned
// outer MIME message. Bcc never appears on the outer envelope.
func BuildOuterEnvelope(sender, subject string, to, cc []string, ciphertext []byte) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(subject)
	h.SetAddressList("From", toAddressList([]string{sender}))
	h.SetAddressList("To", toAddressList(to))
	if len(cc) > 0 {
		h.SetAddressList("Cc", toAddressList(cc))
	}
	h.Set(EnvelopeVersionHeader, EnvelopeVersion)

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, &EnvelopeError{Message: "create outer envelope writer", Err: err}
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, &EnvelopeError{Message: "create notice part", Err: err}
	}
	if _, err := io.WriteString(tw, "This message is encrypted. Use an AttrMail-capable client to read it.\r\n"); err != nil {
		return nil, &EnvelopeError{Message: "write notice part", Err: err}
	}
	if err := tw.Close(); err != nil {
		return nil, &EnvelopeError{Message: "close notice part", Err: err}
	}

	var ah mail.AttachmentHeader
	ah.Set("Content-Type", EnvelopeContentType)
	ah.Set("Content-Transfer-Encoding", "base64")
	ah.SetFilename(EnvelopeFilename)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, &EnvelopeError{Message: "create ciphertext part", Err: err}
	}
	if _, err := aw.Write(ciphertext); err != nil {
		return nil, &EnvelopeError{Message: "write ciphertext", Err: err}
	}
	if err := aw.Close(); err != nil {
		return nil, &EnvelopeError{Message: "close ciphertext part", Err: err}
	}

	if err := mw.Close(); err != nil {
		return nil, &EnvelopeError{Message: "close outer envelope", Err: err}
	}
	return buf.Bytes(), nil
}

// ParseEnvelope extracts the sealed stream from a received outer MIME
// message. Only the canonical version-1 layout is accepted.
func ParseEnvelope(rawMIME []byte) (*OuterEnvelope, error) {
	mr, err := mail.CreateReader(bytes.NewReader(rawMIME))
	if err != nil {
		return nil, &EnvelopeError{Message: "parse outer envelope", Err: err}
	}

	if v := mr.Header.Get(EnvelopeVersionHeader); v != EnvelopeVersion {
		return nil, &EnvelopeError{
			Message: fmt.Sprintf("unsupported envelope version %q", v),
		}
	}

	env := &OuterEnvelope{
		From: firstAddress(mr.Header, "From"),
		To:   addressStrings(mr.Header, "To"),
		Cc:   addressStrings(mr.Header, "Cc"),
	}
	env.Subject, _ = mr.Header.Subject()

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &EnvelopeError{Message: "read envelope part", Err: err}
		}

		ct := partContentType(p.Header)
		if ct != EnvelopeContentType {
			continue
		}
		ciphertext, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, &EnvelopeError{Message: "read ciphertext part", Err: err}
		}
		env.Ciphertext = ciphertext
	}

	if env.Ciphertext == nil {
		return nil, &EnvelopeError{Message: "no ciphertext part found"}
	}
	return env, nil
}

// RewriteInlineImages replaces cid: references in the HTML body with
// inline data URIs. Attachments consumed this way are dropped from the
// returned attachment list so they are not shown twice.
func RewriteInlineImages(htmlBody string, attachments []Attachment) (string, []Attachment) {
	remaining := make([]Attachment, 0, len(attachments))
	for _, att := range attachments {
		if att.ContentID == "" || !strings.Contains(htmlBody, "cid:"+att.ContentID) {
			remaining = append(remaining, att)
			continue
		}
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		dataURI := "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(att.Content)
		htmlBody = strings.ReplaceAll(htmlBody, "cid:"+att.ContentID, dataURI)
	}
	return htmlBody, remaining
}

func toAddressList(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, &mail.Address{Address: a})
	}
	return out
}

func addressStrings(h mail.Header, field string) []string {
	list, err := h.AddressList(field)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

func firstAddress(h mail.Header, field string) string {
	list, err := h.AddressList(field)
	if err != nil || len(list) == 0 {
		return ""
	}
	return list[0].Address
}

func partContentType(h interface{ Get(string) string }) string {
	ct, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return ct
}

// inlineFilename extracts the filename parameter of an inline part's
// Content-Disposition header.
func inlineFilename(h *mail.InlineHeader) string {
	_, params, err := mime.ParseMediaType(h.Get("Content-Disposition"))
	if err != nil {
		return ""
	}
	return params["filename"]
}

// contentID strips the angle brackets of a Content-ID header value.
func contentID(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), "<>")
}

// textToHTML promotes a plain text body to minimal displayable HTML.
func textToHTML(text string) string {
	var b strings.Builder
	b.WriteString("<p>")
	b.WriteString(strings.ReplaceAll(html.EscapeString(text), "\n", "<br>"))
	b.WriteString("</p>")
	return b.String()
}
