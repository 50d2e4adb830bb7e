package attrmail

// MailItem is the compose or read surface of one message. Callers fill it
// from whatever mail client hosts them and pass it explicitly to Encrypt;
// nothing about the current message is ambient client state.
type MailItem struct {
	// ID is the mail store message identifier. Empty for a draft that has
	// not been saved yet.
	ID string

	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string

	// HTMLBody is the displayable body. Plain text composes should be
	// promoted to HTML by the caller.
	HTMLBody string

	Attachments []Attachment
}

// clearCompose wipes the sensitive compose fields. Called only after the
// sealed message has been accepted by the mail store, so a failed send
// never loses the draft.
func (m *MailItem) clearCompose() {
	m.To = nil
	m.Cc = nil
	m.Bcc = nil
	m.Subject = ""
	m.HTMLBody = ""
	m.Attachments = nil
}
