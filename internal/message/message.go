// Package message builds the per-recipient MIME message: a multipart/mixed
// root holding a multipart/related body (itself holding a
// multipart/alternative plain/HTML pair and any inline images) followed by
// regular attachments.
package message

import (
	"encoding/base64"
	"net/mail"
	"strings"
)

// Media types of the fixed container tree.
const (
	TypeMixed       = "multipart/mixed"
	TypeRelated     = "multipart/related"
	TypeAlternative = "multipart/alternative"
	TypePlain       = "text/plain"
	TypeHTML        = "text/html"
	TypeOctetStream = "application/octet-stream"
)

// DefaultPlainText is the text/plain alternative sent to clients that cannot
// render HTML. It is not derived from the HTML body.
const DefaultPlainText = "This message contains HTML content. Please view it in an HTML-capable email client."

// Sender identifies the From address of a message.
type Sender struct {
	Name  string
	Email string
}

// String formats the sender as an RFC 5322 address. It returns "" when no
// email is set, in which case the From header is left out.
func (s Sender) String() string {
	if s.Email == "" {
		return ""
	}
	if s.Name == "" {
		return s.Email
	}
	return (&mail.Address{Name: s.Name, Address: s.Email}).String()
}

// Attachment references a file sent with Content-Disposition: attachment.
type Attachment struct {
	Path string
}

// InlineImage references a file sent inline and addressed from the HTML body
// as "cid:<ContentID>". ContentIDs must be unique within one message; that is
// up to the caller.
type InlineImage struct {
	Path      string
	ContentID string
}

// Part is one node of the message tree. Containers have Parts; leaves have
// Content holding the decoded payload.
type Part struct {
	ContentType string
	Disposition string // "", "inline" or "attachment"
	Filename    string
	ContentID   string
	Content     []byte
	Parts       []*Part
}

// IsMultipart reports whether p is a container.
func (p *Part) IsMultipart() bool {
	return strings.HasPrefix(p.ContentType, "multipart/")
}

// Message is a fully built email for a single recipient. It is never
// mutated after Build returns.
type Message struct {
	To      string
	Subject string
	From    string

	root *Part
	raw  []byte
}

// Root returns the multipart/mixed root part.
func (m *Message) Root() *Part {
	return m.root
}

// Bytes returns the serialized MIME message. The returned slice must not be
// modified.
func (m *Message) Bytes() []byte {
	return m.raw
}

// Raw returns the serialized message base64url encoded, the form the Gmail
// API expects in its "raw" field.
func (m *Message) Raw() string {
	return base64.URLEncoding.EncodeToString(m.raw)
}

// Leaves returns the non-container parts in tree order: plain text, HTML,
// inline images, then attachments.
func (m *Message) Leaves() []*Part {
	var out []*Part
	var walk func(p *Part)
	walk = func(p *Part) {
		if !p.IsMultipart() {
			out = append(out, p)
			return
		}
		for _, c := range p.Parts {
			walk(c)
		}
	}
	walk(m.root)
	return out
}

// Body returns the text/plain and text/html contents.
func (m *Message) Body() (text, html string) {
	for _, p := range m.Leaves() {
		switch {
		case p.ContentType == TypePlain && p.Disposition == "":
			text = string(p.Content)
		case p.ContentType == TypeHTML && p.Disposition == "":
			html = string(p.Content)
		}
	}
	return text, html
}
