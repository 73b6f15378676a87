// Package parser reads RFC 5322 email messages back into a tree of MIME
// parts, for previewing and verifying what is about to be sent.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
)

// Message is a parsed email with its decoded top-level headers.
type Message struct {
	From       string
	To         []string
	Cc         []string
	Subject    string
	MessageID  string
	RawHeaders map[string][]string
	Root       *Node
}

// Node is one MIME part. Containers have Children; leaves have Content,
// already decoded from its transfer encoding.
type Node struct {
	ContentType string
	Params      map[string]string
	Header      textproto.MIMEHeader
	Disposition string
	Filename    string
	ContentID   string
	Content     []byte
	Children    []*Node
}

// IsMultipart reports whether n is a container.
func (n *Node) IsMultipart() bool {
	return strings.HasPrefix(n.ContentType, "multipart/")
}

// Walk calls fn for n and every descendant, depth first in document order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Leaves returns every non-container part in document order.
func (m *Message) Leaves() []*Node {
	var out []*Node
	m.Root.Walk(func(n *Node) {
		if !n.IsMultipart() {
			out = append(out, n)
		}
	})
	return out
}

// Find returns the first part with the given media type, or nil.
func (m *Message) Find(mediaType string) *Node {
	var found *Node
	m.Root.Walk(func(n *Node) {
		if found == nil && n.ContentType == mediaType {
			found = n
		}
	})
	return found
}

// Parse parses a raw RFC 5322 email message. Nested multipart containers
// are kept as a tree. Parts with an unparseable Content-Type are kept as
// application/octet-stream and logged.
func Parse(raw []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &Message{
		RawHeaders: make(map[string][]string),
	}

	// Copy all headers
	for key, values := range msg.Header {
		result.RawHeaders[key] = values
	}

	result.From = decodeHeader(msg.Header.Get("From"))
	result.Subject = decodeHeader(msg.Header.Get("Subject"))
	result.MessageID = msg.Header.Get("Message-Id")
	result.To = parseAddressList(msg.Header.Get("To"))
	result.Cc = parseAddressList(msg.Header.Get("Cc"))

	root, err := parseNode(textproto.MIMEHeader(msg.Header), msg.Body)
	if err != nil {
		return nil, err
	}
	result.Root = root

	return result, nil
}

func parseNode(header textproto.MIMEHeader, body io.Reader) (*Node, error) {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Warn("failed to parse content type, treating as binary",
			"content_type", contentType,
			"error", err,
		)
		mediaType = "application/octet-stream"
		params = map[string]string{}
	}

	node := &Node{
		ContentType: mediaType,
		Params:      params,
		Header:      header,
		ContentID:   strings.Trim(header.Get("Content-Id"), "<> "),
	}

	if cd := header.Get("Content-Disposition"); cd != "" {
		disposition, dparams, err := mime.ParseMediaType(cd)
		if err != nil {
			slog.Warn("failed to parse content disposition",
				"content_disposition", cd,
				"error", err,
			)
		} else {
			node.Disposition = disposition
			node.Filename = dparams["filename"]
		}
	}
	if node.Filename == "" {
		node.Filename = params["name"]
	}

	if node.IsMultipart() {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("%s part missing boundary", mediaType)
		}
		if err := parseMultipart(node, body, boundary); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", mediaType, err)
		}
		return node, nil
	}

	content, err := readContent(header, body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s content: %w", mediaType, err)
	}
	node.Content = content

	return node, nil
}

func parseMultipart(node *Node, body io.Reader, boundary string) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		child, err := parseNode(part.Header, part)
		if err != nil {
			return err
		}
		node.Children = append(node.Children, child)
	}
}

// readContent reads a part body and undoes its Content-Transfer-Encoding.
// multipart.Reader already decodes quoted-printable parts and drops the
// header, so the quoted-printable case only applies to single-part messages.
func readContent(header textproto.MIMEHeader, body io.Reader) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding")))

	switch encoding {
	case "base64":
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			// Try with RawStdEncoding for unpadded base64
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 content: %w", err)
			}
		}
		return decoded, nil
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(body))
	default:
		return io.ReadAll(body)
	}
}

// decodeHeader decodes RFC 2047 encoded-words, returning the input unchanged
// if it is not valid.
func decodeHeader(raw string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// parseAddressList splits a comma-separated address list into individual addresses.
func parseAddressList(raw string) []string {
	if raw == "" {
		return nil
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		// Fall back to simple comma split if RFC 5322 parsing fails
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
