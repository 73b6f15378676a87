package message

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
)

// base64LineLength is the maximum encoded line length per RFC 2045.
const base64LineLength = 76

// headerLineLength is the folding limit for generated header lines. RFC 2047
// caps lines holding encoded-words at 76 characters.
const headerLineLength = 76

// encode serializes m. Boundaries are derived from a digest of the message
// content instead of random bytes so that output is reproducible.
func encode(m *Message) ([]byte, error) {
	var buf bytes.Buffer

	if m.From != "" {
		writeHeader(&buf, "From", m.From)
	}
	writeHeader(&buf, "To", m.To)
	writeFoldedHeader(&buf, "Subject", subjectWords(m.Subject))
	writeHeader(&buf, "MIME-Version", "1.0")

	seed := digest(m)
	boundary := boundaryFor(m.root, seed)
	writeHeader(&buf, "Content-Type", mime.FormatMediaType(m.root.ContentType, map[string]string{"boundary": boundary}))
	buf.WriteString("\r\n")

	if err := writeContainer(&buf, m.root, boundary, seed); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

// writeFoldedHeader writes words separated by single spaces, breaking the
// line before a word that would run past headerLineLength.
func writeFoldedHeader(buf *bytes.Buffer, key string, words []string) {
	buf.WriteString(key + ":")
	col := len(key) + 1
	for i, w := range words {
		if i > 0 && col+1+len(w) > headerLineLength {
			buf.WriteString("\r\n")
			col = 0
		}
		buf.WriteString(" " + w)
		col += 1 + len(w)
	}
	buf.WriteString("\r\n")
}

// subjectWords splits a subject into foldable words. Printable ASCII is kept
// as is and split at spaces. Anything else becomes a run of Q encoded-words,
// each short enough to share a line with the "Subject: " prefix.
func subjectWords(subject string) []string {
	if mime.QEncoding.Encode("utf-8", subject) == subject {
		return strings.Split(subject, " ")
	}

	const (
		prefix = "=?utf-8?q?"
		suffix = "?="
	)
	maxText := headerLineLength - len("Subject: ") - len(prefix) - len(suffix)

	var words []string
	var cur strings.Builder
	for _, r := range subject {
		enc := qEncodeRune(r)
		if cur.Len() > 0 && cur.Len()+len(enc) > maxText {
			words = append(words, prefix+cur.String()+suffix)
			cur.Reset()
		}
		cur.WriteString(enc)
	}
	if cur.Len() > 0 {
		words = append(words, prefix+cur.String()+suffix)
	}
	return words
}

// qEncodeRune returns the RFC 2047 Q encoding of r's UTF-8 bytes.
func qEncodeRune(r rune) string {
	var b strings.Builder
	for _, c := range []byte(string(r)) {
		switch {
		case c == ' ':
			b.WriteByte('_')
		case c > ' ' && c <= '~' && c != '=' && c != '?' && c != '_':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}

func writeContainer(w io.Writer, p *Part, boundary, seed string) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return fmt.Errorf("failed to set boundary: %w", err)
	}

	for _, child := range p.Parts {
		var childBoundary string
		if child.IsMultipart() {
			childBoundary = boundaryFor(child, seed)
		}

		pw, err := mw.CreatePart(partHeader(child, childBoundary))
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", child.ContentType, err)
		}

		if child.IsMultipart() {
			err = writeContainer(pw, child, childBoundary, seed)
		} else {
			err = writeLeaf(pw, child)
		}
		if err != nil {
			return err
		}
	}

	return mw.Close()
}

func partHeader(p *Part, boundary string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)

	switch {
	case p.IsMultipart():
		h.Set("Content-Type", mime.FormatMediaType(p.ContentType, map[string]string{"boundary": boundary}))
		return h
	case isText(p):
		h.Set("Content-Type", mime.FormatMediaType(p.ContentType, map[string]string{"charset": "utf-8"}))
		h.Set("Content-Transfer-Encoding", "quoted-printable")
	default:
		h.Set("Content-Type", p.ContentType)
		h.Set("Content-Transfer-Encoding", "base64")
	}

	switch p.Disposition {
	case "attachment":
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": p.Filename}))
	case "inline":
		h.Set("Content-Disposition", "inline")
	}
	if p.ContentID != "" {
		// Set directly; Set would canonicalize the key to "Content-Id".
		h["Content-ID"] = []string{"<" + p.ContentID + ">"}
	}

	return h
}

func writeLeaf(w io.Writer, p *Part) error {
	if isText(p) {
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write(p.Content); err != nil {
			return fmt.Errorf("failed to write %s body: %w", p.ContentType, err)
		}
		return qp.Close()
	}

	if _, err := io.WriteString(w, encodeBase64WithLineBreaks(p.Content)); err != nil {
		return fmt.Errorf("failed to write %s body: %w", p.ContentType, err)
	}
	return nil
}

func isText(p *Part) bool {
	return p.Disposition == "" && (p.ContentType == TypePlain || p.ContentType == TypeHTML)
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += base64LineLength {
		end := min(i+base64LineLength, len(encoded))
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}

// digest hashes everything that ends up in the message body.
func digest(m *Message) string {
	h := sha256.New()
	for _, s := range []string{m.From, m.To, m.Subject} {
		io.WriteString(h, s)
		h.Write([]byte{0})
	}

	var walk func(p *Part)
	walk = func(p *Part) {
		for _, s := range []string{p.ContentType, p.Disposition, p.Filename, p.ContentID} {
			io.WriteString(h, s)
			h.Write([]byte{0})
		}
		h.Write(p.Content)
		h.Write([]byte{0})
		for _, c := range p.Parts {
			walk(c)
		}
	}
	walk(m.root)

	return hex.EncodeToString(h.Sum(nil))[:32]
}

// boundaryFor names a container's boundary after its subtype, e.g.
// "=_related_<digest>". Each subtype occurs once per message.
func boundaryFor(p *Part, seed string) string {
	return "=_" + strings.TrimPrefix(p.ContentType, "multipart/") + "_" + seed
}
