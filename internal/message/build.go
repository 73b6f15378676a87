package message

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidHeader indicates a header value that would break the message
// framing, such as a recipient containing a line break.
var ErrInvalidHeader = errors.New("invalid header value")

// Params are the inputs of Build.
type Params struct {
	To      string
	Subject string
	HTML    string
	From    Sender

	// PlainText overrides DefaultPlainText when set.
	PlainText string

	Attachments  []Attachment
	InlineImages []InlineImage
}

// Build assembles and serializes the message for one recipient.
//
// Files are read through files (OSFiles when nil). If any file cannot be read
// Build returns a *ResourceError and no message. Identical inputs and file
// contents always serialize to identical bytes.
func Build(p Params, files FileReader) (*Message, error) {
	if files == nil {
		files = OSFiles{}
	}
	if strings.ContainsAny(p.To, "\r\n") {
		return nil, fmt.Errorf("%w: recipient %q", ErrInvalidHeader, p.To)
	}

	plain := p.PlainText
	if plain == "" {
		plain = DefaultPlainText
	}

	alternative := &Part{
		ContentType: TypeAlternative,
		Parts: []*Part{
			{ContentType: TypePlain, Content: []byte(plain)},
			{ContentType: TypeHTML, Content: []byte(p.HTML)},
		},
	}

	related := &Part{
		ContentType: TypeRelated,
		Parts:       []*Part{alternative},
	}
	for _, img := range p.InlineImages {
		data, err := readResource(files, img.Path)
		if err != nil {
			return nil, err
		}
		related.Parts = append(related.Parts, &Part{
			ContentType: ImageType(img.Path),
			Disposition: "inline",
			Filename:    filepath.Base(img.Path),
			ContentID:   strings.Trim(img.ContentID, "<>"),
			Content:     data,
		})
	}

	root := &Part{
		ContentType: TypeMixed,
		Parts:       []*Part{related},
	}
	for _, att := range p.Attachments {
		data, err := readResource(files, att.Path)
		if err != nil {
			return nil, err
		}
		root.Parts = append(root.Parts, &Part{
			ContentType: TypeOctetStream,
			Disposition: "attachment",
			Filename:    filepath.Base(att.Path),
			Content:     data,
		})
	}

	msg := &Message{
		To:      p.To,
		Subject: p.Subject,
		From:    p.From.String(),
		root:    root,
	}

	raw, err := encode(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	msg.raw = raw

	return msg, nil
}

func readResource(files FileReader, path string) ([]byte, error) {
	data, err := files.ReadFile(path)
	if err != nil {
		return nil, &ResourceError{Path: path, Err: err}
	}
	return data, nil
}
