// Package render turns a template file into the HTML body of a mailing.
//
// HTML templates are passed through unchanged unless template data is
// given, in which case they are executed with html/template. Markdown
// templates may start with YAML front matter; their body is converted with
// goldmark and wrapped in a minimal HTML document whose <title> carries the
// front matter subject.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	texttemplate "text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/shineum/mailshot/internal/message"
)

// ErrInvalidTemplate indicates a template that cannot be parsed or executed.
var ErrInvalidTemplate = errors.New("invalid template")

// Document is a rendered template.
type Document struct {
	HTML string
	// Subject is the front matter subject of a Markdown template. Empty for
	// HTML templates, whose subject comes from their <title>.
	Subject string
}

const layout = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
{{- with .Subject}}
<title>{{.}}</title>
{{- end}}
</head>
<body>
{{.Content}}
</body>
</html>
`

var layoutTmpl = template.Must(template.New("layout").Parse(layout))

// Renderer renders template files read through a message.FileReader.
type Renderer struct {
	files message.FileReader
	md    goldmark.Markdown
}

// New creates a Renderer. A nil files reads from disk.
func New(files message.FileReader) *Renderer {
	if files == nil {
		files = message.OSFiles{}
	}
	return &Renderer{
		files: files,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
}

// Render reads and renders the template at path. Files ending in .md or
// .markdown are treated as Markdown, everything else as HTML.
func (r *Renderer) Render(path string, data map[string]any) (*Document, error) {
	content, err := r.files.ReadFile(path)
	if err != nil {
		return nil, &message.ResourceError{Path: path, Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return r.renderMarkdown(path, content, data)
	default:
		return renderHTML(path, content, data)
	}
}

func renderHTML(path string, content []byte, data map[string]any) (*Document, error) {
	if len(data) == 0 {
		return &Document{HTML: string(content)}, nil
	}

	tmpl, err := template.New(filepath.Base(path)).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, path, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, path, err)
	}
	return &Document{HTML: buf.String()}, nil
}

func (r *Renderer) renderMarkdown(path string, content []byte, data map[string]any) (*Document, error) {
	meta, body, err := splitFrontMatter(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, path, err)
	}

	subject := strings.TrimSpace(meta.Subject)

	if len(data) > 0 {
		processed, err := executeText(filepath.Base(path), string(body), data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, path, err)
		}
		body = []byte(processed)

		if subject, err = executeText("subject", subject, data); err != nil {
			return nil, fmt.Errorf("%w: %s: front matter: %v", ErrInvalidTemplate, path, err)
		}
	}

	var html bytes.Buffer
	if err := r.md.Convert(body, &html); err != nil {
		return nil, fmt.Errorf("%w: %s: failed to convert markdown: %v", ErrInvalidTemplate, path, err)
	}

	var doc bytes.Buffer
	err = layoutTmpl.Execute(&doc, map[string]any{
		"Subject": subject,
		"Content": template.HTML(html.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, path, err)
	}

	return &Document{HTML: doc.String(), Subject: subject}, nil
}

func executeText(name, text string, data map[string]any) (string, error) {
	tmpl, err := texttemplate.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type frontMatter struct {
	Subject string `yaml:"subject"`
}

// splitFrontMatter separates an optional "---" delimited YAML header from
// the Markdown body.
func splitFrontMatter(content []byte) (frontMatter, []byte, error) {
	var meta frontMatter
	delimiter := []byte("---")

	if !bytes.HasPrefix(content, delimiter) {
		return meta, content, nil
	}

	rest := bytes.TrimLeft(bytes.TrimPrefix(content, delimiter), "\r\n")
	end := bytes.Index(rest, delimiter)
	if end < 0 {
		return meta, nil, errors.New("front matter closing delimiter not found")
	}

	header := rest[:end]
	body := rest[end+len(delimiter):]
	body = bytes.TrimPrefix(body, []byte("\r"))
	body = bytes.TrimPrefix(body, []byte("\n"))

	if len(bytes.TrimSpace(header)) > 0 {
		if err := yaml.Unmarshal(header, &meta); err != nil {
			return meta, nil, fmt.Errorf("invalid front matter: %w", err)
		}
	}
	return meta, body, nil
}
