// Package stdout implements a Provider that prints emails to standard output
// instead of sending them. It is used for dry runs.
package stdout

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/shineum/mailshot/internal/message"
	"github.com/shineum/mailshot/internal/parser"
	"github.com/shineum/mailshot/internal/provider"
)

const separator = "========================================\n"

// Provider prints a summary of each MIME message in a human-readable format.
type Provider struct {
	writer io.Writer
	count  atomic.Int64
}

var _ provider.Provider = (*Provider)(nil)

// NewWithWriter creates a stdout Provider that writes to w.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send parses the serialized message back and prints its headers and part
// tree. The returned id is "stdout-<n>", counting from 1.
func (p *Provider) Send(_ context.Context, msg *message.Message) (string, error) {
	raw := msg.Bytes()

	parsed, err := parser.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse message: %w", provider.ErrTransportFailure, err)
	}

	var b strings.Builder

	b.WriteString(separator)
	if parsed.From != "" {
		fmt.Fprintf(&b, "From: %s\n", parsed.From)
	}
	fmt.Fprintf(&b, "To: %s\n", strings.Join(parsed.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", parsed.Subject)
	fmt.Fprintf(&b, "Size: %s\n", formatSize(len(raw)))
	b.WriteString("Parts:\n")
	writeNode(&b, parsed.Root, 1)

	if text := parsed.Find(message.TypePlain); text != nil {
		b.WriteString("Text:\n")
		b.WriteString(strings.TrimRight(string(text.Content), "\r\n") + "\n")
	}

	b.WriteString(separator)

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return "", fmt.Errorf("%w: failed to write output: %w", provider.ErrTransportFailure, err)
	}

	return fmt.Sprintf("stdout-%d", p.count.Add(1)), nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

func writeNode(b *strings.Builder, n *parser.Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.ContentType)

	if !n.IsMultipart() {
		var details []string
		if n.Disposition != "" {
			details = append(details, n.Disposition)
		}
		if n.Filename != "" {
			details = append(details, n.Filename)
		}
		if n.ContentID != "" {
			details = append(details, "cid:"+n.ContentID)
		}
		details = append(details, formatSize(len(n.Content)))
		fmt.Fprintf(b, " (%s)", strings.Join(details, ", "))
	}
	b.WriteString("\n")

	for _, c := range n.Children {
		writeNode(b, c, depth+1)
	}
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
