// Package title extracts the subject line of an HTML email template from its
// first <title> element.
package title

import (
	"fmt"
	"html"
	"os"
	"strings"
)

// DefaultFallback is returned when a document has no usable <title>.
const DefaultFallback = "No title"

// Extract returns the trimmed text of the first <title> element in doc,
// or DefaultFallback if there is none or it is blank. Character references
// such as &amp; are decoded.
func Extract(doc string) string {
	return ExtractWithFallback(doc, DefaultFallback)
}

// ExtractWithFallback is like Extract but returns fallback instead of
// DefaultFallback.
//
// The scan is best-effort and never fails: unterminated tags, stray '<'
// characters and bad nesting are tolerated. A title that is never closed
// runs to the end of the input.
func ExtractWithFallback(doc, fallback string) string {
	s := scanner{src: doc}
	s.run()

	if !s.found {
		return fallback
	}
	text := strings.TrimSpace(html.UnescapeString(s.text.String()))
	if text == "" {
		return fallback
	}
	return text
}

// ExtractFile reads path and extracts its title. Only I/O errors are returned.
func ExtractFile(path, fallback string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return ExtractWithFallback(string(data), fallback), nil
}

// scanner holds the parse state of a single extraction.
type scanner struct {
	src     string
	pos     int
	inTitle bool
	found   bool
	text    strings.Builder
}

func (s *scanner) run() {
	for s.pos < len(s.src) {
		if s.inTitle {
			s.scanTitleText()
			return
		}

		lt := strings.IndexByte(s.src[s.pos:], '<')
		if lt < 0 {
			return
		}
		s.pos += lt

		if strings.HasPrefix(s.src[s.pos:], "<!--") {
			end := strings.Index(s.src[s.pos+4:], "-->")
			if end < 0 {
				return
			}
			s.pos += 4 + end + 3
			continue
		}

		if n, ok := matchTag(s.src[s.pos:], false); ok {
			s.pos += n
			s.inTitle = true
			s.found = true
			continue
		}
		s.pos++
	}
}

// scanTitleText captures everything up to the next </title>. Title content
// is raw text in HTML, so markup inside it is not interpreted.
func (s *scanner) scanTitleText() {
	rest := s.src[s.pos:]
	for i := 0; i < len(rest); i++ {
		if rest[i] != '<' {
			continue
		}
		if _, ok := matchTag(rest[i:], true); ok {
			s.text.WriteString(rest[:i])
			s.inTitle = false
			s.pos = len(s.src)
			return
		}
	}
	s.text.WriteString(rest)
	s.pos = len(s.src)
}

// matchTag reports whether src starts with a title start tag (or end tag when
// closing is set) and returns the length of the tag including its '>'.
// An unterminated tag consumes the rest of src.
func matchTag(src string, closing bool) (int, bool) {
	prefix := "<title"
	if closing {
		prefix = "</title"
	}
	if len(src) < len(prefix) || !strings.EqualFold(src[:len(prefix)], prefix) {
		return 0, false
	}

	// The name must end here: "<titles>" or "<title-x>" are other elements.
	if len(src) > len(prefix) {
		switch c := src[len(prefix)]; c {
		case '>', '/', ' ', '\t', '\n', '\r', '\f':
		default:
			return 0, false
		}
	}

	gt := strings.IndexByte(src[len(prefix):], '>')
	if gt < 0 {
		return len(src), true
	}
	return len(prefix) + gt + 1, true
}
