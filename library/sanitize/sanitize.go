// Package sanitize turns untrusted page bodies into bounded plain text.
//
// The pipeline order is fixed: visible text extraction, symbol removal,
// whitespace normalization, word-limit truncation. Every function here is pure.
package sanitize

import (
	"bytes"
	"fmt"
	"mime"
	"regexp"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html/charset"
)

// TruncationMarker is appended to content cut at the word limit.
const TruncationMarker = " [truncated]"

var manyNewlines = regexp.MustCompile(`\n{3,}`)

// Page is the sanitized form of one fetched body.
type Page struct {
	// Title is the document <title>, empty when the body has none.
	Title   string
	Content string
	// WordCount counts the words of Content, excluding TruncationMarker.
	WordCount int
}

type contentKind int

const (
	kindBinary contentKind = iota
	kindPlain
	kindXML
	kindHTML
)

// Clean converts rawBody into cleaned plain text of at most wordLimit words.
// Non-textual content yields a placeholder instead of an error.
func Clean(rawBody []byte, contentType string, wordLimit int) string {
	return CleanPage(rawBody, contentType, wordLimit).Content
}

// CleanPage is Clean that also reports the document title and word count.
func CleanPage(rawBody []byte, contentType string, wordLimit int) Page {
	if wordLimit <= 0 {
		wordLimit = 1
	}

	contentType = resolveContentType(rawBody, contentType)
	mediaType := parseMediaType(contentType)

	var page Page
	switch classify(mediaType) {
	case kindHTML:
		text := decode(rawBody, contentType)
		page.Title, page.Content = extractHTML(text)
		page.Title = CleanLine(page.Title)
	case kindXML:
		page.Content = extractXML(decode(rawBody, contentType))
	case kindPlain:
		page.Content = decode(rawBody, contentType)
	default:
		content := placeholder(mediaType)
		return Page{Content: content, WordCount: WordCount(content)}
	}

	page.Content = removeSymbols(page.Content)
	page.Content = normalizeWhitespace(page.Content)

	var truncated bool
	page.Content, truncated = truncateWords(page.Content, wordLimit)
	if truncated {
		page.WordCount = wordLimit
	} else {
		page.WordCount = WordCount(page.Content)
	}
	return page
}

// CleanLine sanitizes short single-line values such as titles and snippets:
// symbols removed, all whitespace collapsed to single spaces.
func CleanLine(s string) string {
	return strings.Join(strings.Fields(removeSymbols(s)), " ")
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

func placeholder(mediaType string) string {
	if mediaType == "" {
		mediaType = "unknown"
	}
	return fmt.Sprintf("[non-text content omitted: %s]", mediaType)
}

func resolveContentType(body []byte, contentType string) string {
	if ct := strings.TrimSpace(contentType); ct != "" {
		return ct
	}
	if len(body) == 0 {
		return "text/plain"
	}
	return mimetype.Detect(body).String()
}

func parseMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func classify(mediaType string) contentKind {
	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return kindHTML
	case mediaType == "text/xml",
		mediaType == "application/xml",
		strings.HasSuffix(mediaType, "+xml"):
		return kindXML
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/json",
		mediaType == "application/javascript",
		strings.HasSuffix(mediaType, "+json"):
		return kindPlain
	default:
		return kindBinary
	}
}

// decode converts body to UTF-8 using the declared charset, a BOM, or a
// <meta> prescan, in that order. Invalid sequences become U+FFFD.
func decode(body []byte, contentType string) string {
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		decoded = body
	}
	decoded = bytes.TrimPrefix(decoded, []byte("\ufeff"))
	return strings.ToValidUTF8(string(decoded), "\ufffd")
}

// normalizeWhitespace collapses horizontal whitespace inside every line,
// strips line edges, and keeps at most one blank line between paragraphs.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	s = strings.Join(lines, "\n")
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncateWords cuts s right after its limit-th word when more words follow
// and reports whether it did.
func truncateWords(s string, limit int) (string, bool) {
	count := 0
	inWord := false
	for i, r := range s {
		if unicode.IsSpace(r) {
			if inWord && count == limit {
				if strings.TrimSpace(s[i:]) == "" {
					return s, false
				}
				return s[:i] + TruncationMarker, true
			}
			inWord = false
			continue
		}
		if !inWord {
			inWord = true
			count++
		}
	}

	return s, false
}
