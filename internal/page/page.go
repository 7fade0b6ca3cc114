// Package page turns fetched or rendered documents into the text that gets
// fingerprinted.
package page

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Serialize parses an HTML document and returns the inner HTML of its body,
// or the whole document when it has none.
func Serialize(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse document: %w", err)
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return doc.Html()
	}
	return body.Html()
}

// SerializeString is Serialize over a string.
func SerializeString(s string) (string, error) {
	return Serialize(strings.NewReader(s))
}

// Sanitization controls how much of a URL is kept in alerts.
type Sanitization string

const (
	SanitizeHost Sanitization = "host"
	SanitizePath Sanitization = "path"
	SanitizeNone Sanitization = "none"
)

// ParseSanitization validates a configured level.
func ParseSanitization(s string) (Sanitization, error) {
	switch l := Sanitization(strings.ToLower(s)); l {
	case SanitizeHost, SanitizePath, SanitizeNone:
		return l, nil
	case "":
		return SanitizeHost, nil
	default:
		return "", fmt.Errorf("unknown url sanitization level %q", s)
	}
}

// SanitizeURL strips raw down to scheme and host, or scheme, host and path.
// Unparseable input yields an empty string unless level is none.
func SanitizeURL(raw string, level Sanitization) string {
	if level == SanitizeNone {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	base := u.Scheme + "://" + u.Host
	if level == SanitizePath {
		return base + u.EscapedPath()
	}
	return base
}
