package crawler

import (
	"bytes"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

var linkAttrs = map[string]string{
	"a": "href", "area": "href", "iframe": "src", "frame": "src", "form": "action",
}

var scriptLinkRegex = regexp.MustCompile(`(?:location(?:\.href)?|window\.open\()\s*=?\s*['"]((?:/[^'"\s]+|https?://[^'"\s]+))['"]`)

// ExtractLinks returns the sorted, fragment-free URLs in body that point to
// pages on the same site as base.
func ExtractLinks(base *url.URL, body io.Reader) []string {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil
	}

	found := make(map[string]struct{})
	add := func(href string) {
		u := resolve(base, href)
		if u == nil || !sameSite(base, u) {
			return
		}
		found[u.String()] = struct{}{}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		log.Debug().Err(err).Str("url", base.String()).Msg("Failed to parse page for links")
		return nil
	}
	for tag, attr := range linkAttrs {
		doc.Find(tag + "[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(attr)
			add(v)
		})
	}
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range scriptLinkRegex.FindAllStringSubmatch(s.Text(), -1) {
			add(m[1])
		}
	})

	links := make([]string, 0, len(found))
	for u := range found {
		links = append(links, u)
	}
	sort.Strings(links)
	return links
}

// resolve turns href into an absolute http(s) URL without fragment.
func resolve(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "data:") {
		return nil
	}
	rel, err := url.Parse(href)
	if err != nil {
		return nil
	}
	u := base.ResolveReference(rel)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u
}

// sameSite allows the base host and its subdomains.
func sameSite(base, target *url.URL) bool {
	b, t := strings.ToLower(base.Hostname()), strings.ToLower(target.Hostname())
	return t == b || strings.HasSuffix(t, "."+b)
}
