// Package crawler walks a suspicious site breadth first so every page it
// serves can be fingerprinted, not only the landing page.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
)

// DefaultMaxPages caps a crawl when no limit is configured.
const DefaultMaxPages = 50

// Source fetches raw page bytes.
type Source interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Crawler discovers same-site pages starting from a seed URL.
type Crawler struct {
	source   Source
	maxDepth int
	maxPages int
}

// NewCrawler creates a crawler following links up to maxDepth hops from the
// seed and visiting at most maxPages pages.
func NewCrawler(source Source, maxDepth, maxPages int) *Crawler {
	if maxDepth < 0 {
		maxDepth = 0
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Crawler{source: source, maxDepth: maxDepth, maxPages: maxPages}
}

// Discover returns the seed followed by the pages reachable from it, in the
// order they were first seen. Pages that fail to load are kept in the result
// so the caller reports them; their links are simply not followed.
func (c *Crawler) Discover(ctx context.Context, seed string) ([]string, error) {
	base, err := url.Parse(seed)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid seed URL %q", seed)
	}
	base.Fragment = ""

	seen := map[string]struct{}{base.String(): {}}
	order := []string{base.String()}
	frontier := []string{base.String()}

	for depth := 0; depth < c.maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, u := range frontier {
			if err := ctx.Err(); err != nil {
				return order, err
			}
			for _, link := range c.links(ctx, u) {
				if len(order) >= c.maxPages {
					log.Debug().Int("max_pages", c.maxPages).Msg("Crawl page limit reached")
					return order, nil
				}
				if _, ok := seen[link]; ok {
					continue
				}
				seen[link] = struct{}{}
				order = append(order, link)
				next = append(next, link)
			}
		}
		frontier = next
	}

	log.Debug().Str("seed", seed).Int("pages", len(order)).Msg("Crawl complete")
	return order, nil
}

func (c *Crawler) links(ctx context.Context, pageURL string) []string {
	body, err := c.source.Fetch(ctx, pageURL)
	if err != nil {
		log.Debug().Err(err).Str("url", pageURL).Msg("Crawl fetch failed")
		return nil
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	return ExtractLinks(u, bytes.NewReader(body))
}
