package page

import (
	"bytes"
	"context"
	"fmt"
)

// Getter downloads raw documents.
type Getter interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Renderer returns the DOM of a page after scripts ran.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Fetcher acquires page content ready for hashing. When a Renderer is set it
// is used instead of the plain Getter.
type Fetcher struct {
	Getter   Getter
	Renderer Renderer
}

// Fetch returns the serialized body of the page at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.Renderer != nil {
		html, err := f.Renderer.Render(ctx, url)
		if err != nil {
			return "", err
		}
		return SerializeString(html)
	}

	if f.Getter == nil {
		return "", fmt.Errorf("no page getter configured")
	}
	raw, err := f.Getter.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return Serialize(bytes.NewReader(raw))
}
