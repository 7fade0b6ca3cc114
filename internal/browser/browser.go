// Package browser renders pages in headless Chrome so script-built DOMs can be
// fingerprinted the way a user's browser would see them.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// Config configures a Renderer.
type Config struct {
	Headless  bool
	Proxy     string
	UserAgent string
	// Timeout bounds a single Render call.
	Timeout time.Duration
	// Settle is how long to wait after the body is ready for scripts to run.
	Settle time.Duration
}

// Renderer owns one Chrome allocator shared by all renders.
type Renderer struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	settle   time.Duration
}

// NewRenderer prepares the exec allocator. Chrome is started lazily on the
// first Render.
func NewRenderer(cfg Config) *Renderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Renderer{
		allocCtx: allocCtx,
		cancel:   cancel,
		timeout:  timeout,
		settle:   cfg.Settle,
	}
}

// Render navigates to url and returns the serialized document after load.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	taskCtx, cancel := chromedp.NewContext(r.allocCtx)
	defer cancel()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, r.timeout)
	defer cancelTimeout()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if r.settle > 0 {
		actions = append(actions, chromedp.Sleep(r.settle))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	log.Debug().Str("url", url).Int("bytes", len(html)).Msg("Page rendered")
	return html, nil
}

// Close shuts down the browser and its processes.
func (r *Renderer) Close() {
	r.cancel()
}
