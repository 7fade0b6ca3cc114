package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"phishcatch/internal/alert"
	"phishcatch/internal/browser"
	"phishcatch/internal/cleanup"
	"phishcatch/internal/config"
	"phishcatch/internal/core"
	"phishcatch/internal/detector"
	"phishcatch/internal/domain"
	"phishcatch/internal/page"
	"phishcatch/internal/repository"
	"phishcatch/internal/requester"
	"phishcatch/internal/store"
	"phishcatch/internal/tlsh"
)

// app holds the wired components for one command run.
type app struct {
	cfg        config.Settings
	store      store.Store
	repo       *repository.Repository
	detector   *detector.Detector
	classifier *domain.Classifier
	client     *requester.HTTPClient
	webhook    *alert.WebhookSink
	sink       alert.Sink
	fetcher    *page.Fetcher
	closers    []func() error
}

func newApp(ctx context.Context, cfg config.Settings) (*app, error) {
	st, err := store.Open(ctx, store.Options{
		Backend:  cfg.Storage.Backend,
		Path:     cfg.Storage.Path,
		RedisURL: cfg.Storage.Redis.URL,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: st}
	a.closers = append(a.closers, st.Close)

	a.repo = repository.New(st,
		repository.WithKey(cfg.Storage.Key),
		repository.WithMergeThreshold(cfg.Fingerprint.MergeThreshold),
	)
	a.detector = detector.New(a.repo, cfg.Fingerprint.AlertThreshold)
	a.classifier = domain.NewClassifier(cfg.Domains.Enterprise, cfg.Domains.Ignored)

	a.client = requester.NewHTTPClient(requester.Options{
		Timeout:    time.Duration(cfg.Fetch.Timeout) * time.Second,
		UserAgents: cfg.Fetch.UserAgents,
		Retries:    cfg.Fetch.Retries,
		RateLimit:  cfg.Fetch.RateLimit,
		RetryDelay: 2 * time.Second,
	})

	a.fetcher = &page.Fetcher{Getter: a.client}
	if cfg.Fetch.Render {
		r := browser.NewRenderer(browser.Config{
			Headless: true,
			Timeout:  time.Duration(cfg.Fetch.Timeout) * time.Second,
		})
		a.fetcher.Renderer = r
		a.closers = append(a.closers, func() error { r.Close(); return nil })
	}

	sinks := alert.MultiSink{alert.LogSink{}}
	if cfg.Alert.File != "" {
		f, err := alert.NewFileSink(cfg.Alert.File)
		if err != nil {
			a.Close()
			return nil, err
		}
		sinks = append(sinks, f)
		a.closers = append(a.closers, f.Close)
	}
	if cfg.Alert.Server != "" {
		a.webhook = alert.NewWebhookSink(alert.WebhookConfig{
			Server:   cfg.Alert.Server,
			PSK:      cfg.Alert.PSK,
			Username: cfg.Alert.Username,
		}, a.client, st, nil)
		sinks = append(sinks, a.webhook)
	}
	a.sink = sinks

	return a, nil
}

func (a *app) orchestrator() (*core.Orchestrator, error) {
	level, err := page.ParseSanitization(a.cfg.Fetch.Sanitization)
	if err != nil {
		return nil, err
	}
	return core.NewOrchestrator(core.Options{
		Classifier:   a.classifier,
		Baselines:    a.repo,
		Detector:     a.detector,
		Sink:         a.sink,
		Deduper:      alert.NewDeduper(a.cfg.Alert.DedupWindow, nil),
		Fetcher:      a.fetcher,
		Sanitization: level,
		Strict:       a.cfg.Fingerprint.Strict,
		Concurrency:  a.cfg.Fetch.Concurrency,
	}), nil
}

func (a *app) cleaner() *cleanup.Cleaner {
	c := &cleanup.Cleaner{
		Pruner:     a.repo,
		ExpiryDays: a.cfg.Fingerprint.ExpiryDays,
		MaxEntries: a.cfg.Fingerprint.MaxEntries,
	}
	if a.webhook != nil {
		c.Retrier = a.webhook
	}
	return c
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// pageContent returns serialized content from a local file ("-" for stdin)
// or by fetching url.
func (a *app) pageContent(ctx context.Context, url, file string, stdin io.Reader) (string, error) {
	if file == "" {
		return a.fetcher.Fetch(ctx, url)
	}
	var r io.Reader = stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer f.Close()
		r = f
	}
	return page.Serialize(r)
}

// fingerprint hashes content, warning about low confidence results.
func fingerprint(content string, strict bool) (tlsh.Fingerprint, error) {
	h := tlsh.New(tlsh.WithStrict(strict))
	_, _ = h.WriteString(content)
	fp, err := h.Finalize()
	if err != nil {
		return fp, err
	}
	if h.LowConfidence() {
		log.Warn().Int("bytes", h.Len()).Msg("Fingerprint has low confidence: input is short or has little variation")
	}
	return fp, nil
}
