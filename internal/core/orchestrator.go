// Package core routes captured pages to the baseline repository or the clone
// detector depending on who owns the domain.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"phishcatch/internal/alert"
	"phishcatch/internal/detector"
	"phishcatch/internal/domain"
	"phishcatch/internal/page"
	"phishcatch/internal/repository"
	"phishcatch/internal/tlsh"
)

// ErrEmptyContent is returned for pages without content to hash.
var ErrEmptyContent = errors.New("empty page content")

// DefaultConcurrency bounds Scan when no limit is configured.
const DefaultConcurrency = 10

// Classifier maps hosts to a trust class.
type Classifier interface {
	Classify(host string) domain.Type
}

// Baselines stores trusted fingerprints.
type Baselines interface {
	Save(ctx context.Context, fp tlsh.Fingerprint, source string) (repository.SaveResult, error)
}

// Checker compares a fingerprint against the baselines.
type Checker interface {
	Check(ctx context.Context, candidate tlsh.Fingerprint) (detector.Match, bool, error)
}

// PageFetcher acquires serialized page content.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PageEvent is one captured page.
type PageEvent struct {
	URL      string
	Referrer string
	Content  string
}

// Outcome reports what HandlePage did with a page.
type Outcome struct {
	URL           string                 `json:"url"`
	Host          string                 `json:"host"`
	DomainType    domain.Type            `json:"domainType"`
	Hash          string                 `json:"hash,omitempty"`
	LowConfidence bool                   `json:"lowConfidence,omitempty"`
	Saved         *repository.SaveResult `json:"saved,omitempty"`
	Match         *detector.Match        `json:"match,omitempty"`
	Alerted       bool                   `json:"alerted,omitempty"`
	Suppressed    bool                   `json:"suppressed,omitempty"`
}

// ScanResult pairs a scanned URL with its outcome or error.
type ScanResult struct {
	URL     string   `json:"url"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Err     string   `json:"error,omitempty"`
}

// Options wires the Orchestrator's collaborators.
type Options struct {
	Classifier   Classifier
	Baselines    Baselines
	Detector     Checker
	Sink         alert.Sink
	Deduper      *alert.Deduper
	Fetcher      PageFetcher
	Sanitization page.Sanitization
	Strict       bool
	Concurrency  int
	Now          func() time.Time
}

// Orchestrator coordinates hashing, saving and detection.
type Orchestrator struct {
	opts Options
}

// NewOrchestrator creates a new orchestrator instance.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Deduper == nil {
		opts.Deduper = alert.NewDeduper(alert.DefaultDedupWindow, opts.Now)
	}
	if opts.Sink == nil {
		opts.Sink = alert.LogSink{}
	}
	if opts.Sanitization == "" {
		opts.Sanitization = page.SanitizeHost
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{opts: opts}
}

// HandlePage fingerprints ev. Enterprise pages become baselines, dangerous
// pages are checked for clones and raise at most one alert per dedup window,
// ignored pages are left alone.
func (o *Orchestrator) HandlePage(ctx context.Context, ev PageEvent) (Outcome, error) {
	host, err := domain.HostFromURL(ev.URL)
	if err != nil {
		return Outcome{URL: ev.URL}, err
	}

	out := Outcome{URL: ev.URL, Host: host, DomainType: o.opts.Classifier.Classify(host)}
	if out.DomainType == domain.Ignored {
		log.Debug().Str("host", host).Msg("Ignored domain, skipping")
		return out, nil
	}
	if ev.Content == "" {
		return out, ErrEmptyContent
	}

	h := tlsh.New(tlsh.WithStrict(o.opts.Strict))
	_, _ = h.WriteString(ev.Content)
	fp, err := h.Finalize()
	if err != nil {
		return out, fmt.Errorf("fingerprint %s: %w", ev.URL, err)
	}
	out.Hash = fp.String()
	out.LowConfidence = h.LowConfidence()
	if out.LowConfidence {
		log.Debug().Str("url", ev.URL).Int("bytes", h.Len()).Msg("Low confidence fingerprint")
	}

	switch out.DomainType {
	case domain.Enterprise:
		res, err := o.opts.Baselines.Save(ctx, fp, host)
		if err != nil {
			return out, fmt.Errorf("save baseline for %s: %w", host, err)
		}
		out.Saved = &res
		log.Info().Str("host", host).Bool("merged", res.Merged).Int("size", res.Size).Msg("Enterprise page fingerprinted")

	case domain.Dangerous:
		m, ok, err := o.opts.Detector.Check(ctx, fp)
		if err != nil {
			return out, fmt.Errorf("check %s: %w", ev.URL, err)
		}
		if !ok {
			return out, nil
		}
		out.Match = &m
		return out, o.raise(ctx, &out, ev, m)
	}
	return out, nil
}

func (o *Orchestrator) raise(ctx context.Context, out *Outcome, ev PageEvent, m detector.Match) error {
	url := page.SanitizeURL(ev.URL, o.opts.Sanitization)
	if url == "" {
		url = ev.URL
	}
	if o.opts.Deduper.Seen(alert.TypeDOMHash, url) {
		out.Suppressed = true
		log.Debug().Str("url", url).Msg("Duplicate alert suppressed")
		return nil
	}

	a := alert.New(alert.TypeDOMHash, url, ev.Referrer, o.opts.Now())
	a.MatchedHost = m.Baseline.Source
	a.Distance = m.Distance
	out.Alerted = true

	if err := o.opts.Sink.Send(ctx, a); err != nil {
		return fmt.Errorf("send alert for %s: %w", url, err)
	}
	return nil
}

// Scan fetches every URL with bounded concurrency and handles each page.
// Results keep the order of urls.
func (o *Orchestrator) Scan(ctx context.Context, urls []string) []ScanResult {
	log.Info().Int("urls", len(urls)).Int("concurrency", o.opts.Concurrency).Msg("Scan starting...")
	startTime := time.Now()

	results := make([]ScanResult, len(urls))
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.opts.Concurrency)

	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = o.scanOne(ctx, u)
		}(i, u)
	}
	wg.Wait()

	alerts := 0
	for _, r := range results {
		if r.Outcome != nil && r.Outcome.Alerted {
			alerts++
		}
	}
	log.Info().Int("alerts", alerts).Dur("took", time.Since(startTime)).Msg("Scan complete.")
	return results
}

func (o *Orchestrator) scanOne(ctx context.Context, u string) ScanResult {
	res := ScanResult{URL: u}
	if err := ctx.Err(); err != nil {
		res.Err = err.Error()
		return res
	}
	if o.opts.Fetcher == nil {
		res.Err = "no fetcher configured"
		return res
	}

	content, err := o.opts.Fetcher.Fetch(ctx, u)
	if err != nil {
		log.Warn().Err(err).Str("url", u).Msg("Error fetching page, skipping.")
		res.Err = err.Error()
		return res
	}

	out, err := o.HandlePage(ctx, PageEvent{URL: u, Content: content})
	res.Outcome = &out
	if err != nil {
		log.Warn().Err(err).Str("url", u).Msg("Error handling page")
		res.Err = err.Error()
	}
	return res
}
