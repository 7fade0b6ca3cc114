package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phishcatch/internal/alert"
	"phishcatch/internal/detector"
	"phishcatch/internal/domain"
	"phishcatch/internal/repository"
	"phishcatch/internal/store"
	"phishcatch/internal/tlsh"
)

const (
	baseText          = "<html>hello world</html>"
	similarText       = "<html>hello world 2</html>"
	veryDifferentText = "kdrjnfkjerfkjrekjferjkbfjkbrsbjkdsrbjk.srabjk.srbjkbjksrbherbrbdrbhjkdvh vjn ejoefejnfljewfljewfkjwefhke"
)

type recordSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
	err    error
}

func (r *recordSink) Send(_ context.Context, a alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recordSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	orch *Orchestrator
	repo *repository.Repository
	sink *recordSink
	clk  *clock
}

func newFixture(t *testing.T, fetcher PageFetcher) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	repo := repository.New(store.NewMemory(), repository.WithClock(clk.Now))
	sink := &recordSink{}
	orch := NewOrchestrator(Options{
		Classifier: domain.NewClassifier([]string{"*.corp.example"}, []string{"cdn.example.net"}),
		Baselines:  repo,
		Detector:   detector.New(repo, detector.DefaultThreshold),
		Sink:       sink,
		Deduper:    alert.NewDeduper(alert.DefaultDedupWindow, clk.Now),
		Fetcher:    fetcher,
		Now:        clk.Now,
	})
	return &fixture{orch: orch, repo: repo, sink: sink, clk: clk}
}

func TestEnterprisePageBecomesBaseline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	out, err := f.orch.HandlePage(ctx, PageEvent{URL: "https://login.corp.example/sso", Content: baseText})
	require.NoError(t, err)
	assert.Equal(t, domain.Enterprise, out.DomainType)
	require.NotNil(t, out.Saved)
	assert.Equal(t, 1, out.Saved.Size)
	assert.True(t, out.LowConfidence)

	list, err := f.repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "login.corp.example", list[0].Source)
	assert.Zero(t, f.sink.count())
}

func TestDangerousCloneRaisesOneAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.orch.HandlePage(ctx, PageEvent{URL: "https://login.corp.example/", Content: baseText})
	require.NoError(t, err)

	ev := PageEvent{URL: "https://phish.example/login?x=1", Referrer: "https://mail.example/", Content: similarText}
	out, err := f.orch.HandlePage(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, domain.Dangerous, out.DomainType)
	require.NotNil(t, out.Match)
	assert.True(t, out.Alerted)

	require.Equal(t, 1, f.sink.count())
	a := f.sink.alerts[0]
	assert.Equal(t, alert.TypeDOMHash, a.Type)
	assert.Equal(t, "https://phish.example", a.URL)
	assert.Equal(t, "login.corp.example", a.MatchedHost)
	assert.Equal(t, "https://mail.example/", a.Referrer)

	out, err = f.orch.HandlePage(ctx, ev)
	require.NoError(t, err)
	assert.True(t, out.Suppressed)
	assert.False(t, out.Alerted)
	assert.Equal(t, 1, f.sink.count())

	f.clk.Advance(31 * time.Second)
	out, err = f.orch.HandlePage(ctx, ev)
	require.NoError(t, err)
	assert.True(t, out.Alerted)
	assert.Equal(t, 2, f.sink.count())
}

func TestDangerousUnrelatedPageIsQuiet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.orch.HandlePage(ctx, PageEvent{URL: "https://login.corp.example/", Content: baseText})
	require.NoError(t, err)

	out, err := f.orch.HandlePage(ctx, PageEvent{URL: "https://news.example/", Content: veryDifferentText})
	require.NoError(t, err)
	assert.Nil(t, out.Match)
	assert.False(t, out.Alerted)
	assert.Zero(t, f.sink.count())
}

func TestIgnoredPageUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for _, u := range []string{"https://cdn.example.net/", "http://localhost:8080/", "http://192.168.1.1/"} {
		out, err := f.orch.HandlePage(ctx, PageEvent{URL: u, Content: baseText})
		require.NoError(t, err)
		assert.Equal(t, domain.Ignored, out.DomainType)
		assert.Empty(t, out.Hash)
	}

	entries, err := f.repo.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandlePageErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.orch.HandlePage(ctx, PageEvent{URL: "https://phish.example/"})
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = f.orch.HandlePage(ctx, PageEvent{URL: "https://phish.example/", Content: strings.Repeat("a", 500)})
	assert.ErrorIs(t, err, tlsh.ErrInvalidFingerprint)

	_, err = f.orch.HandlePage(ctx, PageEvent{URL: "no-host", Content: baseText})
	assert.Error(t, err)
}

func TestAlertSinkErrorReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.sink.err = errors.New("server down")

	_, err := f.orch.HandlePage(ctx, PageEvent{URL: "https://login.corp.example/", Content: baseText})
	require.NoError(t, err)
	out, err := f.orch.HandlePage(ctx, PageEvent{URL: "https://phish.example/", Content: baseText})
	assert.ErrorContains(t, err, "server down")
	assert.True(t, out.Alerted)
}

type mapFetcher struct {
	pages  map[string]string
	active atomic.Int32
	peak   atomic.Int32
}

func (m *mapFetcher) Fetch(_ context.Context, url string) (string, error) {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	content, ok := m.pages[url]
	if !ok {
		return "", fmt.Errorf("404 %s", url)
	}
	return content, nil
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	fetcher := &mapFetcher{pages: map[string]string{
		"https://login.corp.example/": baseText,
		"https://phish.example/":      similarText,
		"https://news.example/":       veryDifferentText,
	}}
	f := newFixture(t, fetcher)
	f.orch.opts.Concurrency = 2

	_, err := f.orch.HandlePage(ctx, PageEvent{URL: "https://login.corp.example/", Content: baseText})
	require.NoError(t, err)

	urls := []string{"https://phish.example/", "https://news.example/", "https://missing.example/"}
	for i := 0; i < 5; i++ {
		urls = append(urls, "https://news.example/")
	}
	results := f.orch.Scan(ctx, urls)
	require.Len(t, results, len(urls))

	assert.Equal(t, "https://phish.example/", results[0].URL)
	require.NotNil(t, results[0].Outcome)
	assert.True(t, results[0].Outcome.Alerted)
	assert.Empty(t, results[1].Err)
	assert.Contains(t, results[2].Err, "404")
	assert.Nil(t, results[2].Outcome)
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(2))
	assert.Equal(t, 1, f.sink.count())
}

func TestScanCancelled(t *testing.T) {
	f := newFixture(t, &mapFetcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.orch.Scan(ctx, []string{"https://a.example/"})
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Err, "canceled")
}
