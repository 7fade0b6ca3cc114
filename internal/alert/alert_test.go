package alert

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phishcatch/internal/requester"
	"phishcatch/internal/store"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestNewAlert(t *testing.T) {
	a := New(TypeDOMHash, "https://phish.example/login", "", epoch)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, TypeDOMHash, a.Type)
	assert.NotEqual(t, a.ID, New(TypeDOMHash, a.URL, "", epoch).ID)
}

func TestDeduperWindow(t *testing.T) {
	c := &fakeClock{t: epoch}
	d := NewDeduper(0, c.Now)

	assert.False(t, d.Seen(TypeDOMHash, "https://a.example"))
	assert.True(t, d.Seen(TypeDOMHash, "https://a.example"))
	assert.False(t, d.Seen(TypeReuse, "https://a.example"))
	assert.False(t, d.Seen(TypeDOMHash, "https://b.example"))

	c.Advance(29 * time.Second)
	assert.True(t, d.Seen(TypeDOMHash, "https://a.example"))

	c.Advance(2 * time.Second)
	assert.False(t, d.Seen(TypeDOMHash, "https://a.example"))
	assert.Equal(t, 1, d.Len())
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts", "alerts.jsonl")
	f, err := NewFileSink(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, f.Send(ctx, New(TypeDOMHash, "https://a.example", "", epoch)))
	require.NoError(t, f.Send(ctx, New(TypeDOMHash, "https://b.example", "", epoch)))
	require.NoError(t, f.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var urls []string
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		var a Alert
		require.NoError(t, json.Unmarshal(sc.Bytes(), &a))
		urls = append(urls, a.URL)
	}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, urls)
}

type recordSink struct {
	mu   sync.Mutex
	got  []Alert
	fail error
}

func (r *recordSink) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
	return r.fail
}

func TestMultiSink(t *testing.T) {
	errDown := errors.New("down")
	ok, bad := &recordSink{}, &recordSink{fail: errDown}

	err := MultiSink{LogSink{}, bad, ok}.Send(context.Background(), New(TypeDOMHash, "u", "", epoch))
	assert.ErrorIs(t, err, errDown)
	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)
}

func newWebhook(t *testing.T, srv *httptest.Server, st store.Store, c *fakeClock) *WebhookSink {
	t.Helper()
	client := requester.NewHTTPClient(requester.Options{Timeout: time.Second})
	return NewWebhookSink(WebhookConfig{Server: srv.URL + "/", PSK: "secret", Username: "alice"}, client, st, c.Now)
}

func TestWebhookPayload(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alert", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	st := store.NewMemory()
	w := newWebhook(t, srv, st, &fakeClock{t: epoch})
	a := New(TypeDOMHash, "https://phish.example/", "https://mail.example/", epoch)
	require.NoError(t, w.Send(context.Background(), a))

	assert.Equal(t, Payload{
		Username:  "alice",
		URL:       "https://phish.example/",
		PSK:       "secret",
		Date:      "2024-03-01T12:00:00Z",
		Referrer:  "https://mail.example/",
		AlertType: TypeDOMHash,
	}, got)

	pending, err := w.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWebhookQueuesAndRetries(t *testing.T) {
	var up atomic.Bool
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		delivered.Add(1)
	}))
	defer srv.Close()

	ctx := context.Background()
	c := &fakeClock{t: epoch}
	w := newWebhook(t, srv, store.NewMemory(), c)

	assert.Error(t, w.Send(ctx, New(TypeDOMHash, "https://old.example", "", epoch)))
	c.Advance(6 * 24 * time.Hour)
	assert.Error(t, w.Send(ctx, New(TypeDOMHash, "https://new.example", "", c.Now())))

	pending, err := w.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Tries)

	sent, err := w.RetryUnsent(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	pending, err = w.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 2, pending[1].Tries)

	c.Advance(2 * 24 * time.Hour)
	up.Store(true)
	sent, err = w.RetryUnsent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.EqualValues(t, 1, delivered.Load())

	pending, err = w.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWebhookUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	ctx := context.Background()
	w := newWebhook(t, srv, store.NewMemory(), &fakeClock{t: epoch})
	assert.Error(t, w.Send(ctx, New(TypeDOMHash, "https://a.example", "", epoch)))

	pending, err := w.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestWebhookSendNotBlockedByRetry(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		if p.URL == "https://queued.example" {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	defer close(release)

	ctx := context.Background()
	c := &fakeClock{t: epoch}
	st := store.NewMemory()
	w := newWebhook(t, srv, st, c)

	queued, err := json.Marshal([]Unsent{{Alert: w.payload(New(TypeDOMHash, "https://queued.example", "", epoch)), Tries: 1}})
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, UnsentKey, queued))

	type result struct {
		sent int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sent, err := w.RetryUnsent(ctx)
		done <- result{sent, err}
	}()
	<-entered

	sendDone := make(chan error, 1)
	go func() { sendDone <- w.Send(ctx, New(TypeDOMHash, "https://new.example", "", epoch)) }()
	select {
	case err := <-sendDone:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Send waited for the retry pass")
	}

	release <- struct{}{}
	res := <-done
	require.NoError(t, res.err)
	assert.Zero(t, res.sent)

	pending, err := w.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	tries := map[string]int{}
	for _, u := range pending {
		tries[u.Alert.URL] = u.Tries
	}
	assert.Equal(t, map[string]int{"https://queued.example": 2, "https://new.example": 1}, tries)
}
