package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"phishcatch/internal/requester"
	"phishcatch/internal/store"
)

const (
	// UnsentKey is the store key of the retry queue.
	UnsentKey = "unsentAlerts"
	// UnsentMaxAge is how long a queued alert is retried before being dropped.
	UnsentMaxAge = 7 * 24 * time.Hour
)

// Payload is the JSON body posted to the alert server.
type Payload struct {
	Username  string `json:"username"`
	URL       string `json:"url"`
	PSK       string `json:"psk"`
	Date      string `json:"date"`
	Referrer  string `json:"referrer"`
	AlertType Type   `json:"alertType"`
}

// Unsent is a queued payload with its delivery attempts.
type Unsent struct {
	Alert Payload `json:"alert"`
	Tries int     `json:"tries"`
}

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	Server   string
	PSK      string
	Username string
}

// WebhookSink posts alerts to <server>/alert and queues the ones that fail.
type WebhookSink struct {
	cfg    WebhookConfig
	client *requester.HTTPClient
	queue  store.Store
	now    func() time.Time

	// mu guards the stored queue; retryMu serializes RetryUnsent passes.
	mu      sync.Mutex
	retryMu sync.Mutex
}

// NewWebhookSink returns a sink posting through client and queueing in st.
func NewWebhookSink(cfg WebhookConfig, client *requester.HTTPClient, st store.Store, now func() time.Time) *WebhookSink {
	if now == nil {
		now = time.Now
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")
	return &WebhookSink{cfg: cfg, client: client, queue: st, now: now}
}

func (w *WebhookSink) endpoint() string {
	return w.cfg.Server + "/alert"
}

func (w *WebhookSink) payload(a Alert) Payload {
	return Payload{
		Username:  w.cfg.Username,
		URL:       a.URL,
		PSK:       w.cfg.PSK,
		Date:      a.Date.UTC().Format(time.RFC3339Nano),
		Referrer:  a.Referrer,
		AlertType: a.Type,
	}
}

// Send posts a. On failure the payload is queued for RetryUnsent and the
// delivery error is returned.
func (w *WebhookSink) Send(ctx context.Context, a Alert) error {
	p := w.payload(a)
	if err := w.post(ctx, p); err != nil {
		log.Warn().Err(err).Str("url", a.URL).Msg("Alert delivery failed, queueing")
		if qerr := w.enqueue(ctx, Unsent{Alert: p, Tries: 1}); qerr != nil {
			return fmt.Errorf("alert delivery failed: %w (queue: %v)", err, qerr)
		}
		return fmt.Errorf("alert delivery failed: %w", err)
	}
	return nil
}

func (w *WebhookSink) post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	resp, err := w.client.PostJSON(ctx, w.endpoint(), body)
	if err != nil {
		return err
	}
	_, _ = requester.ReadBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alert server returned %d", resp.StatusCode)
	}
	return nil
}

// RetryUnsent resends queued alerts. Entries older than UnsentMaxAge are
// dropped; failures stay queued with their try count incremented. Alerts
// queued while the pass is posting are kept. It returns how many were
// delivered.
func (w *WebhookSink) RetryUnsent(ctx context.Context) (int, error) {
	w.retryMu.Lock()
	defer w.retryMu.Unlock()

	w.mu.Lock()
	queued, err := w.loadQueue(ctx)
	w.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if len(queued) == 0 {
		return 0, nil
	}

	now := w.now()
	sent := 0
	handled := make(map[string]struct{}, len(queued))
	failed := make(map[string]Unsent)
	for _, u := range queued {
		handled[queueKey(u.Alert)] = struct{}{}

		date, err := time.Parse(time.RFC3339Nano, u.Alert.Date)
		if err != nil {
			log.Warn().Str("date", u.Alert.Date).Msg("Dropping queued alert with unreadable date")
			continue
		}
		age := now.Sub(date)
		if age < 0 {
			age = -age
		}
		if age >= UnsentMaxAge {
			continue
		}
		if err := w.post(ctx, u.Alert); err != nil {
			u.Tries++
			failed[queueKey(u.Alert)] = u
			continue
		}
		sent++
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	current, err := w.loadQueue(ctx)
	if err != nil {
		return sent, err
	}
	remaining := make([]Unsent, 0, len(current))
	for _, u := range current {
		key := queueKey(u.Alert)
		if _, ok := handled[key]; !ok {
			remaining = append(remaining, u)
			continue
		}
		if f, ok := failed[key]; ok {
			remaining = append(remaining, f)
			delete(failed, key)
		}
	}

	if err := w.saveQueue(ctx, remaining); err != nil {
		return sent, err
	}
	log.Info().Int("sent", sent).Int("remaining", len(remaining)).Msg("Retried unsent alerts")
	return sent, nil
}

func queueKey(p Payload) string {
	return p.Date + "|" + p.URL
}

// Pending returns the queued alerts.
func (w *WebhookSink) Pending(ctx context.Context) ([]Unsent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadQueue(ctx)
}

func (w *WebhookSink) enqueue(ctx context.Context, u Unsent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	queued, err := w.loadQueue(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range queued {
		if queueKey(queued[i].Alert) == queueKey(u.Alert) {
			queued[i] = u
			replaced = true
		}
	}
	if !replaced {
		queued = append(queued, u)
	}
	return w.saveQueue(ctx, queued)
}

func (w *WebhookSink) loadQueue(ctx context.Context) ([]Unsent, error) {
	raw, ok, err := w.queue.Get(ctx, UnsentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert queue: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var queued []Unsent
	if err := json.Unmarshal(raw, &queued); err != nil {
		return nil, fmt.Errorf("failed to decode alert queue: %w", err)
	}
	return queued, nil
}

func (w *WebhookSink) saveQueue(ctx context.Context, queued []Unsent) error {
	if queued == nil {
		queued = []Unsent{}
	}
	raw, err := json.Marshal(queued)
	if err != nil {
		return err
	}
	if err := w.queue.Set(ctx, UnsentKey, raw); err != nil {
		return fmt.Errorf("failed to write alert queue: %w", err)
	}
	return nil
}
