package alert

import (
	"sync"
	"time"
)

// DefaultDedupWindow is how long an identical alert is suppressed.
const DefaultDedupWindow = 30 * time.Second

// Deduper remembers recently raised alerts keyed by type and URL.
type Deduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

// NewDeduper returns a Deduper. A nil now uses time.Now.
func NewDeduper(window time.Duration, now func() time.Time) *Deduper {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Deduper{seen: make(map[string]time.Time), window: window, now: now}
}

// Seen reports whether an alert of typ for url was recorded within the window.
// If not, it records it now.
func (d *Deduper) Seen(typ Type, url string) bool {
	key := string(typ) + "|" + url
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.seen[key]; ok && now.Sub(t) < d.window {
		return true
	}
	d.seen[key] = now
	d.sweep(now)
	return false
}

func (d *Deduper) sweep(now time.Time) {
	for k, t := range d.seen {
		if now.Sub(t) >= d.window {
			delete(d.seen, k)
		}
	}
}

// Len returns the number of remembered alerts.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
