// Package repository keeps the bounded, time-expiring set of trusted baseline
// fingerprints. Entries are persisted as one JSON array in a store.Store so the
// layout stays compatible with data written by earlier clients.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"phishcatch/internal/store"
	"phishcatch/internal/tlsh"
)

const (
	// DefaultKey is the store key holding the baseline array.
	DefaultKey = "datedDomHashes"
	// MaxEntries is the default capacity enforced by Prune.
	MaxEntries = 50
	// DefaultMergeThreshold is the distance below which a saved fingerprint
	// refreshes an existing entry instead of being appended.
	DefaultMergeThreshold = 30
)

// ErrStorage wraps failures of the underlying store.
var ErrStorage = errors.New("storage error")

const dayMillis = float64(24 * time.Hour / time.Millisecond)

// DatedFingerprint is one stored entry.
type DatedFingerprint struct {
	Hash      string `json:"hash"`
	DateAdded int64  `json:"dateAdded"`
	Source    string `json:"source,omitempty"`
}

// Baseline is a decoded entry ready for comparison.
type Baseline struct {
	Fingerprint tlsh.Fingerprint `json:"hash"`
	Source      string           `json:"source"`
	DateAdded   time.Time        `json:"dateAdded"`
}

// SaveResult describes what Save did.
type SaveResult struct {
	Merged bool `json:"merged"`
	// Distance to the refreshed entry; zero when appended.
	Distance int `json:"distance"`
	// Size of the repository after the save.
	Size int `json:"size"`
}

// Option configures a Repository.
type Option func(*Repository)

// WithKey stores entries under key instead of DefaultKey.
func WithKey(key string) Option {
	return func(r *Repository) { r.key = key }
}

// WithMergeThreshold sets the distance below which Save refreshes an entry.
func WithMergeThreshold(d int) Option {
	return func(r *Repository) { r.mergeThreshold = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// Repository is safe for concurrent use. It must be the only writer of its
// (store, key) pair.
type Repository struct {
	st             store.Store
	key            string
	mergeThreshold int
	now            func() time.Time

	mu sync.RWMutex
}

// New returns a Repository over st.
func New(st store.Store, opts ...Option) *Repository {
	r := &Repository{
		st:             st,
		key:            DefaultKey,
		mergeThreshold: DefaultMergeThreshold,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MergeThreshold returns the configured merge distance.
func (r *Repository) MergeThreshold() int {
	return r.mergeThreshold
}

// Save records fp as a trusted baseline seen at source. An existing entry with
// the same encoding, or closer than the merge threshold, is refreshed in place;
// otherwise fp is appended. Capacity is enforced by Prune, not here.
func (r *Repository) Save(ctx context.Context, fp tlsh.Fingerprint, source string) (SaveResult, error) {
	if !fp.Valid() {
		return SaveResult{}, tlsh.ErrInvalidFingerprint
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load(ctx)
	if err != nil {
		return SaveResult{}, err
	}

	encoded := tlsh.Encode(fp)
	now := r.now().UnixMilli()

	idx, dist := -1, 0
	for i, e := range entries {
		if e.Hash == encoded {
			idx, dist = i, 0
			break
		}
		stored, err := tlsh.Decode(e.Hash)
		if err != nil {
			continue
		}
		if d := fp.Distance(stored); d < r.mergeThreshold && (idx < 0 || d < dist) {
			idx, dist = i, d
		}
	}

	res := SaveResult{}
	if idx >= 0 {
		entries[idx].DateAdded = now
		entries[idx].Source = source
		res.Merged = true
		res.Distance = dist
	} else {
		entries = append(entries, DatedFingerprint{Hash: encoded, DateAdded: now, Source: source})
	}
	res.Size = len(entries)

	if err := r.store(ctx, entries); err != nil {
		return SaveResult{}, err
	}

	log.Debug().
		Str("hash", encoded).
		Str("source", source).
		Bool("merged", res.Merged).
		Int("size", res.Size).
		Msg("Baseline saved")
	return res, nil
}

// List decodes every stored entry. Malformed entries are skipped.
func (r *Repository) List(ctx context.Context) ([]Baseline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Baseline, 0, len(entries))
	for _, e := range entries {
		fp, err := tlsh.Decode(e.Hash)
		if err != nil {
			log.Warn().Err(err).Str("hash", e.Hash).Msg("Skipping malformed baseline")
			continue
		}
		out = append(out, Baseline{
			Fingerprint: fp,
			Source:      e.Source,
			DateAdded:   time.UnixMilli(e.DateAdded),
		})
	}
	return out, nil
}

// Entries returns the raw stored entries.
func (r *Repository) Entries(ctx context.Context) ([]DatedFingerprint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load(ctx)
}

// Prune drops entries at least expiryDays old, then keeps the maxEntries most
// recent. It returns how many entries were removed. Running it twice with the
// same arguments and clock changes nothing the second time.
func (r *Repository) Prune(ctx context.Context, expiryDays float64, maxEntries int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load(ctx)
	if err != nil {
		return 0, err
	}

	kept := prune(entries, r.now().UnixMilli(), expiryDays, maxEntries)
	removed := len(entries) - len(kept)
	if slices.Equal(entries, kept) {
		return 0, nil
	}

	if err := r.store(ctx, kept); err != nil {
		return 0, err
	}

	log.Info().Int("removed", removed).Int("kept", len(kept)).Msg("Baselines pruned")
	return removed, nil
}

func prune(entries []DatedFingerprint, now int64, expiryDays float64, maxEntries int) []DatedFingerprint {
	kept := make([]DatedFingerprint, 0, len(entries))
	for _, e := range entries {
		age := float64(now-e.DateAdded) / dayMillis
		if age < 0 {
			age = -age
		}
		if age < expiryDays {
			kept = append(kept, e)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].DateAdded > kept[j].DateAdded
	})

	if maxEntries >= 0 && len(kept) > maxEntries {
		kept = kept[:maxEntries]
	}
	return kept
}

func (r *Repository) load(ctx context.Context) ([]DatedFingerprint, error) {
	raw, ok, err := r.st.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorage, r.key, err)
	}
	if !ok || len(raw) == 0 {
		return []DatedFingerprint{}, nil
	}

	var entries []DatedFingerprint
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrStorage, r.key, err)
	}
	if entries == nil {
		entries = []DatedFingerprint{}
	}
	return entries, nil
}

func (r *Repository) store(ctx context.Context, entries []DatedFingerprint) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrStorage, r.key, err)
	}
	if err := r.st.Set(ctx, r.key, raw); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorage, r.key, err)
	}
	return nil
}
