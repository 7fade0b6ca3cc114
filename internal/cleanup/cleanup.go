// Package cleanup runs the periodic maintenance pass: baseline expiry and
// capacity enforcement, then redelivery of queued alerts.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often Run performs a pass.
const DefaultInterval = time.Hour

// Pruner drops expired and surplus baselines.
type Pruner interface {
	Prune(ctx context.Context, expiryDays float64, maxEntries int) (int, error)
}

// Retrier resends queued alerts.
type Retrier interface {
	RetryUnsent(ctx context.Context) (int, error)
}

// Cleaner holds the retention policy.
type Cleaner struct {
	Pruner     Pruner
	Retrier    Retrier
	ExpiryDays float64
	MaxEntries int
}

// Report summarizes one pass.
type Report struct {
	Pruned int
	Resent int
}

// RunOnce prunes baselines and, when a Retrier is set, retries unsent alerts.
// Both steps run even if the first fails.
func (c *Cleaner) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	var errs []error

	n, err := c.Pruner.Prune(ctx, c.ExpiryDays, c.MaxEntries)
	if err != nil {
		errs = append(errs, fmt.Errorf("prune baselines: %w", err))
	}
	rep.Pruned = n

	if c.Retrier != nil {
		n, err := c.Retrier.RetryUnsent(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("retry alerts: %w", err))
		}
		rep.Resent = n
	}

	return rep, errors.Join(errs...)
}

// Run performs a pass immediately and then every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rep, err := c.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Cleanup pass failed")
		} else {
			log.Debug().Int("pruned", rep.Pruned).Int("resent", rep.Resent).Msg("Cleanup pass complete")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
