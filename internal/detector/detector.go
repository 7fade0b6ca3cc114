// Package detector decides whether a page fingerprint is a near-duplicate of a
// trusted baseline.
package detector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"phishcatch/internal/repository"
	"phishcatch/internal/tlsh"
)

// DefaultThreshold is the distance below which a candidate counts as a clone.
const DefaultThreshold = 100

// Match is the closest baseline found under the threshold.
type Match struct {
	Baseline repository.Baseline `json:"baseline"`
	Distance int                 `json:"distance"`
}

// IsClone compares candidate against every valid baseline and reports the
// closest one whose distance is below threshold. Invalid baselines are ignored.
func IsClone(candidate tlsh.Fingerprint, baselines []repository.Baseline, threshold int) (Match, bool) {
	if !candidate.Valid() {
		return Match{}, false
	}

	best, found := Match{}, false
	for _, b := range baselines {
		if !b.Fingerprint.Valid() {
			continue
		}
		d := candidate.Distance(b.Fingerprint)
		if d >= threshold {
			continue
		}
		if !found || d < best.Distance {
			best = Match{Baseline: b, Distance: d}
			found = true
		}
	}
	return best, found
}

// Lister is the read side of the baseline repository.
type Lister interface {
	List(ctx context.Context) ([]repository.Baseline, error)
}

// Detector checks candidates against the current repository contents.
type Detector struct {
	baselines Lister
	threshold int
}

// New returns a Detector. A non-positive threshold selects DefaultThreshold.
func New(baselines Lister, threshold int) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{baselines: baselines, threshold: threshold}
}

// Threshold returns the alert distance in use.
func (d *Detector) Threshold() int {
	return d.threshold
}

// Check takes one snapshot of the baselines and compares candidate against it.
func (d *Detector) Check(ctx context.Context, candidate tlsh.Fingerprint) (Match, bool, error) {
	if !candidate.Valid() {
		return Match{}, false, tlsh.ErrInvalidFingerprint
	}

	baselines, err := d.baselines.List(ctx)
	if err != nil {
		return Match{}, false, fmt.Errorf("failed to load baselines: %w", err)
	}

	m, ok := IsClone(candidate, baselines, d.threshold)
	if ok {
		log.Debug().
			Int("distance", m.Distance).
			Str("source", m.Baseline.Source).
			Msg("Candidate matches baseline")
	}
	return m, ok, nil
}
