// Package alert builds phishing alerts and delivers them to log, file and
// webhook sinks.
package alert

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Type names the kind of alert on the wire.
type Type string

const (
	TypeDOMHash          Type = "domhash"
	TypeReuse            Type = "reuse"
	TypeUserReport       Type = "userreport"
	TypeFalsePositive    Type = "falsepositive"
	TypePersonalPassword Type = "personalpassword"
)

// Alert is one detection event.
type Alert struct {
	ID          string    `json:"id"`
	Type        Type      `json:"alertType"`
	URL         string    `json:"url"`
	MatchedHost string    `json:"matchedHost,omitempty"`
	Distance    int       `json:"distance,omitempty"`
	Referrer    string    `json:"referrer"`
	Date        time.Time `json:"date"`
}

// New returns an alert stamped with a fresh ID and the given time.
func New(typ Type, url, referrer string, now time.Time) Alert {
	return Alert{
		ID:       uuid.NewString(),
		Type:     typ,
		URL:      url,
		Referrer: referrer,
		Date:     now,
	}
}

// Sink delivers alerts.
type Sink interface {
	Send(ctx context.Context, a Alert) error
}

// LogSink writes alerts to the global logger.
type LogSink struct{}

func (LogSink) Send(_ context.Context, a Alert) error {
	log.Warn().
		Str("id", a.ID).
		Str("type", string(a.Type)).
		Str("url", a.URL).
		Str("matched_host", a.MatchedHost).
		Int("distance", a.Distance).
		Time("date", a.Date).
		Msg("Phishing alert")
	return nil
}

// MultiSink sends to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
