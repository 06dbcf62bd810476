// Package sink delivers session outcomes, QC results and session logs to
// the places that keep them. Publishing is best effort; callers log
// failures and carry on.
package sink

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/buckleypaul/dinoflash/internal/store"
)

var logger = loggo.GetLogger("dinoflash.sink")

// Log is a complete session log.
type Log struct {
	SessionID string    `json:"session_id"`
	Port      string    `json:"port"`
	Timestamp time.Time `json:"timestamp"`
	Lines     []string  `json:"lines"`
}

// Sink receives finished records.
type Sink interface {
	PublishOutcome(ctx context.Context, r store.SessionRecord) error
	PublishQC(ctx context.Context, r store.QCRecord) error
	PublishLog(ctx context.Context, l Log) error
}

// Nop discards everything. It stands in when no sink is configured.
type Nop struct{}

func (Nop) PublishOutcome(context.Context, store.SessionRecord) error { return nil }
func (Nop) PublishQC(context.Context, store.QCRecord) error           { return nil }
func (Nop) PublishLog(context.Context, Log) error                     { return nil }

// Local writes to the station history.
type Local struct {
	Store *store.Store
}

func (s Local) PublishOutcome(_ context.Context, r store.SessionRecord) error {
	return errors.Trace(s.Store.AddSession(r))
}

func (s Local) PublishQC(_ context.Context, r store.QCRecord) error {
	return errors.Trace(s.Store.AddQC(r))
}

func (s Local) PublishLog(_ context.Context, l Log) error {
	_, err := s.Store.SaveSessionLog(l.SessionID, l.Port, l.Timestamp, l.Lines)
	return errors.Trace(err)
}

// Multi publishes to every sink and returns the first failure after all
// have been tried.
type Multi []Sink

func (m Multi) each(fn func(Sink) error) error {
	var first error
	for _, s := range m {
		if err := fn(s); err != nil {
			logger.Warningf("publish to %T: %v", s, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (m Multi) PublishOutcome(ctx context.Context, r store.SessionRecord) error {
	return m.each(func(s Sink) error { return s.PublishOutcome(ctx, r) })
}

func (m Multi) PublishQC(ctx context.Context, r store.QCRecord) error {
	return m.each(func(s Sink) error { return s.PublishQC(ctx, r) })
}

func (m Multi) PublishLog(ctx context.Context, l Log) error {
	return m.each(func(s Sink) error { return s.PublishLog(ctx, l) })
}
