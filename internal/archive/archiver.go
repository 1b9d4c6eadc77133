// Package archive connects the event broker to a durable transcript store.
// It subscribes to every session's events and writes final results and
// session boundaries to the configured backend.
package archive

import (
	"context"
	"log/slog"
	"time"

	"github.com/clinscribe/clinscribe/internal/broker"
	"github.com/clinscribe/clinscribe/pkg/types"
)

// Recorder is the storage backend. Implemented by the PostgreSQL store;
// tests use an in-memory fake.
type Recorder interface {
	StartSession(ctx context.Context, sessionID string, startedAt time.Time) error
	AppendResult(ctx context.Context, res types.TranscriptionResult) error
	FinishSession(ctx context.Context, sessionID, finalText string, endedAt time.Time) error
}

// Archiver consumes a wildcard broker subscription and forwards the durable
// subset of events to a Recorder. Write failures are logged and skipped; the
// archive is an observer and must never stall the dictation pipeline.
type Archiver struct {
	rec  Recorder
	log  *slog.Logger
	done chan struct{}
}

// Option configures an [Archiver].
type Option func(*Archiver)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(a *Archiver) {
		a.log = log
	}
}

// New returns an Archiver writing to rec.
func New(rec Recorder, opts ...Option) *Archiver {
	a := &Archiver{
		rec:  rec,
		log:  slog.Default(),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run consumes sub until ctx is cancelled or the subscription closes. It
// blocks; start it in its own goroutine. The subscription is closed on
// return.
func (a *Archiver) Run(ctx context.Context, sub *broker.Subscription) {
	defer close(a.done)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			a.handle(ctx, ev)
		}
	}
}

// Done is closed when Run has returned.
func (a *Archiver) Done() <-chan struct{} {
	return a.done
}

func (a *Archiver) handle(ctx context.Context, ev broker.Event) {
	var err error
	switch ev.Type {
	case broker.EventSessionStarted:
		err = a.rec.StartSession(ctx, ev.SessionID, ev.Timestamp)
	case broker.EventFinalResult:
		if ev.Result != nil {
			err = a.rec.AppendResult(ctx, *ev.Result)
		}
	case broker.EventSessionStopped:
		err = a.rec.FinishSession(ctx, ev.SessionID, ev.Text, ev.Timestamp)
	default:
		// Interims, pauses, and quality changes are ephemeral.
		return
	}
	if err != nil {
		a.log.Warn("archiving event", "event_type", string(ev.Type), "session_id", ev.SessionID, "error", err)
	}
}
