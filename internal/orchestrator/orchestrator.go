// Package orchestrator is the public entry point of the dictation core. It
// composes the session registry, the recognition engine adapter, the text
// enhancer, the audio quality assessor, and the event broker into the
// session lifecycle operations exposed to the transport layer.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clinscribe/clinscribe/internal/broker"
	"github.com/clinscribe/clinscribe/internal/enhance"
	"github.com/clinscribe/clinscribe/internal/observe"
	"github.com/clinscribe/clinscribe/internal/quality"
	"github.com/clinscribe/clinscribe/internal/recognizer"
	"github.com/clinscribe/clinscribe/internal/session"
	"github.com/clinscribe/clinscribe/pkg/provider/stt"
	"github.com/clinscribe/clinscribe/pkg/types"
)

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator drives dictation sessions end to end. Safe for concurrent
// use; per-session serialization is delegated to the registry and the
// recognizer handles.
type Orchestrator struct {
	registry *session.Registry
	adapter  *recognizer.Adapter
	enhancer *enhance.Enhancer
	assessor *quality.Assessor
	broker   *broker.Broker
	metrics  *observe.Metrics
	log      *slog.Logger

	mu          sync.Mutex
	lastQuality map[string]types.Quality
}

// New wires the orchestrator from its collaborators.
func New(
	registry *session.Registry,
	adapter *recognizer.Adapter,
	enhancer *enhance.Enhancer,
	assessor *quality.Assessor,
	brk *broker.Broker,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		adapter:     adapter,
		enhancer:    enhancer,
		assessor:    assessor,
		broker:      brk,
		log:         slog.Default(),
		lastQuality: make(map[string]types.Quality),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Start creates a session, binds a recognizer, and activates it. An empty id
// lets the registry generate one. Any failure mid-sequence rolls the session
// to the Error state and releases whatever was acquired.
func (o *Orchestrator) Start(ctx context.Context, id, ownerID, subjectID string) (*session.Session, error) {
	sess, err := o.registry.Create(id, ownerID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: start session: %w", err)
	}
	sid := sess.ID()
	// Live from creation; every terminal transition decrements.
	o.metrics.ActiveSessions.Add(ctx, 1)

	bindStart := time.Now()
	if _, err := o.adapter.Bind(ctx, sid, o.callbacks(sid)); err != nil {
		o.failSession(sid, err)
		return nil, fmt.Errorf("orchestrator: start session %s: %w", sid, err)
	}
	o.metrics.RecognitionStartDuration.Record(ctx, time.Since(bindStart).Seconds())

	if _, err := o.registry.Transition(sid, session.StateActive); err != nil {
		o.failSession(sid, err)
		return nil, fmt.Errorf("orchestrator: activate session %s: %w", sid, err)
	}

	o.log.Info("session started", "session_id", sid, "owner_id", ownerID)
	o.broker.Publish(broker.Event{Type: broker.EventSessionStarted, SessionID: sid})
	return sess, nil
}

// ProcessAudio forwards an audio chunk to the session's recognizer. The
// session must be Active. Failures are returned to the caller and also
// surfaced as an Error event on the session's feed.
func (o *Orchestrator) ProcessAudio(sid string, chunk []byte) error {
	sess, err := o.registry.Get(sid)
	if err != nil {
		return o.reportError(sid, fmt.Errorf("orchestrator: process audio: %w", err))
	}
	if st := sess.State(); st != session.StateActive {
		return o.reportError(sid, fmt.Errorf("orchestrator: process audio: session %s is %s: %w",
			sid, st, session.ErrInvalidTransition))
	}
	handle, ok := o.adapter.Handle(sid)
	if !ok {
		return o.reportError(sid, fmt.Errorf("orchestrator: process audio: session %s has no recognizer binding", sid))
	}

	if q := o.assessor.AssessChunk(chunk); q != types.QualityUnknown {
		o.noteQuality(sid, q)
	}

	if err := handle.SendAudio(chunk); err != nil {
		return o.reportError(sid, fmt.Errorf("orchestrator: process audio: %w", err))
	}
	o.metrics.AudioChunks.Add(context.Background(), 1)
	return nil
}

// Pause suspends recognition. The session must be Active; pausing a stopped
// session returns the transition error and emits nothing.
func (o *Orchestrator) Pause(sid string) error {
	if _, err := o.registry.Transition(sid, session.StatePaused); err != nil {
		return fmt.Errorf("orchestrator: pause session %s: %w", sid, err)
	}
	if handle, ok := o.adapter.Handle(sid); ok {
		if err := handle.Pause(); err != nil {
			o.log.Warn("pausing recognizer", "session_id", sid, "error", err)
		}
	}
	o.log.Info("session paused", "session_id", sid)
	o.broker.Publish(broker.Event{Type: broker.EventSessionPaused, SessionID: sid})
	return nil
}

// Resume restarts recognition on a paused session. A failure to restart the
// engine stream rolls the session to Error.
func (o *Orchestrator) Resume(ctx context.Context, sid string) error {
	if _, err := o.registry.Transition(sid, session.StateActive); err != nil {
		return fmt.Errorf("orchestrator: resume session %s: %w", sid, err)
	}
	handle, ok := o.adapter.Handle(sid)
	if !ok {
		err := fmt.Errorf("orchestrator: resume session %s: no recognizer binding", sid)
		o.failSession(sid, err)
		return err
	}
	if err := handle.Resume(ctx); err != nil {
		o.failSession(sid, err)
		return fmt.Errorf("orchestrator: resume session %s: %w", sid, err)
	}
	o.log.Info("session resumed", "session_id", sid)
	o.broker.Publish(broker.Event{Type: broker.EventSessionResumed, SessionID: sid})
	return nil
}

// Stop ends a session from Active or Paused, releases the recognizer, and
// emits the accumulated final transcript.
func (o *Orchestrator) Stop(sid string) error {
	sess, err := o.registry.Transition(sid, session.StateStopped)
	if err != nil {
		return fmt.Errorf("orchestrator: stop session %s: %w", sid, err)
	}
	o.adapter.Unbind(sid)
	o.metrics.ActiveSessions.Add(context.Background(), -1)

	text := sess.AccumulatedFinalText()
	o.log.Info("session stopped", "session_id", sid, "final_results", len(sess.Results()))
	o.broker.Publish(broker.Event{Type: broker.EventSessionStopped, SessionID: sid, Text: text})
	return nil
}

// Cleanup tears a session down from any state: best-effort stop, subscriber
// shutdown, and registry eviction. Idempotent and never returns an error, so
// disconnect paths can always call it.
func (o *Orchestrator) Cleanup(sid string) {
	if sess, err := o.registry.Get(sid); err == nil && !sess.State().Terminal() {
		if err := o.Stop(sid); err != nil {
			// Starting sessions cannot reach Stopped directly; force the
			// terminal state so nothing leaks.
			if _, terr := o.registry.Transition(sid, session.StateError); terr == nil {
				o.metrics.ActiveSessions.Add(context.Background(), -1)
			}
		}
	}
	o.adapter.Unbind(sid)
	o.broker.CloseSession(sid)
	o.registry.Remove(sid)

	o.mu.Lock()
	delete(o.lastQuality, sid)
	o.mu.Unlock()
	o.log.Debug("session cleaned up", "session_id", sid)
}

// Status returns the session for inspection, or [session.ErrNotFound].
func (o *Orchestrator) Status(sid string) (*session.Session, error) {
	return o.registry.Get(sid)
}

// ListActive returns the owner's non-terminal sessions.
func (o *Orchestrator) ListActive(ownerID string) []*session.Session {
	return o.registry.ListByOwner(ownerID)
}

// callbacks builds the recognizer callback set for one session.
func (o *Orchestrator) callbacks(sid string) recognizer.Callbacks {
	return recognizer.Callbacks{
		OnInterim: func(tr stt.Transcript) { o.handleInterim(sid, tr) },
		OnFinal:   func(tr stt.Transcript) { o.handleFinal(sid, tr) },
		OnCanceled: func(err error) {
			// Unbind waits for the pump goroutine this callback runs on, so
			// failure handling must run elsewhere.
			go func() {
				o.metrics.RecordEngineError(context.Background(), "stt")
				o.failSession(sid, err)
			}()
		},
	}
}

// handleInterim builds an interim result. Interims skip the enhancer: they
// are display-only and latency matters more than enrichment.
func (o *Orchestrator) handleInterim(sid string, tr stt.Transcript) {
	res := types.TranscriptionResult{
		SessionID:    sid,
		RawText:      tr.Text,
		EnhancedText: tr.Text,
		Confidence:   tr.Confidence,
		IsInterim:    true,
		Section:      types.SectionGeneral,
		AudioQuality: o.resultQuality(sid, tr.Confidence),
		Timestamp:    time.Now(),
	}
	o.metrics.RecordResult(context.Background(), "interim")
	o.broker.Publish(broker.Event{Type: broker.EventInterimResult, SessionID: sid, Result: &res})
}

// handleFinal enhances a final transcript, appends it to the session, and
// publishes it.
func (o *Orchestrator) handleFinal(sid string, tr stt.Transcript) {
	start := time.Now()
	enhanced, err := o.enhancer.Enhance(tr.Text)
	o.metrics.EnhancementDuration.Record(context.Background(), time.Since(start).Seconds())
	if err != nil {
		// Degraded enhancement is a warning, never a session failure.
		o.metrics.EnhancementDegraded.Add(context.Background(), 1)
		o.log.Warn("enhancement degraded", "session_id", sid, "error", err)
	}

	res := types.TranscriptionResult{
		SessionID:    sid,
		RawText:      tr.Text,
		EnhancedText: enhanced.EnhancedText,
		Confidence:   tr.Confidence,
		IsInterim:    false,
		Section:      enhanced.Section,
		MedicalTerms: enhanced.Terms,
		AudioQuality: o.resultQuality(sid, tr.Confidence),
		Timestamp:    time.Now(),
	}

	if sess, err := o.registry.Get(sid); err == nil {
		sess.AppendFinal(res)
	}
	o.metrics.RecordResult(context.Background(), "final")
	o.broker.Publish(broker.Event{Type: broker.EventFinalResult, SessionID: sid, Result: &res})
}

// resultQuality returns the quality bucket to stamp on a result. Under the
// confidence strategy it is derived from this result's confidence; under the
// amplitude strategy the latest chunk assessment applies.
func (o *Orchestrator) resultQuality(sid string, confidence float64) types.Quality {
	if q := o.assessor.AssessResult(confidence); q != types.QualityUnknown {
		o.noteQuality(sid, q)
		return q
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if q, ok := o.lastQuality[sid]; ok {
		return q
	}
	return types.QualityUnknown
}

// noteQuality records the session's current bucket and publishes a
// QualityChanged event when it moves.
func (o *Orchestrator) noteQuality(sid string, q types.Quality) {
	o.mu.Lock()
	prev, seen := o.lastQuality[sid]
	o.lastQuality[sid] = q
	o.mu.Unlock()

	if seen && prev != q {
		o.broker.Publish(broker.Event{Type: broker.EventQualityChanged, SessionID: sid, Quality: q})
	}
}

// failSession rolls a session to Error, emits the Error event, and releases
// its resources. Safe to call for sessions already terminal.
func (o *Orchestrator) failSession(sid string, cause error) {
	if _, err := o.registry.Transition(sid, session.StateError); err == nil {
		o.metrics.ActiveSessions.Add(context.Background(), -1)
		o.log.Error("session failed", "session_id", sid, "error", cause)
		o.broker.Publish(broker.Event{Type: broker.EventError, SessionID: sid, ErrorMessage: cause.Error()})
	}
	o.adapter.Unbind(sid)
}

// reportError mirrors a synchronous failure onto the session's event feed so
// subscribers see the same errors the caller does.
func (o *Orchestrator) reportError(sid string, err error) error {
	o.broker.Publish(broker.Event{Type: broker.EventError, SessionID: sid, ErrorMessage: err.Error()})
	return err
}
