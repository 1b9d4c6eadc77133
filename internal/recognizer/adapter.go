// Package recognizer bridges sessions to the speech engine. The Adapter
// enforces the one-binding-per-session rule, and each Handle owns one
// session's engine stream, pumping interim and final transcripts into the
// orchestrator's callbacks.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/clinscribe/clinscribe/pkg/provider/stt"
)

// Sentinel errors. Callers match with [errors.Is].
var (
	ErrAlreadyBound = errors.New("recognizer: session already bound")
	ErrClosed       = errors.New("recognizer: handle closed")
	ErrPaused       = errors.New("recognizer: recognition paused")
)

// Callbacks receive recognition output for one session. They are invoked
// from the handle's pump goroutine, one at a time.
type Callbacks struct {
	OnInterim func(stt.Transcript)
	OnFinal   func(stt.Transcript)
	// OnCanceled fires when the engine ends the stream on its own, which
	// means an engine-side failure. It does not fire on pause or unbind.
	OnCanceled func(err error)
}

// Option configures an [Adapter].
type Option func(*Adapter)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) {
		a.log = log
	}
}

// Adapter hands out per-session recognition handles backed by an
// [stt.Provider]. Safe for concurrent use.
type Adapter struct {
	provider stt.Provider
	cfg      stt.StreamConfig
	log      *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// New returns an Adapter that starts streams on provider with cfg.
func New(provider stt.Provider, cfg stt.StreamConfig, opts ...Option) *Adapter {
	a := &Adapter{
		provider: provider,
		cfg:      cfg,
		log:      slog.Default(),
		handles:  make(map[string]*Handle),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Bind starts continuous recognition for the session and returns its handle.
// A session may hold at most one binding; binding again before Unbind fails
// with [ErrAlreadyBound].
func (a *Adapter) Bind(ctx context.Context, sessionID string, cb Callbacks) (*Handle, error) {
	a.mu.Lock()
	if _, bound := a.handles[sessionID]; bound {
		a.mu.Unlock()
		return nil, fmt.Errorf("recognizer: bind session %s: %w", sessionID, ErrAlreadyBound)
	}
	// Reserve the slot before the (slow) engine dial so a concurrent Bind
	// for the same session fails fast.
	a.handles[sessionID] = nil
	a.mu.Unlock()

	stream, err := a.provider.StartStream(ctx, a.streamConfig())
	if err != nil {
		a.mu.Lock()
		delete(a.handles, sessionID)
		a.mu.Unlock()
		return nil, fmt.Errorf("recognizer: start stream for session %s: %w", sessionID, err)
	}

	h := &Handle{
		adapter:   a,
		sessionID: sessionID,
		cb:        cb,
		log:       a.log,
		stream:    stream,
	}
	h.startPump(stream)

	a.mu.Lock()
	a.handles[sessionID] = h
	a.mu.Unlock()
	return h, nil
}

// streamConfig snapshots the stream config under the lock. SetKeywordsAll
// may swap the Keywords slice at any time, so dials must not read a.cfg
// directly.
func (a *Adapter) streamConfig() stt.StreamConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Handle returns the session's live binding, or false when none exists.
func (a *Adapter) Handle(sessionID string) (*Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.handles[sessionID]
	return h, ok && h != nil
}

// SetKeywordsAll pushes a new keyword boost list to the default stream
// config and to every live binding. Streams that are paused, closed, or on
// an engine without mid-stream boosting are skipped. Used by config
// hot-reload.
func (a *Adapter) SetKeywordsAll(keywords []stt.KeywordBoost) {
	a.mu.Lock()
	a.cfg.Keywords = keywords
	live := make([]*Handle, 0, len(a.handles))
	for _, h := range a.handles {
		if h != nil {
			live = append(live, h)
		}
	}
	a.mu.Unlock()

	for _, h := range live {
		if err := h.SetKeywords(keywords); err != nil && !errors.Is(err, stt.ErrNotSupported) {
			a.log.Warn("updating keywords", "session_id", h.sessionID, "error", err)
		}
	}
}

// Unbind tears down the session's binding and waits for its pump to drain.
// Unbinding a session with no binding is a no-op, so teardown paths can call
// it unconditionally.
func (a *Adapter) Unbind(sessionID string) {
	a.mu.Lock()
	h := a.handles[sessionID]
	delete(a.handles, sessionID)
	a.mu.Unlock()
	if h != nil {
		h.close()
	}
}

// Handle is one session's live engine binding. Safe for concurrent use.
type Handle struct {
	adapter   *Adapter
	sessionID string
	cb        Callbacks
	log       *slog.Logger

	mu     sync.Mutex
	stream stt.StreamHandle
	paused bool
	closed bool
	wg     sync.WaitGroup
}

// SendAudio forwards an audio chunk to the engine. Fails when the handle is
// paused or closed.
func (h *Handle) SendAudio(chunk []byte) error {
	h.mu.Lock()
	stream := h.stream
	switch {
	case h.closed:
		h.mu.Unlock()
		return fmt.Errorf("recognizer: send audio for session %s: %w", h.sessionID, ErrClosed)
	case h.paused:
		h.mu.Unlock()
		return fmt.Errorf("recognizer: send audio for session %s: %w", h.sessionID, ErrPaused)
	}
	h.mu.Unlock()

	if err := stream.SendAudio(chunk); err != nil {
		return fmt.Errorf("recognizer: send audio for session %s: %w", h.sessionID, err)
	}
	return nil
}

// SetKeywords updates engine keyword boosting mid-stream. Engines without
// that capability return [stt.ErrNotSupported].
func (h *Handle) SetKeywords(keywords []stt.KeywordBoost) error {
	h.mu.Lock()
	stream := h.stream
	closed := h.closed || h.paused
	h.mu.Unlock()
	if closed {
		return fmt.Errorf("recognizer: set keywords for session %s: %w", h.sessionID, ErrClosed)
	}
	return stream.SetKeywords(keywords)
}

// Pause stops the underlying recognition stream but keeps the binding and
// its callbacks. The engine offers no true pause, so the stream is closed
// and Resume dials a fresh one. Idempotent.
func (h *Handle) Pause() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fmt.Errorf("recognizer: pause session %s: %w", h.sessionID, ErrClosed)
	}
	if h.paused {
		h.mu.Unlock()
		return nil
	}
	h.paused = true
	stream := h.stream
	h.mu.Unlock()

	if err := stream.Close(); err != nil {
		h.log.Warn("closing stream on pause", "session_id", h.sessionID, "error", err)
	}
	h.wg.Wait()
	return nil
}

// Resume restarts continuous recognition after Pause by starting a new
// engine stream on the same binding. Idempotent when not paused.
func (h *Handle) Resume(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fmt.Errorf("recognizer: resume session %s: %w", h.sessionID, ErrClosed)
	}
	if !h.paused {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	stream, err := h.adapter.provider.StartStream(ctx, h.adapter.streamConfig())
	if err != nil {
		return fmt.Errorf("recognizer: resume session %s: %w", h.sessionID, err)
	}

	h.mu.Lock()
	h.stream = stream
	h.paused = false
	h.mu.Unlock()
	h.startPump(stream)
	return nil
}

// close tears down the stream and waits for the pump. Called via
// [Adapter.Unbind].
func (h *Handle) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	stream := h.stream
	paused := h.paused
	h.mu.Unlock()

	if !paused {
		if err := stream.Close(); err != nil {
			h.log.Warn("closing stream on unbind", "session_id", h.sessionID, "error", err)
		}
	}
	h.wg.Wait()
}

// startPump forwards transcripts from the stream's channels to the
// callbacks. When both channels close without a preceding Pause or unbind,
// the engine canceled on its own and OnCanceled fires.
func (h *Handle) startPump(stream stt.StreamHandle) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		interims, finals := stream.Interims(), stream.Finals()
		for interims != nil || finals != nil {
			select {
			case tr, ok := <-interims:
				if !ok {
					interims = nil
					continue
				}
				if h.cb.OnInterim != nil {
					h.cb.OnInterim(tr)
				}
			case tr, ok := <-finals:
				if !ok {
					finals = nil
					continue
				}
				if h.cb.OnFinal != nil {
					h.cb.OnFinal(tr)
				}
			}
		}

		h.mu.Lock()
		expected := h.paused || h.closed
		h.mu.Unlock()
		if !expected && h.cb.OnCanceled != nil {
			h.cb.OnCanceled(fmt.Errorf("recognizer: session %s: engine ended recognition stream", h.sessionID))
		}
	}()
}
