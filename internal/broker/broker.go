// Package broker fans session events out to subscribers: the WebSocket
// transport, the transcript archive, and anything else that wants to watch a
// session live.
//
// Events are ephemeral. Subscribers see what happens while they are
// subscribed; there is no replay for late joiners. Delivery never blocks the
// dictation pipeline: when a subscriber's buffer is full, the oldest buffered
// event is dropped to make room for the newest.
package broker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/clinscribe/clinscribe/pkg/types"
)

// EventType enumerates the session event kinds.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventInterimResult  EventType = "interim_result"
	EventFinalResult    EventType = "final_result"
	EventSessionPaused  EventType = "session_paused"
	EventSessionResumed EventType = "session_resumed"
	EventSessionStopped EventType = "session_stopped"
	EventQualityChanged EventType = "quality_changed"
	EventError          EventType = "error"
)

// Event is one session occurrence. Only the fields relevant to the event
// type are populated.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	// Result carries the transcription payload for interim and final
	// result events.
	Result *types.TranscriptionResult `json:"result,omitempty"`
	// Text carries the accumulated final transcript on session stop.
	Text string `json:"text,omitempty"`
	// ErrorMessage is set on error events.
	ErrorMessage string `json:"error_message,omitempty"`
	// Quality is set on quality-changed events.
	Quality   types.Quality `json:"quality,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const defaultBufferSize = 64

// wildcard is the internal subscription key matching every session.
const wildcard = ""

// Option configures a [Broker].
type Option func(*Broker)

// WithBufferSize sets the per-subscriber channel buffer. Default 64.
func WithBufferSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(b *Broker) {
		b.log = log
	}
}

// WithDropHook registers a callback invoked once per dropped event, used to
// feed the dropped-events counter.
func WithDropHook(fn func(sessionID string)) Option {
	return func(b *Broker) {
		b.onDrop = fn
	}
}

// WithSubscriberHook registers a callback invoked with +1 on subscribe and
// -1 on detach, used to feed the subscribers gauge.
func WithSubscriberHook(fn func(delta int)) Option {
	return func(b *Broker) {
		b.onSubscribers = fn
	}
}

// Broker routes events to per-session and wildcard subscribers. Safe for
// concurrent use.
type Broker struct {
	buffer        int
	log           *slog.Logger
	onDrop        func(sessionID string)
	onSubscribers func(delta int)

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// New returns a Broker with the supplied options applied.
func New(opts ...Option) *Broker {
	b := &Broker{
		buffer: defaultBufferSize,
		log:    slog.Default(),
		subs:   make(map[string]map[*Subscription]struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscription is one subscriber's event feed. Close when done; events
// published after Close are not delivered.
type Subscription struct {
	broker *Broker
	key    string
	ch     chan Event
	closed bool
}

// Events returns the receive channel. It is closed when the subscription is
// closed, either by the subscriber or by [Broker.CloseSession].
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscription and closes its channel. Idempotent.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.broker.detachLocked(s)
}

// Subscribe registers a subscriber for one session's events.
func (b *Broker) Subscribe(sessionID string) *Subscription {
	return b.subscribe(sessionID)
}

// SubscribeAll registers a subscriber that receives every session's events,
// used by the transcript archive.
func (b *Broker) SubscribeAll() *Subscription {
	return b.subscribe(wildcard)
}

func (b *Broker) subscribe(key string) *Subscription {
	sub := &Subscription{broker: b, key: key, ch: make(chan Event, b.buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[key]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[key] = set
	}
	set[sub] = struct{}{}
	if b.onSubscribers != nil {
		b.onSubscribers(1)
	}
	return sub
}

// Publish delivers ev to the session's subscribers and to wildcard
// subscribers. A zero timestamp is stamped with the current time. Publish
// never blocks; full subscribers lose their oldest buffered event.
func (b *Broker) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[ev.SessionID] {
		b.deliverLocked(sub, ev)
	}
	if ev.SessionID != wildcard {
		for sub := range b.subs[wildcard] {
			b.deliverLocked(sub, ev)
		}
	}
}

// CloseSession closes every subscription for the session. Wildcard
// subscribers are unaffected. Called when a session is cleaned up.
func (b *Broker) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[sessionID] {
		b.detachLocked(sub)
	}
}

// deliverLocked sends without blocking. Channel operations happen under the
// broker lock, so drop-oldest and close never race with a send.
func (b *Broker) deliverLocked(sub *Subscription, ev Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}

	// Buffer full: evict the oldest event, then retry once.
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- ev:
	default:
	}

	if b.onDrop != nil {
		b.onDrop(ev.SessionID)
	}
	b.log.Debug("event dropped for slow subscriber", "session_id", ev.SessionID, "event_type", string(ev.Type))
}

func (b *Broker) detachLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	if set, ok := b.subs[sub.key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.key)
		}
	}
	close(sub.ch)
	if b.onSubscribers != nil {
		b.onSubscribers(-1)
	}
}
