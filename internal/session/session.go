// Package session holds the dictation session model, its state machine, and
// the concurrent registry that owns all live sessions.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/clinscribe/clinscribe/pkg/types"
)

// Sentinel errors for registry and state-machine failures. Callers match
// with [errors.Is].
var (
	ErrNotFound          = errors.New("session: not found")
	ErrAlreadyExists     = errors.New("session: id already exists")
	ErrInvalidTransition = errors.New("session: invalid state transition")
)

// State is a session lifecycle state.
type State string

const (
	StateStarting  State = "starting"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateStopped, StateCompleted, StateError:
		return true
	}
	return false
}

// transitions is the full state machine. Active and Paused are the only
// states that flow into each other; everything else is one-way.
var transitions = map[State][]State{
	StateStarting: {StateActive, StateError},
	StateActive:   {StatePaused, StateStopped, StateCompleted, StateError},
	StatePaused:   {StateActive, StateStopped, StateCompleted, StateError},
}

func (s State) canTransition(to State) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Session is one live dictation session. All mutation goes through methods
// that hold the per-session lock, so state reads and result appends from the
// transport, the orchestrator, and recognizer callbacks never race.
type Session struct {
	id        string
	ownerID   string
	subjectID string
	startedAt time.Time

	mu          sync.Mutex
	state       State
	endedAt     time.Time
	results     []types.TranscriptionResult
	accumulated []string
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// OwnerID returns the clinician who started the session.
func (s *Session) OwnerID() string { return s.ownerID }

// SubjectID returns the optional patient reference, empty when unset.
func (s *Session) SubjectID() string { return s.subjectID }

// StartedAt returns the creation time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EndedAt returns when the session reached a terminal state, zero before
// then.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Results returns a copy of the appended final results in arrival order.
func (s *Session) Results() []types.TranscriptionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TranscriptionResult, len(s.results))
	copy(out, s.results)
	return out
}

// AccumulatedFinalText returns the space-joined enhanced text of the final
// results, in arrival order. Interim results never contribute. Finals whose
// enhanced text is empty appear in [Session.Results] but add nothing here,
// so the transcript never carries doubled separators.
func (s *Session) AccumulatedFinalText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.accumulated, " ")
}

// AppendFinal records a final recognition result and extends the accumulated
// transcript. Interim results must not be appended; they are ephemeral.
func (s *Session) AppendFinal(res types.TranscriptionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	if res.EnhancedText != "" {
		s.accumulated = append(s.accumulated, res.EnhancedText)
	}
}

// transition applies the state machine under the session lock.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.canTransition(to) {
		return ErrInvalidTransition
	}
	s.state = to
	if to.Terminal() {
		s.endedAt = time.Now()
	}
	return nil
}

// Registry is the concurrent table of live sessions and the single source of
// truth for session existence.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a new session in the Starting state. An empty id asks the
// registry to generate one; a caller-supplied id that is already registered
// fails with [ErrAlreadyExists].
func (r *Registry) Create(id, ownerID, subjectID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = newID()
	} else if _, dup := r.sessions[id]; dup {
		return nil, ErrAlreadyExists
	}

	s := &Session{
		id:        id,
		ownerID:   ownerID,
		subjectID: subjectID,
		startedAt: time.Now(),
		state:     StateStarting,
	}
	r.sessions[id] = s
	return s, nil
}

// Get returns the session for id or [ErrNotFound].
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Transition moves the session to the target state, returning
// [ErrInvalidTransition] when the state machine forbids it and leaving the
// session unchanged in that case.
func (r *Registry) Transition(id string, to State) (*Session, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(to); err != nil {
		return nil, err
	}
	return s, nil
}

// Remove evicts a session from the registry. Removing an unknown id is a
// no-op, making Remove safe to call from any teardown path.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ListByOwner returns the owner's sessions that have not reached a terminal
// state, in unspecified order.
func (r *Registry) ListByOwner(ownerID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.OwnerID() == ownerID && !s.State().Terminal() {
			out = append(out, s)
		}
	}
	return out
}

// All returns a snapshot of every registered session, terminal ones
// included, in unspecified order.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions, terminal ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the platform is broken; fall back to a
		// timestamp so session creation still works.
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))
	}
	return hex.EncodeToString(b[:])
}
