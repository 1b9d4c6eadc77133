package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/clinscribe/clinscribe/pkg/types"
)

func TestRegistry_CreateGeneratesUniqueIDs(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := r.Create("", "dr-lee", "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if s.ID() == "" {
			t.Fatal("Create: empty generated id")
		}
		if seen[s.ID()] {
			t.Fatalf("Create: duplicate generated id %q", s.ID())
		}
		seen[s.ID()] = true
		if s.State() != StateStarting {
			t.Fatalf("new session state = %s, want starting", s.State())
		}
	}
}

func TestRegistry_CreateDuplicateID(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.Create("s1", "dr-lee", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create("s1", "dr-lee", ""); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("Create(duplicate) err = %v, want ErrAlreadyExists", err)
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	s, err := r.Create("", "dr-lee", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r.Remove(s.ID())
	r.Remove(s.ID())
	r.Remove("never-existed")
	if _, err := r.Get(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Remove err = %v, want ErrNotFound", err)
	}
}

func TestStateMachine_HappyPath(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	s, err := r.Create("s1", "dr-lee", "patient-9")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, to := range []State{StateActive, StatePaused, StateActive, StateStopped} {
		if _, err := r.Transition("s1", to); err != nil {
			t.Fatalf("Transition(%s): %v", to, err)
		}
	}
	if s.State() != StateStopped {
		t.Errorf("State = %s, want stopped", s.State())
	}
	if s.EndedAt().IsZero() {
		t.Error("EndedAt is zero after terminal transition")
	}
}

func TestStateMachine_InvalidTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from State
		to   State
	}{
		{StateStarting, StatePaused},
		{StateStarting, StateStopped},
		{StateStopped, StateActive},
		{StateStopped, StatePaused},
		{StateCompleted, StateActive},
		{StateError, StateActive},
		{StateActive, StateStarting},
		{StateActive, StateActive},
	}
	for _, c := range cases {
		if c.from.canTransition(c.to) {
			t.Errorf("canTransition(%s -> %s) = true, want false", c.from, c.to)
		}
	}
}

func TestStateMachine_ErrorFromAnyNonTerminal(t *testing.T) {
	t.Parallel()

	for _, from := range []State{StateStarting, StateActive, StatePaused} {
		if !from.canTransition(StateError) {
			t.Errorf("canTransition(%s -> error) = false, want true", from)
		}
	}
	for _, from := range []State{StateStopped, StateCompleted, StateError} {
		if from.canTransition(StateError) {
			t.Errorf("canTransition(%s -> error) = true, want false", from)
		}
	}
}

func TestTransition_InvalidLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	s, err := r.Create("s1", "dr-lee", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Transition("s1", StateActive); err != nil {
		t.Fatalf("Transition(active): %v", err)
	}
	if _, err := r.Transition("s1", StateStopped); err != nil {
		t.Fatalf("Transition(stopped): %v", err)
	}

	if _, err := r.Transition("s1", StatePaused); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition(stopped -> paused) err = %v, want ErrInvalidTransition", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State = %s, want stopped unchanged", s.State())
	}
}

func TestSession_AccumulatesFinalTextInOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	s, err := r.Create("s1", "dr-lee", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s.AppendFinal(types.TranscriptionResult{EnhancedText: "patient reports chest pain"})
	s.AppendFinal(types.TranscriptionResult{EnhancedText: "vital signs stable"})

	want := "patient reports chest pain vital signs stable"
	if got := s.AccumulatedFinalText(); got != want {
		t.Errorf("AccumulatedFinalText = %q, want %q", got, want)
	}
	if got := len(s.Results()); got != 2 {
		t.Errorf("len(Results) = %d, want 2", got)
	}
}

func TestSession_EmptyFinalRecordedButNotAccumulated(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	s, err := r.Create("s1", "dr-lee", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s.AppendFinal(types.TranscriptionResult{EnhancedText: "bp one twenty over eighty"})
	s.AppendFinal(types.TranscriptionResult{EnhancedText: ""})
	s.AppendFinal(types.TranscriptionResult{EnhancedText: "pulse seventy two"})

	// Empty finals stay in the result log but never double the separator.
	want := "bp one twenty over eighty pulse seventy two"
	if got := s.AccumulatedFinalText(); got != want {
		t.Errorf("AccumulatedFinalText = %q, want %q", got, want)
	}
	if got := len(s.Results()); got != 3 {
		t.Errorf("len(Results) = %d, want 3", got)
	}
}

func TestSession_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	s, err := r.Create("s1", "dr-lee", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AppendFinal(types.TranscriptionResult{EnhancedText: "chunk"})
		}()
	}
	wg.Wait()

	if got := len(s.Results()); got != 50 {
		t.Errorf("len(Results) = %d, want 50", got)
	}
}

func TestRegistry_ListByOwner(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.Create("a1", "dr-lee", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create("a2", "dr-lee", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create("b1", "dr-patel", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Terminal sessions are excluded from the listing.
	if _, err := r.Transition("a2", StateError); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got := r.ListByOwner("dr-lee")
	if len(got) != 1 || got[0].ID() != "a1" {
		ids := make([]string, len(got))
		for i, s := range got {
			ids[i] = s.ID()
		}
		t.Errorf("ListByOwner(dr-lee) = %v, want [a1]", ids)
	}
}
