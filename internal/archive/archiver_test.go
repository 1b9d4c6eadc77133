package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clinscribe/clinscribe/internal/broker"
	"github.com/clinscribe/clinscribe/pkg/types"
)

type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	results  []types.TranscriptionResult
	finished map[string]string

	appendErr error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{finished: make(map[string]string)}
}

func (f *fakeRecorder) StartSession(_ context.Context, sessionID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, sessionID)
	return nil
}

func (f *fakeRecorder) AppendResult(_ context.Context, res types.TranscriptionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.results = append(f.results, res)
	return nil
}

func (f *fakeRecorder) FinishSession(_ context.Context, sessionID, finalText string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[sessionID] = finalText
	return nil
}

func TestArchiver_RecordsSessionLifecycle(t *testing.T) {
	t.Parallel()

	b := broker.New()
	rec := newFakeRecorder()
	a := New(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, b.SubscribeAll())

	b.Publish(broker.Event{Type: broker.EventSessionStarted, SessionID: "s1"})
	b.Publish(broker.Event{
		Type:      broker.EventFinalResult,
		SessionID: "s1",
		Result: &types.TranscriptionResult{
			SessionID:    "s1",
			RawText:      "patient reports chest pain",
			EnhancedText: "patient reports chest pain",
		},
	})
	// Interims and pauses must not reach the recorder.
	b.Publish(broker.Event{Type: broker.EventInterimResult, SessionID: "s1"})
	b.Publish(broker.Event{Type: broker.EventSessionPaused, SessionID: "s1"})
	b.Publish(broker.Event{Type: broker.EventSessionStopped, SessionID: "s1", Text: "patient reports chest pain"})

	cancel()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("archiver did not stop")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.started) != 1 || rec.started[0] != "s1" {
		t.Errorf("started = %v, want [s1]", rec.started)
	}
	if len(rec.results) != 1 || rec.results[0].RawText != "patient reports chest pain" {
		t.Errorf("results = %+v, want one final result", rec.results)
	}
	if got := rec.finished["s1"]; got != "patient reports chest pain" {
		t.Errorf("finished[s1] = %q, want accumulated text", got)
	}
}

func TestArchiver_SkipsFinalWithoutResult(t *testing.T) {
	t.Parallel()

	b := broker.New()
	rec := newFakeRecorder()
	a := New(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, b.SubscribeAll())

	b.Publish(broker.Event{Type: broker.EventFinalResult, SessionID: "s1"})
	b.Publish(broker.Event{Type: broker.EventSessionStopped, SessionID: "s1"})

	cancel()
	<-a.Done()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.results) != 0 {
		t.Errorf("results = %+v, want none", rec.results)
	}
}

func TestArchiver_ContinuesAfterWriteError(t *testing.T) {
	t.Parallel()

	b := broker.New()
	rec := newFakeRecorder()
	rec.appendErr = errors.New("connection lost")
	a := New(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, b.SubscribeAll())

	b.Publish(broker.Event{
		Type:      broker.EventFinalResult,
		SessionID: "s1",
		Result:    &types.TranscriptionResult{SessionID: "s1"},
	})
	b.Publish(broker.Event{Type: broker.EventSessionStopped, SessionID: "s1", Text: "done"})

	cancel()
	<-a.Done()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if got := rec.finished["s1"]; got != "done" {
		t.Errorf("finished[s1] = %q, want archiver to keep running after a write error", got)
	}
}
