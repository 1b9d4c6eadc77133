package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinscribe/clinscribe/pkg/provider/stt"
	"github.com/clinscribe/clinscribe/pkg/provider/stt/mock"
)

func TestFailover_UsesPrimaryWhenHealthy(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{Stream: &mock.Stream{}}
	secondary := &mock.Provider{Stream: &mock.Stream{}}

	f := NewFailover("primary", primary)
	f.Add("secondary", secondary)

	if _, err := f.StartStream(context.Background(), stt.StreamConfig{}); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if got := len(primary.Calls()); got != 1 {
		t.Errorf("primary calls = %d, want 1", got)
	}
	if got := len(secondary.Calls()); got != 0 {
		t.Errorf("secondary calls = %d, want 0", got)
	}
}

func TestFailover_FallsBackOnDialError(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{StartStreamErr: errors.New("dial refused")}
	secondary := &mock.Provider{Stream: &mock.Stream{}}

	f := NewFailover("primary", primary)
	f.Add("secondary", secondary)

	h, err := f.StartStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if h == nil {
		t.Fatal("handle = nil, want secondary's stream")
	}
	if got := len(secondary.Calls()); got != 1 {
		t.Errorf("secondary calls = %d, want 1", got)
	}
}

func TestFailover_AllBackendsFailed(t *testing.T) {
	t.Parallel()

	f := NewFailover("primary", &mock.Provider{StartStreamErr: errors.New("down")})
	f.Add("secondary", &mock.Provider{StartStreamErr: errors.New("also down")})

	_, err := f.StartStream(context.Background(), stt.StreamConfig{})
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("err = %v, want ErrAllBackendsFailed", err)
	}
}

func TestFailover_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{StartStreamErr: errors.New("down")}
	secondary := &mock.Provider{Stream: &mock.Stream{}}

	f := NewFailover("primary", primary,
		WithBreakerConfig(BreakerConfig{Trip: 1, Cooldown: time.Hour}))
	f.Add("secondary", secondary)

	// First call trips the primary's breaker.
	if _, err := f.StartStream(context.Background(), stt.StreamConfig{}); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	// Second call must not dial the primary at all.
	if _, err := f.StartStream(context.Background(), stt.StreamConfig{}); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if got := len(primary.Calls()); got != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker open on second dial)", got)
	}
	if got := len(secondary.Calls()); got != 2 {
		t.Errorf("secondary calls = %d, want 2", got)
	}
}

func TestFailover_Backends(t *testing.T) {
	t.Parallel()

	f := NewFailover("deepgram", &mock.Provider{})
	f.Add("whisper", &mock.Provider{})

	got := f.Backends()
	if len(got) != 2 || got[0] != "deepgram" || got[1] != "whisper" {
		t.Errorf("Backends = %v, want [deepgram whisper]", got)
	}
}
