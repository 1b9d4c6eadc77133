package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clinscribe/clinscribe/pkg/provider/stt"
)

// ErrAllBackendsFailed is returned when every engine backend in a [Failover]
// either failed or had an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all engine backends failed")

// Failover is an [stt.Provider] that dials a list of engine backends in
// order. Each backend gets its own [Breaker], so a backend that keeps
// failing stops being dialed at all until its cooldown passes.
//
// Only StartStream fails over; an established stream stays on the backend
// that opened it.
type Failover struct {
	cfg      BreakerConfig
	log      *slog.Logger
	backends []backend
}

type backend struct {
	name     string
	provider stt.Provider
	breaker  *Breaker
}

var _ stt.Provider = (*Failover)(nil)

// FailoverOption configures a [Failover].
type FailoverOption func(*Failover)

// WithBreakerConfig sets the breaker tuning applied to every backend.
func WithBreakerConfig(cfg BreakerConfig) FailoverOption {
	return func(f *Failover) {
		f.cfg = cfg
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) FailoverOption {
	return func(f *Failover) {
		f.log = log
	}
}

// NewFailover creates a Failover with primary as the preferred backend.
// Register more backends with [Failover.Add]; they are tried in order.
func NewFailover(name string, primary stt.Provider, opts ...FailoverOption) *Failover {
	f := &Failover{log: slog.Default()}
	for _, o := range opts {
		o(f)
	}
	f.Add(name, primary)
	return f
}

// Add appends a backend after all previously registered ones. Not safe to
// call concurrently with StartStream; register all backends during setup.
func (f *Failover) Add(name string, p stt.Provider) {
	cfg := f.cfg
	cfg.Name = name
	f.backends = append(f.backends, backend{
		name:     name,
		provider: p,
		breaker:  NewBreaker(cfg),
	})
}

// Backends returns the registered backend names in dial order.
func (f *Failover) Backends() []string {
	names := make([]string, len(f.backends))
	for i, b := range f.backends {
		names[i] = b.name
	}
	return names
}

// StartStream opens a stream on the first healthy backend.
func (f *Failover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.StreamHandle, error) {
	var lastErr error
	for i := range f.backends {
		b := &f.backends[i]
		var handle stt.StreamHandle
		err := b.breaker.Do(func() error {
			var dialErr error
			handle, dialErr = b.provider.StartStream(ctx, cfg)
			return dialErr
		})
		if err == nil {
			return handle, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			f.log.Debug("skipping engine backend, breaker open", "backend", b.name)
		} else {
			f.log.Warn("engine backend failed, trying next", "backend", b.name, "error", err)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
