// Package resilience guards the speech engines with circuit breakers and
// ordered failover. A flapping engine backend is taken out of rotation until
// its cooldown elapses, at which point a few probe calls decide whether it
// rejoins.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards all calls.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrOpen] until the cooldown elapses.
	BreakerOpen

	// BreakerProbing lets a limited number of calls through. Enough successes
	// close the breaker; any failure re-opens it.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields get defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Trip is the number of consecutive failures that opens the breaker.
	// Default 5.
	Trip int

	// Cooldown is how long the breaker stays open before probing. Default 30s.
	Cooldown time.Duration

	// ProbeBudget is how many calls the probing state admits. Default 3.
	ProbeBudget int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name        string
	trip        int
	cooldown    time.Duration
	probeBudget int
	log         *slog.Logger

	mu         sync.Mutex
	state      BreakerState
	failures   int
	lastFail   time.Time
	probeCalls int
	probeFails int
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &Breaker{
		name:        cfg.Name,
		trip:        cfg.Trip,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
		log:         slog.Default(),
	}
}

// Do runs fn unless the breaker is open. In the probing state at most
// ProbeBudget calls are admitted.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.lastFail) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = BreakerProbing
		b.probeCalls = 0
		b.probeFails = 0
		b.log.Info("breaker probing", "name", b.name)

	case BreakerProbing:
		if b.probeCalls >= b.probeBudget {
			b.mu.Unlock()
			return ErrOpen
		}
	}

	probing := b.state == BreakerProbing
	if probing {
		b.probeCalls++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.fail(probing)
	} else {
		b.succeed(probing)
	}
	return err
}

// fail updates counters after a failed call. Caller holds b.mu.
func (b *Breaker) fail(probing bool) {
	b.lastFail = time.Now()

	if probing {
		b.probeFails++
		b.state = BreakerOpen
		b.failures = b.trip
		b.log.Warn("breaker re-opened", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.trip {
		b.state = BreakerOpen
		b.log.Warn("breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// succeed updates counters after a successful call. Caller holds b.mu.
func (b *Breaker) succeed(probing bool) {
	if probing {
		if b.probeCalls-b.probeFails >= b.probeBudget {
			b.state = BreakerClosed
			b.failures = 0
			b.probeCalls = 0
			b.probeFails = 0
			b.log.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports probing; the transition itself happens on the next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.lastFail) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probeCalls = 0
	b.probeFails = 0
}
