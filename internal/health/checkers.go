package health

import (
	"context"
	"fmt"
)

// Pinger probes a backing store. [pgxpool.Pool] satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Archive returns a checker that pings the transcript archive. Use it only
// when an archive is configured; a missing archive is not a readiness
// failure.
func Archive(p Pinger) Checker {
	return Checker{
		Name: "archive",
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// Counter reports how many live sessions a registry holds.
type Counter interface {
	Len() int
}

// SessionCapacity returns a checker that fails once the registry holds max
// or more sessions. A full server should stop receiving new dictations from
// the load balancer before it starts refusing them.
func SessionCapacity(c Counter, max int) Checker {
	return Checker{
		Name: "session_capacity",
		Check: func(context.Context) error {
			if n := c.Len(); n >= max {
				return fmt.Errorf("%d of %d session slots in use", n, max)
			}
			return nil
		},
	}
}
