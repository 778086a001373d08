package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer enforces a process-wide pacing policy on backend requests. A single
// Pacer is shared by every Gateway instance so that concurrently executing
// runs collectively stay under the backend's rate limits. It is the only
// mutable state shared across runs; rate.Limiter handles its own locking.
type Pacer struct {
	lim *rate.Limiter
}

// NewPacer builds a pacer allowing requestsPerMinute sustained throughput
// with the given burst.
func NewPacer(requestsPerMinute float64, burst int) *Pacer {
	if burst < 1 {
		burst = 1
	}
	return &Pacer{lim: rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), burst)}
}

// Wait blocks until a request slot is available or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.lim.Wait(ctx)
}
