// Package breaker wraps outbound chain RPC calls with a small
// gobreaker-based circuit breaker so a flapping node fails fast instead
// of piling up blocked polls.
package breaker

import (
	"time"

	"github.com/sony/gobreaker"
)

// Breaker trips after 3 consecutive failures, or after a failure ratio
// above 5% once at least 20 requests have been seen in the rolling
// interval, then opens for Timeout before allowing a probe request.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New returns a named breaker ready to wrap calls against one chain RPC
// endpoint.
func New(name string) *Breaker {
	settings := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker, short-circuiting with
// gobreaker.ErrOpenState while the breaker is open.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// State reports the breaker's current state, for health sampling.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
