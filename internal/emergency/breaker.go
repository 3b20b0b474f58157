package emergency

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/exec-engine/internal/scheduler"
)

// CircuitBreaker is the process-wide halt switch. Only the emergency
// monitor mutates it; the execution engine reads it before accepting
// orders. Cancellations are always allowed while it is active.
type CircuitBreaker struct {
	mu    sync.Mutex
	clock scheduler.Clock

	active       bool
	activatedAt  time.Time
	deactivateAt time.Time
}

func NewCircuitBreaker(clock scheduler.Clock) *CircuitBreaker {
	return &CircuitBreaker{clock: clock}
}

// Activate opens the breaker for the given cool-down. Re-activation
// while open extends the deadline.
func (cb *CircuitBreaker) Activate(coolDown time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()
	if !cb.active {
		cb.active = true
		cb.activatedAt = now
	}
	cb.deactivateAt = now.Add(coolDown)

	log.Warn().
		Time("deactivate_at", cb.deactivateAt).
		Msg("circuit breaker activated")
}

// Deactivate closes the breaker immediately.
func (cb *CircuitBreaker) Deactivate() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.active {
		cb.active = false
		log.Info().Msg("circuit breaker deactivated")
	}
}

// Active reports whether new submissions are halted. The cool-down
// deadline is enforced lazily on read.
func (cb *CircuitBreaker) Active() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.active && !cb.clock.Now().Before(cb.deactivateAt) {
		cb.active = false
		log.Info().Msg("circuit breaker cool-down expired")
	}
	return cb.active
}

// Status returns a copy of the breaker state for operators.
func (cb *CircuitBreaker) Status() BreakerStatus {
	active := cb.Active()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := BreakerStatus{Active: active}
	if active {
		activatedAt, deactivateAt := cb.activatedAt, cb.deactivateAt
		status.ActivatedAt = &activatedAt
		status.DeactivateAt = &deactivateAt
	}
	return status
}
