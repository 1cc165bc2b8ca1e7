package ai

import (
	"context"
	"sync"
	"time"

	"github.com/formulab/v2/internal/ports/outbound"
	"github.com/formulab/v2/pkg/errors"
)

// BreakerState represents the current state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed is normal operation - requests pass through.
	BreakerClosed BreakerState = iota
	// BreakerOpen means the breaker is tripped - requests are rejected.
	BreakerOpen
	// BreakerHalfOpen allows one test request to check recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker tracks consecutive failures for one provider and temporarily
// rejects requests to a failing backend, so a dead provider fails fast while
// the other remains usable.
type CircuitBreaker struct {
	name             string
	state            BreakerState
	failures         int
	lastFailure      time.Time
	failureThreshold int
	recoveryTimeout  time.Duration
	mu               sync.Mutex

	// now is injectable for testing.
	now func() time.Time
}

// NewCircuitBreaker creates a breaker with a threshold of 3 consecutive
// failures and a 60 second recovery timeout.
func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		state:            BreakerClosed,
		failureThreshold: 3,
		recoveryTimeout:  60 * time.Second,
		now:              time.Now,
	}
}

// Allow reports whether a request may proceed. In the open state it returns a
// CIRCUIT_OPEN error until the recovery timeout elapses, then admits a single
// probe in half-open state.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.lastFailure) < b.recoveryTimeout {
			return errors.New(errors.CodeCircuitOpen, "Provider circuit open", b.name)
		}
		b.state = BreakerHalfOpen
	}
	return nil
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

// RecordFailure counts a failure and trips the breaker at the threshold. A
// failed half-open probe reopens immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen || b.failures >= b.failureThreshold {
		b.state = BreakerOpen
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// WithBreaker decorates a provider with a circuit breaker. Only transport
// failures count against the breaker; validation of the model's output
// happens downstream and is not a provider fault.
func WithBreaker(inner outbound.AIProvider, breaker *CircuitBreaker) outbound.AIProvider {
	return &guardedProvider{inner: inner, breaker: breaker}
}

type guardedProvider struct {
	inner   outbound.AIProvider
	breaker *CircuitBreaker
}

func (g *guardedProvider) Name() string {
	return g.inner.Name()
}

func (g *guardedProvider) Complete(ctx context.Context, req outbound.CompletionRequest) (*outbound.CompletionResult, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, err
	}
	res, err := g.inner.Complete(ctx, req)
	if err != nil {
		g.breaker.RecordFailure()
		return nil, err
	}
	g.breaker.RecordSuccess()
	return res, nil
}

func (g *guardedProvider) Stream(ctx context.Context, req outbound.CompletionRequest) (<-chan outbound.StreamEvent, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, err
	}
	events, err := g.inner.Stream(ctx, req)
	if err != nil {
		g.breaker.RecordFailure()
		return nil, err
	}

	// The stream's terminal event decides success or failure.
	out := make(chan outbound.StreamEvent)
	go func() {
		defer close(out)
		failed := false
		for ev := range events {
			if ev.Kind == outbound.StreamError {
				failed = true
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				// The consumer is gone. Cancellation says nothing about
				// provider health, so the breaker stays untouched.
				return
			}
		}
		if failed {
			g.breaker.RecordFailure()
		} else {
			g.breaker.RecordSuccess()
		}
	}()
	return out, nil
}
