package ai

import (
	"context"
	"testing"
	"time"

	"github.com/formulab/v2/internal/ports/outbound"
	"github.com/formulab/v2/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := NewCircuitBreaker("test")

	require.NoError(t, b.Allow())
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())

	err := b.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeCircuitOpen))
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewCircuitBreaker("test")

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := NewCircuitBreaker("test")
	now := time.Now()
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, BreakerOpen, b.State())
	require.Error(t, b.Allow())

	// After the recovery timeout a single probe is admitted.
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewCircuitBreaker("test")
	now := time.Now()
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow())

	// One failure in half-open reopens immediately, no threshold counting.
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.Error(t, b.Allow())
}

type stubProvider struct {
	completeErr error
	events      []outbound.StreamEvent
	streamErr   error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(context.Context, outbound.CompletionRequest) (*outbound.CompletionResult, error) {
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	return &outbound.CompletionResult{Text: "ok"}, nil
}

func (s *stubProvider) Stream(context.Context, outbound.CompletionRequest) (<-chan outbound.StreamEvent, error) {
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	ch := make(chan outbound.StreamEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestGuardedProviderCompleteCountsFailures(t *testing.T) {
	stub := &stubProvider{completeErr: errors.NewProviderTransientError("stub", nil)}
	breaker := NewCircuitBreaker("stub")
	p := WithBreaker(stub, breaker)

	for i := 0; i < 3; i++ {
		_, err := p.Complete(context.Background(), outbound.CompletionRequest{})
		require.Error(t, err)
	}

	// Breaker is now open: the inner provider is no longer reached.
	_, err := p.Complete(context.Background(), outbound.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeCircuitOpen))
}

func TestGuardedProviderStreamFailureJudgedByTerminalEvent(t *testing.T) {
	stub := &stubProvider{events: []outbound.StreamEvent{
		{Kind: outbound.StreamText, Text: "partial"},
		{Kind: outbound.StreamError, Err: errors.NewProviderTransientError("stub", nil)},
	}}
	breaker := NewCircuitBreaker("stub")
	p := WithBreaker(stub, breaker)

	for i := 0; i < 3; i++ {
		events, err := p.Stream(context.Background(), outbound.CompletionRequest{})
		require.NoError(t, err)
		for range events {
		}
	}
	assert.Equal(t, BreakerOpen, breaker.State())
}

func TestGuardedProviderStreamReleasesCancelledConsumer(t *testing.T) {
	stub := &stubProvider{events: []outbound.StreamEvent{
		{Kind: outbound.StreamText, Text: "one"},
		{Kind: outbound.StreamText, Text: "two"},
		{Kind: outbound.StreamText, Text: "three"},
		{Kind: outbound.StreamDone},
	}}
	breaker := NewCircuitBreaker("stub")
	p := WithBreaker(stub, breaker)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := p.Stream(ctx, outbound.CompletionRequest{})
	require.NoError(t, err)

	// Consume one event, then walk away mid-stream.
	<-events
	cancel()

	// The forwarding goroutine must drop its held event and close the
	// channel rather than block forever on a consumer that left.
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "stream stayed open after cancellation")

	// Cancellation is the caller's doing, not a provider failure.
	assert.Equal(t, BreakerClosed, breaker.State())
}

func TestGuardedProviderStreamSuccessClosesBreaker(t *testing.T) {
	stub := &stubProvider{events: []outbound.StreamEvent{
		{Kind: outbound.StreamText, Text: "hello"},
		{Kind: outbound.StreamDone},
	}}
	breaker := NewCircuitBreaker("stub")
	breaker.RecordFailure()
	p := WithBreaker(stub, breaker)

	events, err := p.Stream(context.Background(), outbound.CompletionRequest{})
	require.NoError(t, err)

	var kinds []outbound.StreamEventKind
	for ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []outbound.StreamEventKind{outbound.StreamText, outbound.StreamDone}, kinds)
	assert.Equal(t, BreakerClosed, breaker.State())
}
