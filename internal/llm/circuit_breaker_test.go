package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProviderDown = errors.New("provider down")

func failing() (interface{}, error) { return nil, errProviderDown }
func succeeding() (interface{}, error) { return "ok", nil }

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker()

	for i := 0; i < 10; i++ {
		result, err := cb.Execute(context.Background(), succeeding)
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
	}

	assert.Equal(t, "closed", cb.State())
	m := cb.Metrics()
	assert.Equal(t, uint64(10), m.TotalRequests)
	assert.Equal(t, uint64(10), m.TotalSuccesses)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          3,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 2,
	})

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(context.Background(), failing)
		require.ErrorIs(t, err, errProviderDown)
	}
	assert.Equal(t, "open", cb.State())

	// Requests are rejected without running the function.
	ran := false
	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		ran = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran, "open circuit must not invoke the provider")
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          2,
		Timeout:              50 * time.Millisecond,
		HalfOpenMaxSuccesses: 2,
	})

	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(context.Background(), failing)
	}
	require.Equal(t, "open", cb.State())

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, "half-open", cb.State())

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), succeeding)
		require.NoError(t, err)
	}
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreakerFailureInHalfOpenReopens(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          2,
		Timeout:              50 * time.Millisecond,
		HalfOpenMaxSuccesses: 2,
	})

	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(context.Background(), failing)
	}
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, "half-open", cb.State())

	_, err := cb.Execute(context.Background(), failing)
	require.ErrorIs(t, err, errProviderDown)
	assert.Equal(t, "open", cb.State())
}

func TestCircuitBreakerCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, succeeding)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", cb.State(), "caller cancellation is not a provider failure")
}
