package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test error")

func fail(ctx context.Context) error    { return errTest }
func succeed(ctx context.Context) error { return nil }

func newBreaker(t *testing.T, maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	t.Helper()
	config := DefaultConfig("test")
	config.MaxFailures = maxFailures
	config.Timeout = timeout
	cb, err := New(config)
	require.NoError(t, err)
	return cb
}

func TestCircuitBreaker_Success(t *testing.T) {
	cb := newBreaker(t, 3, 100*time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().TotalSuccesses)
}

func TestCircuitBreaker_Failure(t *testing.T) {
	cb := newBreaker(t, 3, 100*time.Millisecond)

	err := cb.Execute(context.Background(), fail)
	assert.ErrorIs(t, err, errTest)
	assert.Equal(t, uint32(1), cb.Counts().TotalFailures)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OpenAfterMaxFailures(t *testing.T) {
	cb := newBreaker(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb := newBreaker(t, 3, time.Minute)

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), fail)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().ConsecutiveFailures)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := newBreaker(t, 2, 20*time.Millisecond)

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	// первый вызов после timeout проходит в Half-Open и закрывает circuit
	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newBreaker(t, 2, 20*time.Millisecond)

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	time.Sleep(30 * time.Millisecond)

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errTest)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessThreshold(t *testing.T) {
	config := DefaultConfig("test")
	config.MaxFailures = 1
	config.Timeout = 20 * time.Millisecond
	config.SuccessThreshold = 2
	cb, err := New(config)
	require.NoError(t, err)

	_ = cb.Execute(context.Background(), fail)
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IsFailure(t *testing.T) {
	benign := errors.New("not found")
	config := DefaultConfig("test")
	config.MaxFailures = 1
	config.IsFailure = func(err error) bool { return !errors.Is(err, benign) }
	cb, err := New(config)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(ctx context.Context) error { return benign }), benign)
	}
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_PanicCountsAsFailure(t *testing.T) {
	cb := newBreaker(t, 1, time.Minute)

	assert.Panics(t, func() {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error { panic("boom") })
	})
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
		done        = make(chan struct{}, 4)
	)
	config := DefaultConfig("redis")
	config.MaxFailures = 1
	config.Timeout = 10 * time.Millisecond
	config.OnStateChange = func(name string, from, to State) {
		mu.Lock()
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		mu.Unlock()
		done <- struct{}{}
	}
	cb, err := New(config)
	require.NoError(t, err)

	_ = cb.Execute(context.Background(), fail)
	<-done
	time.Sleep(20 * time.Millisecond)
	_ = cb.Execute(context.Background(), succeed)
	<-done
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{
		"redis:closed->open",
		"redis:open->half-open",
		"redis:half-open->closed",
	}, transitions)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := newBreaker(t, 1, time.Minute)
	_ = cb.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, "CircuitBreaker(test state=closed failures=0/1)", cb.String())
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := newBreaker(t, 1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(context.Background(), succeed)
			} else {
				_ = cb.Execute(context.Background(), fail)
			}
		}(i)
	}
	wg.Wait()

	counts := cb.Counts()
	assert.Equal(t, uint32(50), counts.Requests)
	assert.Equal(t, uint32(25), counts.TotalFailures)
}

func TestConfig_Validate(t *testing.T) {
	c := Config{MaxFailures: 0, Timeout: time.Second}
	assert.Error(t, c.Validate())

	c = Config{MaxFailures: 1}
	assert.Error(t, c.Validate())

	c = Config{MaxFailures: 1, Timeout: time.Second}
	require.NoError(t, c.Validate())
	assert.Equal(t, uint32(1), c.SuccessThreshold)
	assert.Equal(t, "circuit-breaker", c.Name)

	_, err := New(Config{})
	assert.ErrorContains(t, err, "invalid circuit breaker config")
}
