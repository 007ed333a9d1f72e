package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

var errRefused = sqlerr.ConnectionFailure(errors.New("dial tcp 127.0.0.1:5432: connection refused"))

func fastConfig(attempts int) Config {
	cfg := Attempts(attempts, time.Millisecond)
	cfg.Jitter = 0
	return cfg
}

func TestRetryer_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryer_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errRefused
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		attempts++
		return errRefused
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
	assert.True(t, sqlerr.Is(err, sqlerr.CodeConnectionFailure))
}

func TestRetryer_OnlyTransientErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"connection failure", errRefused, 3},
		{"connection timeout", sqlerr.ConnectionTimeout(context.DeadlineExceeded), 3},
		{"missing parameter", sqlerr.MissingParameter("userId"), 1},
		{"unsupported construct", sqlerr.Unsupported("MERGE"), 1},
		{"native error", sqlerr.NativeQuery(errors.New(`relation "users" does not exist`)), 1},
		{"plain error", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
				attempts++
				return tt.err
			})
			require.Error(t, err)
			assert.Equal(t, tt.want, attempts)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRetryer_CustomRetryable(t *testing.T) {
	cfg := fastConfig(4)
	cfg.Retryable = func(err error) bool { return err.Error() == "busy" }

	attempts := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return errors.New("busy")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
}

func TestRetryer_CalculateDelay(t *testing.T) {
	tests := []struct {
		name     string
		strategy BackoffStrategy
		want     []time.Duration
	}{
		{"constant", BackoffConstant, []time.Duration{100, 100, 100, 100}},
		{"linear", BackoffLinear, []time.Duration{100, 200, 300, 400}},
		{"exponential", BackoffExponential, []time.Duration{100, 200, 400, 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				MaxAttempts:     5,
				InitialDelay:    100 * time.Millisecond,
				MaxDelay:        500 * time.Millisecond,
				BackoffStrategy: tt.strategy,
			}
			r, err := NewRetryer(cfg)
			require.NoError(t, err)

			for i, want := range tt.want {
				assert.Equal(t, want*time.Millisecond, r.calculateDelay(i+1), "attempt %d", i+1)
			}
		})
	}
}

func TestRetryer_JitterStaysInBounds(t *testing.T) {
	cfg := Attempts(3, 100*time.Millisecond)
	cfg.BackoffStrategy = BackoffConstant
	cfg.Jitter = 0.5
	r, err := NewRetryer(cfg)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		d := r.calculateDelay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryer_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Attempts(10, 50*time.Millisecond)

	attempts := 0
	err := Do(ctx, cfg, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errRefused
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	var seen []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
		assert.True(t, sqlerr.IsTransient(err))
	}

	_ = Do(context.Background(), cfg, func(ctx context.Context) error { return errRefused })

	// 3 попытки = 2 повтора
	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetryer_SingleAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(1), func(ctx context.Context) error {
		attempts++
		return errRefused
	})
	assert.Same(t, errRefused, err)
	assert.Equal(t, 1, attempts)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, "max_attempts"},
		{"negative delay", func(c *Config) { c.InitialDelay = -time.Second }, "initial_delay"},
		{"max below initial", func(c *Config) { c.MaxDelay = time.Millisecond }, "max_delay"},
		{"unknown strategy", func(c *Config) { c.BackoffStrategy = "fibonacci" }, "invalid backoff strategy"},
		{"jitter too large", func(c *Config) { c.Jitter = 1.5 }, "jitter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateDefaultsMultiplier(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackoffMultiplier = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
}
