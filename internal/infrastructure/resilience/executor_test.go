package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelsync/backend/internal/domain/connector"
)

func newTestExecutor(config ExecutorConfig) (*Executor, *[]time.Duration) {
	delays := &[]time.Duration{}
	e := NewExecutor(config, nil, nil).WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	})
	return e, delays
}

func TestDefaultClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"rate limited", &HTTPError{Status: 429}, ClassRetryable},
		{"server error", &HTTPError{Status: 500}, ClassRetryable},
		{"bad gateway", &HTTPError{Status: 502}, ClassRetryable},
		{"unauthorized", &HTTPError{Status: 401}, ClassTerminal},
		{"not found", &HTTPError{Status: 404}, ClassTerminal},
		{"unprocessable", &HTTPError{Status: 422}, ClassTerminal},
		{"transport failure", errors.New("connection reset"), ClassRetryable},
		{"context cancelled", context.Canceled, ClassTerminal},
		{"deadline exceeded", context.DeadlineExceeded, ClassTerminal},
		{"provider terminal", connector.ErrProviderTerminal, ClassTerminal},
		{"bad configuration", connector.ErrConfiguration, ClassTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClassify(tt.err))
		})
	}
}

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	e, delays := newTestExecutor(ExecutorConfig{MaxAttempts: 3, BaseDelay: time.Second})

	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestExecute_RetriesUntilSuccess(t *testing.T) {
	e, delays := newTestExecutor(ExecutorConfig{MaxAttempts: 4, BaseDelay: time.Second})

	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPError{Status: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *delays, 2)
}

func TestExecute_ExponentialBackoff(t *testing.T) {
	e, delays := newTestExecutor(ExecutorConfig{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond})

	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		return &HTTPError{Status: 500}
	})

	require.Error(t, err)
	// base * 2^(attempt-1), no jitter configured
	require.Len(t, *delays, 3)
	assert.Equal(t, 100*time.Millisecond, (*delays)[0])
	assert.Equal(t, 200*time.Millisecond, (*delays)[1])
	assert.Equal(t, 400*time.Millisecond, (*delays)[2])
}

func TestExecute_JitterBounded(t *testing.T) {
	e, delays := newTestExecutor(ExecutorConfig{
		MaxAttempts: 2,
		BaseDelay:   100 * time.Millisecond,
		MaxJitter:   50 * time.Millisecond,
	})

	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		return &HTTPError{Status: 500}
	})

	require.Error(t, err)
	require.Len(t, *delays, 1)
	assert.GreaterOrEqual(t, (*delays)[0], 100*time.Millisecond)
	assert.Less(t, (*delays)[0], 150*time.Millisecond)
}

func TestExecute_TerminalFailsImmediately(t *testing.T) {
	e, delays := newTestExecutor(ExecutorConfig{MaxAttempts: 5, BaseDelay: time.Second})

	calls := 0
	cause := &HTTPError{Status: 401}
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 401, httpErr.Status)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
}

func TestExecute_ExhaustionWrapsLastCause(t *testing.T) {
	e, _ := newTestExecutor(ExecutorConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})

	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return &HTTPError{Status: 429}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 429, httpErr.Status)
}

func TestExecute_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewExecutor(ExecutorConfig{MaxAttempts: 3, BaseDelay: time.Second}, nil, nil).
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		})

	calls := 0
	err := e.Execute(ctx, "op", func(ctx context.Context) error {
		calls++
		return &HTTPError{Status: 500}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteResult_ReturnsValue(t *testing.T) {
	e, _ := newTestExecutor(ExecutorConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})

	calls := 0
	got, err := ExecuteResult(context.Background(), e, "op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", &HTTPError{Status: 503}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestExecutorConfig_Validate(t *testing.T) {
	c := ExecutorConfig{}
	require.NoError(t, c.Validate())
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, time.Second, c.BaseDelay)
}
