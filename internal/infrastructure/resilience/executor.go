package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/connector"
)

// ErrRetriesExhausted wraps the last cause after the final attempt fails
var ErrRetriesExhausted = errors.New("resilience: retries exhausted")

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// HTTPError carries a provider HTTP status for classification. A transport
// failure with no status at all is represented by the raw error, not by
// this type.
type HTTPError struct {
	Status int
	Body   string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("resilience: HTTP %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("resilience: HTTP %d", e.Status)
}

// Classification is the retry decision for a failure
type Classification int

const (
	// ClassRetryable failures are retried with backoff
	ClassRetryable Classification = iota
	// ClassTerminal failures propagate immediately
	ClassTerminal
)

// ClassifyFunc maps a failure to a retry decision
type ClassifyFunc func(error) Classification

// DefaultClassify retries 429, any 5xx, and transport-level errors with no
// status code. Everything else, including context cancellation, is terminal.
func DefaultClassify(err error) Classification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTerminal
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Status == http.StatusTooManyRequests || httpErr.Status >= 500 {
			return ClassRetryable
		}
		return ClassTerminal
	}
	if errors.Is(err, connector.ErrProviderTerminal) || errors.Is(err, connector.ErrConfiguration) {
		return ClassTerminal
	}
	// No status code: transport-level failure
	return ClassRetryable
}

// ---------------------------------------------------------------------------
// Executor
// ---------------------------------------------------------------------------

// ExecutorConfig holds retry and backoff settings. Base delays are
// connector-specific; defaults match the slowest common denominator.
type ExecutorConfig struct {
	// MaxAttempts is the total number of tries including the first
	MaxAttempts int
	// BaseDelay seeds the exponential backoff: base * 2^(attempt-1)
	BaseDelay time.Duration
	// MaxJitter is the upper bound of the uniform jitter added per delay
	MaxJitter time.Duration
}

// DefaultExecutorConfig returns conservative defaults
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxJitter:   500 * time.Millisecond,
	}
}

// Validate applies defaults for unset fields
func (c *ExecutorConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxJitter < 0 {
		c.MaxJitter = 0
	}
	return nil
}

// Executor wraps outbound calls with classification-aware retry and
// exponential backoff with jitter. It holds no mutable state and is safe
// for concurrent use across connectors.
type Executor struct {
	config   ExecutorConfig
	classify ClassifyFunc
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor with the given configuration. A nil
// classify falls back to DefaultClassify.
func NewExecutor(config ExecutorConfig, classify ClassifyFunc, logger *zap.Logger) *Executor {
	_ = config.Validate()
	if classify == nil {
		classify = DefaultClassify
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		config:   config,
		classify: classify,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// WithSleep overrides the backoff wait, used by tests to avoid real delays
func (e *Executor) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Executor {
	clone := *e
	clone.sleep = sleep
	return &clone
}

// Execute runs op, retrying retryable failures with backoff. The label
// appears in the per-attempt log line. Terminal failures propagate
// immediately; exhaustion returns ErrRetriesExhausted wrapping the last
// cause.
func (e *Executor) Execute(ctx context.Context, label string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		class := e.classify(err)
		if class == ClassTerminal {
			e.logger.Debug("call failed terminally",
				zap.String("operation", label),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}

		if attempt == e.config.MaxAttempts {
			break
		}

		delay := e.backoff(attempt)
		e.logger.Warn("call failed, retrying",
			zap.String("operation", label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.config.MaxAttempts),
			zap.Duration("delay", delay),
			zap.String("classification", "retryable"),
			zap.Error(err),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	e.logger.Error("call failed after all attempts",
		zap.String("operation", label),
		zap.Int("attempts", e.config.MaxAttempts),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%w: %s: %w", ErrRetriesExhausted, label, lastErr)
}

// backoff computes base * 2^(attempt-1) + uniform jitter
func (e *Executor) backoff(attempt int) time.Duration {
	delay := e.config.BaseDelay * time.Duration(1<<(attempt-1))
	if e.config.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(e.config.MaxJitter)))
	}
	return delay
}

// ExecuteResult is the value-returning form of Executor.Execute
func ExecuteResult[T any](ctx context.Context, e *Executor, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, label, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// sleepContext waits for d or until the context is cancelled
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
