package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrBatchUpsertFailed wraps the first batch failure under the fail-fast policy
var ErrBatchUpsertFailed = errors.New("persistence: batch upsert failed")

// FailurePolicy decides how a terminally failed batch affects the rest of
// the write
type FailurePolicy int

const (
	// FailFast aborts the whole write on the first failed batch. Used for
	// order graphs where children must not outrun their parents.
	FailFast FailurePolicy = iota
	// TolerateBatchFailure records the failure and keeps writing the
	// remaining batches. Used for independent rows like products.
	TolerateBatchFailure
)

// UpserterConfig holds batch write settings
type UpserterConfig struct {
	// BatchSize is the number of rows per INSERT ... ON CONFLICT statement
	BatchSize int
	// Concurrency bounds how many batches are in flight at once
	Concurrency int
	// MaxRetries is the total attempts per batch including the first
	MaxRetries int
	// RetryDelay seeds the per-batch backoff: delay * 2^(attempt-1)
	RetryDelay time.Duration
}

// Validate applies defaults for unset fields
func (c *UpserterConfig) Validate() error {
	if c.BatchSize <= 0 {
		c.BatchSize = 300
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return nil
}

// UpsertReport summarizes one batched write
type UpsertReport struct {
	Total         int
	Written       int
	FailedBatches int
	Errors        []error
}

// BatchUpserter chunks canonical rows into bounded concurrent upsert
// statements. Batches of one entity type never interleave with another
// type; ordering between types is the caller's responsibility.
type BatchUpserter struct {
	db     *gorm.DB
	config UpserterConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewBatchUpserter creates a batch upserter
func NewBatchUpserter(db *gorm.DB, config UpserterConfig, logger *zap.Logger) *BatchUpserter {
	_ = config.Validate()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchUpserter{db: db, config: config, logger: logger, sleep: sleepContext}
}

// WithSleep overrides the retry wait, used by tests
func (u *BatchUpserter) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *BatchUpserter {
	clone := *u
	clone.sleep = sleep
	return &clone
}

// UpsertRows writes rows in batches with bounded concurrency. Each batch is
// one INSERT ... ON CONFLICT statement, retried independently on failure.
// Under FailFast the first exhausted batch cancels the remaining ones and
// the error is returned; under TolerateBatchFailure failures are collected
// in the report and the write continues.
func UpsertRows[T any](ctx context.Context, u *BatchUpserter, label string, rows []T, conflict clause.OnConflict, policy FailurePolicy) (*UpsertReport, error) {
	report := &UpsertReport{Total: len(rows)}
	if len(rows) == 0 {
		return report, nil
	}

	batches := chunkRows(rows, u.config.BatchSize)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, u.config.Concurrency)
	)

	for i, batch := range batches {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(index int, batch []T) {
				defer wg.Done()
				defer func() { <-sem }()

				err := writeBatch(ctx, u, label, index, batch, conflict)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.FailedBatches++
					report.Errors = append(report.Errors, err)
					if policy == FailFast {
						cancel()
					}
					return
				}
				report.Written += len(batch)
			}(i, batch)
		}
	}
	wg.Wait()

	if policy == FailFast && len(report.Errors) > 0 {
		return report, fmt.Errorf("%w: %s: %w", ErrBatchUpsertFailed, label, report.Errors[0])
	}
	return report, nil
}

// writeBatch executes one batch statement, retrying transient failures with
// exponential backoff
func writeBatch[T any](ctx context.Context, u *BatchUpserter, label string, index int, batch []T, conflict clause.OnConflict) error {
	var lastErr error
	for attempt := 1; attempt <= u.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := u.db.WithContext(ctx).Clauses(conflict).Create(&batch).Error
		if err == nil {
			u.logger.Debug("batch written",
				zap.String("entity", label),
				zap.Int("batch", index),
				zap.Int("rows", len(batch)),
			)
			return nil
		}
		lastErr = err

		if attempt == u.config.MaxRetries {
			break
		}
		delay := u.config.RetryDelay * time.Duration(1<<(attempt-1))
		u.logger.Warn("batch write failed, retrying",
			zap.String("entity", label),
			zap.Int("batch", index),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := u.sleep(ctx, delay); err != nil {
			return err
		}
	}

	u.logger.Error("batch write failed after all attempts",
		zap.String("entity", label),
		zap.Int("batch", index),
		zap.Int("rows", len(batch)),
		zap.Error(lastErr),
	)
	return lastErr
}

// chunkRows splits rows into slices of at most size elements
func chunkRows[T any](rows []T, size int) [][]T {
	var batches [][]T
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, rows[start:end])
	}
	return batches
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
