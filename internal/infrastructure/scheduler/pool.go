package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/job"
	"github.com/channelsync/backend/internal/domain/store"
	"github.com/channelsync/backend/internal/infrastructure/config"
	"github.com/channelsync/backend/internal/infrastructure/logger"
)

// Executor runs one sync job for one store. Implementations must honor
// context cancellation.
type Executor interface {
	Execute(ctx context.Context, st *store.Store, jobType job.Type, since *time.Time) error
}

// Pool is the worker pool draining the job queue. Success advances the
// store's watermark to the job start time; exhausted failures mark the store
// unhealthy and raise an alert.
type Pool struct {
	config   config.SyncConfig
	executor Executor
	stores   store.Repository
	alerts   store.AlertSink
	jobs     job.Repository
	logger   *zap.Logger

	queue     chan *job.Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// Completed jobs kept in memory for the monitoring endpoint
	historyMu  sync.RWMutex
	history    []*job.Job
	maxHistory int
}

// NewPool creates a worker pool
func NewPool(
	cfg config.SyncConfig,
	executor Executor,
	stores store.Repository,
	alerts store.AlertSink,
	jobs job.Repository,
	log *zap.Logger,
) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		config:     cfg,
		executor:   executor,
		stores:     stores,
		alerts:     alerts,
		jobs:       jobs,
		logger:     log,
		queue:      make(chan *job.Job, 100),
		history:    make([]*job.Job, 0, 100),
		maxHistory: 100,
	}
}

// Start launches the workers
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("sync worker pool started",
		zap.Int("workers", p.config.WorkerCount),
		zap.Duration("job_timeout", p.config.JobTimeout),
	)
	return nil
}

// Stop drains the pool, waiting for in-flight jobs up to the context deadline
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	// Closed under the same lock Submit sends under, so a retry timer
	// firing mid-shutdown cannot send on the closed queue.
	close(p.queue)
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("sync worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("sync worker pool stop timed out")
		return ctx.Err()
	}
}

// Submit queues a job for execution. The send happens under the mutex so it
// is ordered against Stop closing the queue.
func (p *Pool) Submit(j *job.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case p.queue <- j:
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.processJob(ctx, j, workerID)
		}
	}
}

func (p *Pool) processJob(ctx context.Context, j *job.Job, workerID int) {
	ctx, log := logger.WithJobID(ctx, p.logger, j.ID.String())
	ctx, log = logger.WithStoreID(ctx, log, j.StoreID.String())

	st, err := p.stores.FindByID(ctx, j.StoreID)
	if err != nil {
		p.abandonJob(ctx, j, err)
		return
	}
	since := st.LastSyncedAt

	if err := j.Start(); err != nil {
		log.Error("job in unexpected state", zap.Error(err))
		return
	}
	p.saveJob(ctx, j)

	log.Info("processing sync job",
		zap.Int("worker_id", workerID),
		zap.String("type", string(j.Type)),
		zap.Int("attempt", j.Attempt),
		zap.Timep("since", since),
	)

	jobCtx := ctx
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	if err := p.executor.Execute(jobCtx, st, j.Type, since); err != nil {
		p.handleFailure(ctx, j, st, err)
		return
	}

	startedAt := j.StartedAt
	if err := j.Complete(); err != nil {
		log.Error("job completion rejected", zap.Error(err))
	}
	p.saveJob(ctx, j)
	p.addToHistory(j)

	// The watermark moves to when this job started, not to the newest
	// record's timestamp, so clock skew between marketplaces cannot open
	// a gap between consecutive syncs.
	if err := p.stores.UpdateHealth(ctx, st.ID, true, "", startedAt); err != nil {
		log.Warn("failed to update store health", zap.Error(err))
	}
	log.Info("sync job completed", zap.String("type", string(j.Type)))
}

func (p *Pool) handleFailure(ctx context.Context, j *job.Job, st *store.Store, cause error) {
	log := logger.L(ctx)

	if err := j.Fail(cause); err != nil {
		log.Error("job failure rejected", zap.Error(err))
	}
	p.saveJob(ctx, j)
	log.Error("sync job failed",
		zap.String("type", string(j.Type)),
		zap.Int("attempt", j.Attempt),
		zap.Error(cause),
	)

	if err := p.stores.UpdateHealth(ctx, st.ID, false, cause.Error(), nil); err != nil {
		log.Warn("failed to update store health", zap.Error(err))
	}

	// Configuration errors cannot heal on their own, so retrying them only
	// burns provider quota
	retryable := !errors.Is(cause, connector.ErrConfiguration)
	if retryable && j.ShouldRetry(p.config.MaxRetries) {
		delay := j.RetryDelay(p.config.RetryDelay)
		if err := j.ScheduleRetry(); err != nil {
			log.Error("job retry rejected", zap.Error(err))
			return
		}
		p.saveJob(ctx, j)
		log.Info("sync job scheduled for retry",
			zap.Int("attempt", j.Attempt),
			zap.Duration("delay", delay),
		)
		p.requeueAfter(ctx, j, delay)
		return
	}

	p.addToHistory(j)
	p.raiseAlert(ctx, st, j, cause)
}

// requeueAfter re-submits the job once the backoff elapses. It runs inside a
// worker goroutine, so the WaitGroup counter is still positive when the timer
// goroutine is added and Stop's Wait covers it.
func (p *Pool) requeueAfter(ctx context.Context, j *job.Job, delay time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			if err := p.Submit(j); err != nil {
				p.logger.Warn("failed to requeue job for retry",
					zap.String("job_id", j.ID.String()),
					zap.Error(err),
				)
			}
		}
	}()
}

// abandonJob records a job that could not even be started
func (p *Pool) abandonJob(ctx context.Context, j *job.Job, cause error) {
	log := logger.L(ctx)
	if err := j.Start(); err == nil {
		_ = j.Fail(cause)
	}
	p.saveJob(ctx, j)
	log.Error("sync job abandoned", zap.Error(cause))
}

func (p *Pool) raiseAlert(ctx context.Context, st *store.Store, j *job.Job, cause error) {
	alertType := store.AlertTypeSyncFailed
	if errors.Is(cause, connector.ErrConfiguration) {
		alertType = store.AlertTypeAuthFailed
	}
	storeID := st.ID
	alert := store.Alert{
		StoreID:  &storeID,
		Type:     alertType,
		Severity: store.AlertSeverityCritical,
		Message:  string(j.Type) + " failed: " + cause.Error(),
	}
	if err := p.alerts.CreateAlert(ctx, alert); err != nil {
		logger.L(ctx).Warn("failed to record alert", zap.Error(err))
	}
}

func (p *Pool) saveJob(ctx context.Context, j *job.Job) {
	if err := p.jobs.Save(ctx, j); err != nil {
		logger.L(ctx).Warn("failed to persist job record", zap.Error(err))
	}
}

func (p *Pool) addToHistory(j *job.Job) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	p.history = append([]*job.Job{j}, p.history...)
	if len(p.history) > p.maxHistory {
		p.history = p.history[:p.maxHistory]
	}
}

// History returns the most recently finished jobs, newest first
func (p *Pool) History(limit int) []*job.Job {
	p.historyMu.RLock()
	defer p.historyMu.RUnlock()

	if limit <= 0 || limit > len(p.history) {
		limit = len(p.history)
	}
	result := make([]*job.Job, limit)
	copy(result, p.history[:limit])
	return result
}
