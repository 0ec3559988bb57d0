package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/job"
	"github.com/channelsync/backend/internal/domain/store"
	"github.com/channelsync/backend/internal/infrastructure/config"
)

// Probe is a liveness check run by the cleanup tick
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Trigger owns the interval ticks. Each tick enumerates schedulable stores
// and enqueues one job per store and type, deduplicated through the
// idempotency store so concurrent trigger instances enqueue the work once.
type Trigger struct {
	config      config.SyncConfig
	pool        *Pool
	stores      store.Repository
	registry    connector.Registry
	idempotency job.IdempotencyStore
	jobs        job.Repository
	alerts      store.AlertSink
	probes      []Probe
	logger      *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewTrigger creates a trigger
func NewTrigger(
	cfg config.SyncConfig,
	pool *Pool,
	stores store.Repository,
	registry connector.Registry,
	idempotency job.IdempotencyStore,
	jobs job.Repository,
	alerts store.AlertSink,
	probes []Probe,
	log *zap.Logger,
) *Trigger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trigger{
		config:      cfg,
		pool:        pool,
		stores:      stores,
		registry:    registry,
		idempotency: idempotency,
		jobs:        jobs,
		alerts:      alerts,
		probes:      probes,
		logger:      log,
	}
}

// intervalFor returns the enqueue cadence per job type
func (t *Trigger) intervalFor(jobType job.Type) time.Duration {
	switch jobType {
	case job.TypeProductSync:
		return t.config.ProductInterval
	case job.TypeInventorySync:
		return t.config.InventoryInterval
	case job.TypeOrderSync:
		return t.config.OrderInterval
	case job.TypeFulfillmentSync:
		return t.config.FulfillmentInterval
	case job.TypeReturnSync:
		return t.config.ReturnInterval
	default:
		return t.config.CleanupInterval
	}
}

// Start launches one tick loop per sync type plus the cleanup loop
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	for _, jobType := range job.Types() {
		if jobType == job.TypeCleanup {
			continue
		}
		t.wg.Add(1)
		go t.tickLoop(ctx, jobType)
	}
	t.wg.Add(1)
	go t.cleanupLoop(ctx)

	t.logger.Info("sync trigger started",
		zap.Duration("order_interval", t.config.OrderInterval),
		zap.Duration("product_interval", t.config.ProductInterval),
		zap.Duration("cleanup_interval", t.config.CleanupInterval),
	)
	return nil
}

// Stop stops all tick loops
func (t *Trigger) Stop() {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	t.logger.Info("sync trigger stopped")
}

func (t *Trigger) tickLoop(ctx context.Context, jobType job.Type) {
	defer t.wg.Done()

	interval := t.intervalFor(jobType)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First tick runs immediately so a fresh deployment does not idle for
	// a full interval
	t.enqueueTick(ctx, jobType, time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			t.enqueueTick(ctx, jobType, tick.UTC())
		}
	}
}

// enqueueTick enqueues one job per schedulable store for the given type
func (t *Trigger) enqueueTick(ctx context.Context, jobType job.Type, tick time.Time) {
	stores, err := t.stores.ActiveStores(ctx)
	if err != nil {
		t.logger.Error("failed to enumerate active stores",
			zap.String("type", string(jobType)),
			zap.Error(err),
		)
		return
	}

	enqueued := 0
	for i := range stores {
		st := stores[i]
		if jobType == job.TypeReturnSync && !t.registry.SupportsReturns(st.Platform) {
			continue
		}

		j := job.New(st.ID, jobType)
		claimed, err := t.idempotency.Claim(ctx, j.DedupeKey(tick), t.intervalFor(jobType))
		if err != nil {
			// Fail open: a dead dedupe store must not stop syncing, the
			// worst case is one duplicate job per tick
			t.logger.Warn("dedupe claim failed, enqueueing anyway",
				zap.String("store_id", st.ID.String()),
				zap.Error(err),
			)
		} else if !claimed {
			continue
		}

		if err := t.jobs.Save(ctx, j); err != nil {
			t.logger.Warn("failed to persist job record",
				zap.String("job_id", j.ID.String()),
				zap.Error(err),
			)
		}
		if err := t.pool.Submit(j); err != nil {
			t.logger.Error("failed to submit job",
				zap.String("store_id", st.ID.String()),
				zap.String("type", string(jobType)),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		t.logger.Debug("tick enqueued jobs",
			zap.String("type", string(jobType)),
			zap.Int("jobs", enqueued),
		)
	}
}

func (t *Trigger) cleanupLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runCleanup(ctx)
		}
	}
}

// runCleanup prunes finished job history and probes the engine's own
// dependencies
func (t *Trigger) runCleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-t.config.CleanupRetention)
	pruned, err := t.jobs.PruneOlderThan(ctx, cutoff)
	if err != nil {
		t.logger.Error("job history prune failed", zap.Error(err))
	} else if pruned > 0 {
		t.logger.Info("pruned finished job records",
			zap.Int64("pruned", pruned),
			zap.Time("cutoff", cutoff),
		)
	}

	for _, probe := range t.probes {
		if err := probe.Check(ctx); err != nil {
			t.logger.Error("liveness probe failed",
				zap.String("probe", probe.Name),
				zap.Error(err),
			)
			alert := store.Alert{
				Type:     store.AlertTypeSyncFailed,
				Severity: store.AlertSeverityCritical,
				Message:  probe.Name + " liveness probe failed: " + err.Error(),
			}
			if alertErr := t.alerts.CreateAlert(ctx, alert); alertErr != nil {
				t.logger.Warn("failed to record probe alert", zap.Error(alertErr))
			}
		}
	}
}
