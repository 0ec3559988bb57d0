package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	appsync "github.com/channelsync/backend/internal/application/sync"
	"github.com/channelsync/backend/internal/domain/job"
	"github.com/channelsync/backend/internal/domain/store"
	"github.com/channelsync/backend/internal/infrastructure/logger"
)

// SyncExecutor adapts the sync application service to the pool's Executor
// port
type SyncExecutor struct {
	service *appsync.Service
}

// NewSyncExecutor creates a sync executor
func NewSyncExecutor(service *appsync.Service) *SyncExecutor {
	return &SyncExecutor{service: service}
}

// Execute runs one sync pass and logs its outcome
func (e *SyncExecutor) Execute(ctx context.Context, st *store.Store, jobType job.Type, since *time.Time) error {
	result, err := e.service.Run(ctx, st, jobType, since)
	if err != nil {
		return err
	}
	logger.L(ctx).Debug("sync pass finished",
		zap.String("type", string(jobType)),
		zap.Int("fetched", result.Fetched),
		zap.Int("written", result.Written),
		zap.Int("skipped", result.Skipped),
		zap.Int("dropped", result.Dropped),
	)
	return nil
}

var _ Executor = (*SyncExecutor)(nil)
