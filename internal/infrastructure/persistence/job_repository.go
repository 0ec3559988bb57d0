package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/channelsync/backend/internal/domain/job"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormJobRepository implements job.Repository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// Save inserts the job record or updates it in place on id conflict
func (r *GormJobRepository) Save(ctx context.Context, j *job.Job) error {
	m := models.SyncJobModelFromDomain(j)
	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "attempt", "last_error", "started_at", "completed_at",
		}),
	}
	return r.db.WithContext(ctx).Clauses(conflict).Create(m).Error
}

// Recent returns the newest job records, newest first
func (r *GormJobRepository) Recent(ctx context.Context, limit int) ([]job.Job, error) {
	var rows []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Order("enqueued_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	jobs := make([]job.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, *rows[i].ToDomain())
	}
	return jobs, nil
}

// PruneOlderThan deletes finished job records enqueued before cutoff.
// Pending and running rows are never pruned regardless of age.
func (r *GormJobRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("enqueued_at < ? AND status IN ?", cutoff,
			[]string{string(job.StatusCompleted), string(job.StatusFailed)}).
		Delete(&models.SyncJobModel{})
	return result.RowsAffected, result.Error
}

var _ job.Repository = (*GormJobRepository)(nil)
