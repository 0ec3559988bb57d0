package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/job"
)

// SyncJobModel is the persistence model for the Job domain entity. Job rows
// exist for monitoring and are pruned by the cleanup job.
type SyncJobModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	StoreID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_sync_jobs_store"`
	Type        string     `gorm:"type:varchar(30);not null;index:idx_sync_jobs_type"`
	Status      string     `gorm:"type:varchar(20);not null;index:idx_sync_jobs_status"`
	Attempt     int        `gorm:"not null;default:0"`
	LastError   string     `gorm:"type:text"`
	EnqueuedAt  time.Time  `gorm:"not null;index:idx_sync_jobs_enqueued_at"`
	StartedAt   *time.Time `gorm:""`
	CompletedAt *time.Time `gorm:""`
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain Job entity
func (m *SyncJobModel) ToDomain() *job.Job {
	return &job.Job{
		ID:          m.ID,
		StoreID:     m.StoreID,
		Type:        job.Type(m.Type),
		Status:      job.Status(m.Status),
		Attempt:     m.Attempt,
		LastError:   m.LastError,
		EnqueuedAt:  m.EnqueuedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain Job entity
func (m *SyncJobModel) FromDomain(j *job.Job) {
	m.ID = j.ID
	m.StoreID = j.StoreID
	m.Type = string(j.Type)
	m.Status = string(j.Status)
	m.Attempt = j.Attempt
	m.LastError = j.LastError
	m.EnqueuedAt = j.EnqueuedAt
	m.StartedAt = j.StartedAt
	m.CompletedAt = j.CompletedAt
}

// SyncJobModelFromDomain creates a new persistence model from a domain entity
func SyncJobModelFromDomain(j *job.Job) *SyncJobModel {
	m := &SyncJobModel{}
	m.FromDomain(j)
	return m
}
