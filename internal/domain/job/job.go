package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound       = errors.New("job: not found")
	ErrInvalidTransition = errors.New("job: invalid status transition")
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Type partitions sync work; each type has its own queue and cadence
type Type string

const (
	TypeProductSync     Type = "product_sync"
	TypeInventorySync   Type = "inventory_sync"
	TypeOrderSync       Type = "order_sync"
	TypeFulfillmentSync Type = "fulfillment_sync"
	TypeReturnSync      Type = "return_sync"
	TypeCleanup         Type = "cleanup"
)

// Types lists all job types in scheduling order
func Types() []Type {
	return []Type{
		TypeProductSync,
		TypeInventorySync,
		TypeOrderSync,
		TypeFulfillmentSync,
		TypeReturnSync,
		TypeCleanup,
	}
}

// IsValid returns true if the type is a known job type
func (t Type) IsValid() bool {
	switch t {
	case TypeProductSync, TypeInventorySync, TypeOrderSync,
		TypeFulfillmentSync, TypeReturnSync, TypeCleanup:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ---------------------------------------------------------------------------
// Job
// ---------------------------------------------------------------------------

// Job is one scheduled unit of sync work for one store. The dedupe key is
// stable across scheduler restarts within a tick so concurrent schedulers
// cannot enqueue the same work twice.
type Job struct {
	ID        uuid.UUID
	StoreID   uuid.UUID
	Type      Type
	Status    Status
	Attempt   int
	LastError string

	// StartedAt doubles as the watermark candidate: on success the store's
	// LastSyncedAt advances to this, not to the newest record's timestamp.
	EnqueuedAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// New creates a pending job for the given store and type
func New(storeID uuid.UUID, t Type) *Job {
	return &Job{
		ID:         uuid.New(),
		StoreID:    storeID,
		Type:       t,
		Status:     StatusPending,
		EnqueuedAt: time.Now().UTC(),
	}
}

// DedupeKey identifies equivalent work within one scheduler tick
func (j *Job) DedupeKey(tick time.Time) string {
	return fmt.Sprintf("%s:%s:%d", j.StoreID, j.Type, tick.UTC().Unix())
}

// Start transitions the job to running and records the start time
func (j *Job) Start() error {
	if j.Status != StatusPending {
		return fmt.Errorf("%w: %s -> running", ErrInvalidTransition, j.Status)
	}
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.Attempt++
	return nil
}

// Complete transitions the job to completed
func (j *Job) Complete() error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, j.Status)
	}
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.CompletedAt = &now
	return nil
}

// Fail transitions the job to failed with the cause recorded
func (j *Job) Fail(cause error) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, j.Status)
	}
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.CompletedAt = &now
	if cause != nil {
		j.LastError = cause.Error()
	}
	return nil
}

// ShouldRetry reports whether a failed job has attempts left
func (j *Job) ShouldRetry(maxRetries int) bool {
	return j.Status == StatusFailed && j.Attempt <= maxRetries
}

// RetryDelay computes the wait before the next attempt: delay * 2^attempt
func (j *Job) RetryDelay(base time.Duration) time.Duration {
	return base * time.Duration(1<<j.Attempt)
}

// ScheduleRetry resets a failed job to pending for another attempt,
// preserving the attempt counter
func (j *Job) ScheduleRetry() error {
	if j.Status != StatusFailed {
		return fmt.Errorf("%w: %s -> pending", ErrInvalidTransition, j.Status)
	}
	j.Status = StatusPending
	j.StartedAt = nil
	j.CompletedAt = nil
	return nil
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Repository persists job records for monitoring and cleanup
type Repository interface {
	// Save inserts or updates the job record
	Save(ctx context.Context, j *Job) error
	// Recent returns the newest job records, newest first
	Recent(ctx context.Context, limit int) ([]Job, error)
	// PruneOlderThan deletes finished job records older than cutoff and
	// returns how many were removed
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// IdempotencyStore claims dedupe keys so equivalent work enqueues at most
// once per tick, even with concurrent schedulers
type IdempotencyStore interface {
	// Claim atomically claims the key for ttl; false means another
	// scheduler already claimed it
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
