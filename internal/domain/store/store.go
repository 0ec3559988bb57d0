package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/connector"
)

var (
	ErrStoreNotFound       = errors.New("store: not found")
	ErrCredentialsNotFound = errors.New("store: credentials not found")
)

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// AuthStatus reflects the state of a store's marketplace authorization
type AuthStatus string

const (
	AuthStatusActive  AuthStatus = "active"
	AuthStatusExpired AuthStatus = "expired"
	AuthStatusRevoked AuthStatus = "revoked"
)

// Store is the unit of tenancy. Every canonical row carries a StoreID and
// no lock is ever shared across stores; two stores' jobs may run fully
// concurrently.
type Store struct {
	ID         uuid.UUID
	Name       string
	Platform   connector.Platform
	Domain     string
	AuthStatus AuthStatus

	// Health state, overwritten on every job completion or failure
	Healthy       bool
	HealthMessage string
	// LastSyncedAt is the watermark used as `since` for the next
	// incremental sync. Advanced to the job start time on success, not to
	// the newest record's timestamp, to tolerate clock skew.
	LastSyncedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ---------------------------------------------------------------------------
// Alert
// ---------------------------------------------------------------------------

// AlertSeverity ranks alerts for the monitoring dashboard
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertType categorizes engine failures
type AlertType string

const (
	AlertTypeSyncFailed     AlertType = "sync_failed"
	AlertTypeAuthFailed     AlertType = "auth_failed"
	AlertTypeWebhookInvalid AlertType = "webhook_invalid"
)

// Alert is a write-only failure record consumed by external monitoring.
// StoreID is nil for failures not attributable to a single store.
type Alert struct {
	ID        uuid.UUID
	StoreID   *uuid.UUID
	Type      AlertType
	Severity  AlertSeverity
	Message   string
	CreatedAt time.Time
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Repository is the persistence port for stores and their credentials.
// Credential payloads are opaque, already decrypted structured objects;
// encryption at rest belongs to the credential subsystem.
type Repository interface {
	// FindByID returns the store or ErrStoreNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*Store, error)
	// ActiveStores enumerates stores with auth_status=active and a
	// non-empty decryptable credential payload
	ActiveStores(ctx context.Context) ([]Store, error)
	// GetCredentials returns the decrypted credential payload for the store
	GetCredentials(ctx context.Context, storeID uuid.UUID) (connector.Credentials, error)
	// UpdateCredentials replaces the credential payload
	UpdateCredentials(ctx context.Context, storeID uuid.UUID, creds connector.Credentials) error
	// UpdateHealth overwrites the store's health state and, when
	// syncedAt is non-nil, advances the watermark
	UpdateHealth(ctx context.Context, storeID uuid.UUID, healthy bool, message string, syncedAt *time.Time) error
}

// AlertSink records alerts fire-and-forget; callers log sink failures and
// never escalate them
type AlertSink interface {
	CreateAlert(ctx context.Context, alert Alert) error
}

// Monitor is the read surface for the health endpoint and the dashboard
// collaborator
type Monitor interface {
	// AllStores returns every store regardless of auth status
	AllStores(ctx context.Context) ([]Store, error)
	// RecentAlerts returns the newest alerts, newest first
	RecentAlerts(ctx context.Context, limit int) ([]Alert, error)
}
