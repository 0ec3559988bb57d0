package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/store"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormStoreRepository implements store.Repository and store.AlertSink using
// GORM
type GormStoreRepository struct {
	db *gorm.DB
}

// NewGormStoreRepository creates a new GormStoreRepository
func NewGormStoreRepository(db *gorm.DB) *GormStoreRepository {
	return &GormStoreRepository{db: db}
}

// FindByID returns the store or store.ErrStoreNotFound
func (r *GormStoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*store.Store, error) {
	var m models.StoreModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrStoreNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// ActiveStores enumerates stores eligible for scheduling: authorized and
// holding a non-empty credential payload. The payload check happens in Go
// because jsonb emptiness is not expressible portably in SQL.
func (r *GormStoreRepository) ActiveStores(ctx context.Context) ([]store.Store, error) {
	var rows []models.StoreModel
	if err := r.db.WithContext(ctx).
		Where("auth_status = ?", string(store.AuthStatusActive)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	stores := make([]store.Store, 0, len(rows))
	for i := range rows {
		creds, err := rows[i].Credentials()
		if err != nil || len(creds) == 0 {
			continue
		}
		stores = append(stores, *rows[i].ToDomain())
	}
	return stores, nil
}

// GetCredentials returns the credential payload for the store
func (r *GormStoreRepository) GetCredentials(ctx context.Context, storeID uuid.UUID) (connector.Credentials, error) {
	var m models.StoreModel
	if err := r.db.WithContext(ctx).
		Select("id", "credentials").
		First(&m, "id = ?", storeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrStoreNotFound
		}
		return nil, err
	}
	creds, err := m.Credentials()
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, store.ErrCredentialsNotFound
	}
	return creds, nil
}

// UpdateCredentials replaces the credential payload and marks the store
// authorized again
func (r *GormStoreRepository) UpdateCredentials(ctx context.Context, storeID uuid.UUID, creds connector.Credentials) error {
	var m models.StoreModel
	if err := m.SetCredentials(creds); err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&models.StoreModel{}).
		Where("id = ?", storeID).
		Updates(map[string]interface{}{
			"credentials": m.CredentialsJSON,
			"auth_status": string(store.AuthStatusActive),
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrStoreNotFound
	}
	return nil
}

// UpdateHealth overwrites the store's health state. The watermark only
// advances when syncedAt is non-nil, so failed jobs never move it.
func (r *GormStoreRepository) UpdateHealth(ctx context.Context, storeID uuid.UUID, healthy bool, message string, syncedAt *time.Time) error {
	updates := map[string]interface{}{
		"healthy":        healthy,
		"health_message": message,
		"updated_at":     time.Now().UTC(),
	}
	if syncedAt != nil {
		updates["last_synced_at"] = *syncedAt
	}
	result := r.db.WithContext(ctx).
		Model(&models.StoreModel{}).
		Where("id = ?", storeID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrStoreNotFound
	}
	return nil
}

// CreateAlert records a failure alert
func (r *GormStoreRepository) CreateAlert(ctx context.Context, alert store.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	var m models.AlertModel
	m.FromDomain(&alert)
	return r.db.WithContext(ctx).Create(&m).Error
}

// AllStores returns every store for the monitoring surface
func (r *GormStoreRepository) AllStores(ctx context.Context) ([]store.Store, error) {
	var rows []models.StoreModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	stores := make([]store.Store, 0, len(rows))
	for i := range rows {
		stores = append(stores, *rows[i].ToDomain())
	}
	return stores, nil
}

// RecentAlerts returns the newest alerts, newest first
func (r *GormStoreRepository) RecentAlerts(ctx context.Context, limit int) ([]store.Alert, error) {
	var rows []models.AlertModel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	alerts := make([]store.Alert, 0, len(rows))
	for i := range rows {
		alerts = append(alerts, *rows[i].ToDomain())
	}
	return alerts, nil
}

var (
	_ store.Repository = (*GormStoreRepository)(nil)
	_ store.AlertSink  = (*GormStoreRepository)(nil)
	_ store.Monitor    = (*GormStoreRepository)(nil)
)
