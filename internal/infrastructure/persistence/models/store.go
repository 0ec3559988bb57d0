package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/store"
)

// StoreModel is the persistence model for the Store domain entity. The
// credential payload is stored as a jsonb column; decryption happens in the
// credential subsystem before the payload reaches this layer.
type StoreModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key"`
	Name            string     `gorm:"type:varchar(255);not null"`
	Platform        string     `gorm:"type:varchar(20);not null;index:idx_stores_platform"`
	Domain          string     `gorm:"type:varchar(255);index:idx_stores_domain"`
	AuthStatus      string     `gorm:"type:varchar(20);not null;default:'active';index:idx_stores_auth_status"`
	CredentialsJSON string     `gorm:"type:jsonb;column:credentials"`
	Healthy         bool       `gorm:"not null;default:true"`
	HealthMessage   string     `gorm:"type:text"`
	LastSyncedAt    *time.Time `gorm:"index"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StoreModel) TableName() string {
	return "stores"
}

// ToDomain converts the persistence model to a domain Store entity
func (m *StoreModel) ToDomain() *store.Store {
	return &store.Store{
		ID:            m.ID,
		Name:          m.Name,
		Platform:      connector.Platform(m.Platform),
		Domain:        m.Domain,
		AuthStatus:    store.AuthStatus(m.AuthStatus),
		Healthy:       m.Healthy,
		HealthMessage: m.HealthMessage,
		LastSyncedAt:  m.LastSyncedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Store entity.
// Credentials are set separately via SetCredentials.
func (m *StoreModel) FromDomain(s *store.Store) {
	m.ID = s.ID
	m.Name = s.Name
	m.Platform = string(s.Platform)
	m.Domain = s.Domain
	m.AuthStatus = string(s.AuthStatus)
	m.Healthy = s.Healthy
	m.HealthMessage = s.HealthMessage
	m.LastSyncedAt = s.LastSyncedAt
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}

// Credentials parses the stored credential payload
func (m *StoreModel) Credentials() (connector.Credentials, error) {
	if m.CredentialsJSON == "" {
		return connector.Credentials{}, nil
	}
	var creds connector.Credentials
	if err := json.Unmarshal([]byte(m.CredentialsJSON), &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// SetCredentials serializes the credential payload
func (m *StoreModel) SetCredentials(creds connector.Credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	m.CredentialsJSON = string(raw)
	return nil
}

// AlertModel is the persistence model for the Alert domain entity. Alerts
// are write-mostly; store_id is nullable for engine-level failures.
type AlertModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key"`
	StoreID   *uuid.UUID `gorm:"type:uuid;index:idx_alerts_store"`
	Type      string     `gorm:"type:varchar(30);not null"`
	Severity  string     `gorm:"type:varchar(10);not null"`
	Message   string     `gorm:"type:text;not null"`
	CreatedAt time.Time  `gorm:"not null;index:idx_alerts_created_at"`
}

// TableName returns the table name for GORM
func (AlertModel) TableName() string {
	return "alerts"
}

// ToDomain converts the persistence model to a domain Alert entity
func (m *AlertModel) ToDomain() *store.Alert {
	return &store.Alert{
		ID:        m.ID,
		StoreID:   m.StoreID,
		Type:      store.AlertType(m.Type),
		Severity:  store.AlertSeverity(m.Severity),
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain Alert entity
func (m *AlertModel) FromDomain(a *store.Alert) {
	m.ID = a.ID
	m.StoreID = a.StoreID
	m.Type = string(a.Type)
	m.Severity = string(a.Severity)
	m.Message = a.Message
	m.CreatedAt = a.CreatedAt
}
