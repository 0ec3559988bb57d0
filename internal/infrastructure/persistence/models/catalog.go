package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/catalog"
)

// ProductModel is the persistence model for the Product domain entity.
// SKU is unique per store; external_id is the marketplace's identifier.
type ProductModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key"`
	StoreID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_products_store_sku,priority:1;index:idx_products_store,priority:1"`
	Platform   string          `gorm:"type:varchar(20);not null"`
	ExternalID string          `gorm:"type:varchar(100);not null;index:idx_products_external"`
	SKU        string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_products_store_sku,priority:2"`
	Title      string          `gorm:"type:varchar(512)"`
	Price      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency   string          `gorm:"type:varchar(3);not null"`
	Status     string          `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time       `gorm:"not null"`
	UpdatedAt  time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product entity
func (m *ProductModel) ToDomain() *catalog.Product {
	return &catalog.Product{
		ID:         m.ID,
		StoreID:    m.StoreID,
		Platform:   m.Platform,
		ExternalID: m.ExternalID,
		SKU:        m.SKU,
		Title:      m.Title,
		Price:      m.Price,
		Currency:   m.Currency,
		Status:     catalog.ProductStatus(m.Status),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Product entity
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.ID = p.ID
	m.StoreID = p.StoreID
	m.Platform = p.Platform
	m.ExternalID = p.ExternalID
	m.SKU = p.SKU
	m.Title = p.Title
	m.Price = p.Price
	m.Currency = p.Currency
	m.Status = string(p.Status)
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// ProductModelFromDomain creates a new persistence model from a domain entity
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	m := &ProductModel{}
	m.FromDomain(p)
	return m
}

// InventoryLevelModel is the persistence model for the InventoryLevel domain
// entity. Quantities are nullable: marketplaces report untracked dimensions
// as absent, and absence must survive the round trip.
type InventoryLevelModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key"`
	StoreID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_store_sku,priority:1"`
	ProductID         uuid.UUID `gorm:"type:uuid;not null;index:idx_inventory_product"`
	SKU               string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_inventory_store_sku,priority:2"`
	PlatformQuantity  *int64    `gorm:""`
	WarehouseQuantity *int64    `gorm:""`
	ReservedQuantity  *int64    `gorm:""`
	InboundQuantity   *int64    `gorm:""`
	Status            *string   `gorm:"type:varchar(20)"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InventoryLevelModel) TableName() string {
	return "inventory_levels"
}

// ToDomain converts the persistence model to a domain InventoryLevel entity
func (m *InventoryLevelModel) ToDomain() *catalog.InventoryLevel {
	level := &catalog.InventoryLevel{
		ID:                m.ID,
		StoreID:           m.StoreID,
		ProductID:         m.ProductID,
		SKU:               m.SKU,
		PlatformQuantity:  m.PlatformQuantity,
		WarehouseQuantity: m.WarehouseQuantity,
		ReservedQuantity:  m.ReservedQuantity,
		InboundQuantity:   m.InboundQuantity,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.Status != nil {
		s := catalog.InventoryStatus(*m.Status)
		level.Status = &s
	}
	return level
}

// FromDomain populates the persistence model from a domain InventoryLevel
func (m *InventoryLevelModel) FromDomain(l *catalog.InventoryLevel) {
	m.ID = l.ID
	m.StoreID = l.StoreID
	m.ProductID = l.ProductID
	m.SKU = l.SKU
	m.PlatformQuantity = l.PlatformQuantity
	m.WarehouseQuantity = l.WarehouseQuantity
	m.ReservedQuantity = l.ReservedQuantity
	m.InboundQuantity = l.InboundQuantity
	m.Status = nil
	if l.Status != nil {
		s := string(*l.Status)
		m.Status = &s
	}
	m.UpdatedAt = l.UpdatedAt
}

// InventoryLevelModelFromDomain creates a new persistence model from a domain entity
func InventoryLevelModelFromDomain(l *catalog.InventoryLevel) *InventoryLevelModel {
	m := &InventoryLevelModel{}
	m.FromDomain(l)
	return m
}
