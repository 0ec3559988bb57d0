package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/trade"
)

// OrderModel is the persistence model for the Order domain entity.
// external_id is unique per store; children live in their own tables.
type OrderModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	StoreID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_orders_store_external,priority:1;index:idx_orders_store,priority:1"`
	Platform          string          `gorm:"type:varchar(20);not null"`
	ExternalID        string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_orders_store_external,priority:2"`
	Status            string          `gorm:"type:varchar(20);not null"`
	FulfillmentStatus string          `gorm:"type:varchar(20);not null"`
	PaymentStatus     string          `gorm:"type:varchar(20);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	Subtotal          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Tax               decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Shipping          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Total             decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	OrderedAt         time.Time       `gorm:"not null;index:idx_orders_ordered_at"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order entity
func (m *OrderModel) ToDomain() *trade.Order {
	return &trade.Order{
		ID:                m.ID,
		StoreID:           m.StoreID,
		Platform:          m.Platform,
		ExternalID:        m.ExternalID,
		Status:            trade.OrderStatus(m.Status),
		FulfillmentStatus: trade.FulfillmentStatus(m.FulfillmentStatus),
		PaymentStatus:     trade.PaymentStatus(m.PaymentStatus),
		Currency:          m.Currency,
		Subtotal:          m.Subtotal,
		Tax:               m.Tax,
		Shipping:          m.Shipping,
		Total:             m.Total,
		OrderedAt:         m.OrderedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Order entity
func (m *OrderModel) FromDomain(o *trade.Order) {
	m.ID = o.ID
	m.StoreID = o.StoreID
	m.Platform = o.Platform
	m.ExternalID = o.ExternalID
	m.Status = string(o.Status)
	m.FulfillmentStatus = string(o.FulfillmentStatus)
	m.PaymentStatus = string(o.PaymentStatus)
	m.Currency = o.Currency
	m.Subtotal = o.Subtotal
	m.Tax = o.Tax
	m.Shipping = o.Shipping
	m.Total = o.Total
	m.OrderedAt = o.OrderedAt
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.UpdatedAt
}

// OrderModelFromDomain creates a new persistence model from a domain entity
func OrderModelFromDomain(o *trade.Order) *OrderModel {
	m := &OrderModel{}
	m.FromDomain(o)
	return m
}

// OrderItemModel is the persistence model for the OrderItem domain entity.
// product_id is nullable by design: a marketplace line may reference a
// listing that was never synced into the catalog.
type OrderItemModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_order_items_order_sku,priority:1"`
	ProductID         *uuid.UUID      `gorm:"type:uuid;index:idx_order_items_product"`
	SKU               string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_order_items_order_sku,priority:2"`
	Quantity          int64           `gorm:"not null"`
	FulfilledQuantity int64           `gorm:"not null;default:0"`
	RefundedQuantity  int64           `gorm:"not null;default:0"`
	Price             decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Total             decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the persistence model to a domain OrderItem entity
func (m *OrderItemModel) ToDomain() *trade.OrderItem {
	return &trade.OrderItem{
		ID:                m.ID,
		OrderID:           m.OrderID,
		ProductID:         m.ProductID,
		SKU:               m.SKU,
		Quantity:          m.Quantity,
		FulfilledQuantity: m.FulfilledQuantity,
		RefundedQuantity:  m.RefundedQuantity,
		Price:             m.Price,
		Total:             m.Total,
	}
}

// FromDomain populates the persistence model from a domain OrderItem entity
func (m *OrderItemModel) FromDomain(i *trade.OrderItem) {
	m.ID = i.ID
	m.OrderID = i.OrderID
	m.ProductID = i.ProductID
	m.SKU = i.SKU
	m.Quantity = i.Quantity
	m.FulfilledQuantity = i.FulfilledQuantity
	m.RefundedQuantity = i.RefundedQuantity
	m.Price = i.Price
	m.Total = i.Total
}

// OrderItemModelFromDomain creates a new persistence model from a domain entity
func OrderItemModelFromDomain(i *trade.OrderItem) *OrderItemModel {
	m := &OrderItemModel{}
	m.FromDomain(i)
	return m
}

// FulfillmentModel is the persistence model for the Fulfillment domain entity
type FulfillmentModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_fulfillments_order_external,priority:1"`
	ExternalID     string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_fulfillments_order_external,priority:2"`
	Carrier        string    `gorm:"type:varchar(100)"`
	TrackingNumber string    `gorm:"type:varchar(100)"`
	Status         string    `gorm:"type:varchar(20);not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FulfillmentModel) TableName() string {
	return "fulfillments"
}

// ToDomain converts the persistence model to a domain Fulfillment entity
func (m *FulfillmentModel) ToDomain() *trade.Fulfillment {
	return &trade.Fulfillment{
		ID:             m.ID,
		OrderID:        m.OrderID,
		ExternalID:     m.ExternalID,
		Carrier:        m.Carrier,
		TrackingNumber: m.TrackingNumber,
		Status:         trade.FulfillmentStatus(m.Status),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Fulfillment entity
func (m *FulfillmentModel) FromDomain(f *trade.Fulfillment) {
	m.ID = f.ID
	m.OrderID = f.OrderID
	m.ExternalID = f.ExternalID
	m.Carrier = f.Carrier
	m.TrackingNumber = f.TrackingNumber
	m.Status = string(f.Status)
	m.CreatedAt = f.CreatedAt
	m.UpdatedAt = f.UpdatedAt
}

// FulfillmentModelFromDomain creates a new persistence model from a domain entity
func FulfillmentModelFromDomain(f *trade.Fulfillment) *FulfillmentModel {
	m := &FulfillmentModel{}
	m.FromDomain(f)
	return m
}

// ReturnModel is the persistence model for the Return domain entity.
// order_id is NOT NULL: a return that cannot be joined to an order is
// dropped during sync, never written with a placeholder.
type ReturnModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	StoreID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_returns_store_external,priority:1"`
	OrderID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_returns_order"`
	ExternalID   string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_returns_store_external,priority:2"`
	RefundAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency     string          `gorm:"type:varchar(3);not null"`
	Status       string          `gorm:"type:varchar(20);not null"`
	RequestedAt  time.Time       `gorm:"not null"`
	CreatedAt    time.Time       `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReturnModel) TableName() string {
	return "returns"
}

// ToDomain converts the persistence model to a domain Return entity
func (m *ReturnModel) ToDomain() *trade.Return {
	return &trade.Return{
		ID:           m.ID,
		StoreID:      m.StoreID,
		OrderID:      m.OrderID,
		ExternalID:   m.ExternalID,
		RefundAmount: m.RefundAmount,
		Currency:     m.Currency,
		Status:       trade.ReturnStatus(m.Status),
		RequestedAt:  m.RequestedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Return entity
func (m *ReturnModel) FromDomain(r *trade.Return) {
	m.ID = r.ID
	m.StoreID = r.StoreID
	m.OrderID = r.OrderID
	m.ExternalID = r.ExternalID
	m.RefundAmount = r.RefundAmount
	m.Currency = r.Currency
	m.Status = string(r.Status)
	m.RequestedAt = r.RequestedAt
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}

// ReturnModelFromDomain creates a new persistence model from a domain entity
func ReturnModelFromDomain(r *trade.Return) *ReturnModel {
	m := &ReturnModel{}
	m.FromDomain(r)
	return m
}
