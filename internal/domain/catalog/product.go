package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductInvalidSKU     = errors.New("catalog: product SKU is required")
	ErrProductInvalidStoreID = errors.New("catalog: store ID is required")
)

// ---------------------------------------------------------------------------
// ProductStatus
// ---------------------------------------------------------------------------

// ProductStatus represents the lifecycle status of a product.
// Products are never deleted, only transitioned between statuses.
type ProductStatus string

const (
	ProductStatusActive     ProductStatus = "active"
	ProductStatusDraft      ProductStatus = "draft"
	ProductStatusArchived   ProductStatus = "archived"
	ProductStatusBackorder  ProductStatus = "backorder"
	ProductStatusOutOfStock ProductStatus = "out_of_stock"
)

// IsValid returns true if the status is a known product status
func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductStatusActive, ProductStatusDraft, ProductStatusArchived,
		ProductStatusBackorder, ProductStatusOutOfStock:
		return true
	default:
		return false
	}
}

// String returns the string representation of ProductStatus
func (s ProductStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Product
// ---------------------------------------------------------------------------

// Product is the canonical representation of a marketplace listing.
// ExternalID is assigned by the marketplace; SKU is unique within
// (store, platform). A Product with a zero ID is a sync candidate that
// has not been persisted yet.
type Product struct {
	ID         uuid.UUID
	StoreID    uuid.UUID
	Platform   string
	ExternalID string
	SKU        string
	Title      string
	Price      decimal.Decimal
	Currency   string
	Status     ProductStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks the identity fields required before persistence
func (p *Product) Validate() error {
	if p.StoreID == uuid.Nil {
		return ErrProductInvalidStoreID
	}
	if p.SKU == "" {
		return ErrProductInvalidSKU
	}
	return nil
}

// NeedsUpdate reports whether candidate differs from the stored product on
// any synced field. Timestamps and internal ids are excluded; a nil existing
// row always needs a write. This check only reduces write volume, skipping
// it never loses data.
func (p *Product) NeedsUpdate(candidate *Product) bool {
	if p == nil {
		return true
	}
	if p.ExternalID != candidate.ExternalID {
		return true
	}
	if p.Title != candidate.Title {
		return true
	}
	if !p.Price.Equal(candidate.Price) {
		return true
	}
	if p.Currency != candidate.Currency {
		return true
	}
	if p.Status != candidate.Status {
		return true
	}
	return false
}
