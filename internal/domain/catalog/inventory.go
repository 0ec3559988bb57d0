package catalog

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// InventoryStatus
// ---------------------------------------------------------------------------

// InventoryStatus is derived from the platform quantity at write time.
// It is never set independently of the quantities.
type InventoryStatus string

const (
	InventoryStatusInStock    InventoryStatus = "in_stock"
	InventoryStatusOutOfStock InventoryStatus = "out_of_stock"
	InventoryStatusBackorder  InventoryStatus = "backorder"
)

// UntrackedRule decides how a nil (untracked) platform quantity maps to a
// derived status. Marketplaces disagree on what untracked means, so the rule
// is configured per connector.
type UntrackedRule string

const (
	// UntrackedAsUnknown suppresses the derived status when the quantity is untracked
	UntrackedAsUnknown UntrackedRule = "unknown"
	// UntrackedAsInStock treats untracked inventory as sellable
	UntrackedAsInStock UntrackedRule = "in_stock"
)

// DeriveInventoryStatus computes the status from the platform quantity.
// Untracked (nil) is not the same as zero: nil resolves via the connector's
// rule, zero is always out of stock, negative means oversold/backorder.
func DeriveInventoryStatus(platformQty *int64, rule UntrackedRule) *InventoryStatus {
	if platformQty == nil {
		if rule == UntrackedAsInStock {
			s := InventoryStatusInStock
			return &s
		}
		return nil
	}
	var s InventoryStatus
	switch {
	case *platformQty > 0:
		s = InventoryStatusInStock
	case *platformQty == 0:
		s = InventoryStatusOutOfStock
	default:
		s = InventoryStatusBackorder
	}
	return &s
}

// ---------------------------------------------------------------------------
// InventoryLevel
// ---------------------------------------------------------------------------

// InventoryLevel holds the stock position for one (store, SKU). Each
// quantity is nullable because marketplaces report untracked dimensions
// as absent rather than zero.
type InventoryLevel struct {
	ID                uuid.UUID
	StoreID           uuid.UUID
	ProductID         uuid.UUID
	SKU               string
	PlatformQuantity  *int64
	WarehouseQuantity *int64
	ReservedQuantity  *int64
	InboundQuantity   *int64
	Status            *InventoryStatus
	UpdatedAt         time.Time
}

// NeedsUpdate compares the four quantity fields plus the derived status
// under null normalization. Timestamps and ids are excluded.
func (l *InventoryLevel) NeedsUpdate(candidate *InventoryLevel) bool {
	if l == nil {
		return true
	}
	if !int64PtrEqual(l.PlatformQuantity, candidate.PlatformQuantity) {
		return true
	}
	if !int64PtrEqual(l.WarehouseQuantity, candidate.WarehouseQuantity) {
		return true
	}
	if !int64PtrEqual(l.ReservedQuantity, candidate.ReservedQuantity) {
		return true
	}
	if !int64PtrEqual(l.InboundQuantity, candidate.InboundQuantity) {
		return true
	}
	if !statusPtrEqual(l.Status, candidate.Status) {
		return true
	}
	return false
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func statusPtrEqual(a, b *InventoryStatus) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
