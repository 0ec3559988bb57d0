package trade

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderInvalidExternalID = errors.New("trade: order external ID is required")
	ErrOrderInvalidStoreID    = errors.New("trade: store ID is required")
)

// ---------------------------------------------------------------------------
// Status enums
// ---------------------------------------------------------------------------

// OrderStatus represents the canonical order lifecycle status
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// IsValid returns true if the status is a known order status
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCompleted,
		OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// FulfillmentStatus represents the shipping state of an order or fulfillment
type FulfillmentStatus string

const (
	FulfillmentStatusPending FulfillmentStatus = "pending"
	FulfillmentStatusShipped FulfillmentStatus = "shipped"
	FulfillmentStatusVoided  FulfillmentStatus = "voided"
)

// PaymentStatus represents the payment state of an order
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ReturnStatus represents the lifecycle of a return request
type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "requested"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusReceived  ReturnStatus = "received"
	ReturnStatusRefunded  ReturnStatus = "refunded"
	ReturnStatusRejected  ReturnStatus = "rejected"
)

// ---------------------------------------------------------------------------
// Order
// ---------------------------------------------------------------------------

// Order is the canonical representation of a marketplace order. Identity
// fields (external id, ordered_at) are immutable; status and monetary
// fields are overwritten idempotently on every sync with the marketplace's
// current view. Monetary fields are in the order's native currency.
type Order struct {
	ID                uuid.UUID
	StoreID           uuid.UUID
	Platform          string
	ExternalID        string
	Status            OrderStatus
	FulfillmentStatus FulfillmentStatus
	PaymentStatus     PaymentStatus
	Currency          string
	Subtotal          decimal.Decimal
	Tax               decimal.Decimal
	Shipping          decimal.Decimal
	Total             decimal.Decimal
	OrderedAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Children carried during mapping; persisted separately in
	// dependency order after the order itself is resolved.
	Items        []OrderItem
	Fulfillments []Fulfillment
}

// Validate checks the identity fields required before persistence
func (o *Order) Validate() error {
	if o.StoreID == uuid.Nil {
		return ErrOrderInvalidStoreID
	}
	if o.ExternalID == "" {
		return ErrOrderInvalidExternalID
	}
	return nil
}

// NeedsUpdate reports whether candidate differs from the stored order on
// any synced field. OrderedAt and timestamps are excluded.
func (o *Order) NeedsUpdate(candidate *Order) bool {
	if o == nil {
		return true
	}
	if o.Status != candidate.Status ||
		o.FulfillmentStatus != candidate.FulfillmentStatus ||
		o.PaymentStatus != candidate.PaymentStatus {
		return true
	}
	if !o.Subtotal.Equal(candidate.Subtotal) ||
		!o.Tax.Equal(candidate.Tax) ||
		!o.Shipping.Equal(candidate.Shipping) ||
		!o.Total.Equal(candidate.Total) {
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// OrderItem
// ---------------------------------------------------------------------------

// OrderItem is a line of an order, unique per (order, SKU). Fulfilled and
// refunded quantities are overwritten with the marketplace's current view on
// each sync; monotonicity is not enforced here. ProductID is nullable by
// design: marketplace lines may reference listings that were never synced
// into the catalog, and the line is still needed for order totals.
type OrderItem struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	ProductID         *uuid.UUID
	SKU               string
	Quantity          int64
	FulfilledQuantity int64
	RefundedQuantity  int64
	Price             decimal.Decimal
	Total             decimal.Decimal
}

// NeedsUpdate compares the synced fields of an order item
func (i *OrderItem) NeedsUpdate(candidate *OrderItem) bool {
	if i == nil {
		return true
	}
	if i.Quantity != candidate.Quantity ||
		i.FulfilledQuantity != candidate.FulfilledQuantity ||
		i.RefundedQuantity != candidate.RefundedQuantity {
		return true
	}
	if !i.Price.Equal(candidate.Price) || !i.Total.Equal(candidate.Total) {
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Fulfillment
// ---------------------------------------------------------------------------

// Fulfillment is a shipment record for an order, keyed by the external
// fulfillment id
type Fulfillment struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	ExternalID     string
	Carrier        string
	TrackingNumber string
	Status         FulfillmentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NeedsUpdate compares the synced fields of a fulfillment
func (f *Fulfillment) NeedsUpdate(candidate *Fulfillment) bool {
	if f == nil {
		return true
	}
	return f.Carrier != candidate.Carrier ||
		f.TrackingNumber != candidate.TrackingNumber ||
		f.Status != candidate.Status
}

// ---------------------------------------------------------------------------
// Return
// ---------------------------------------------------------------------------

// Return is a return/refund request keyed by the external return id.
// OrderID is the internal order id; ExternalOrderID exists only as a join
// key during mapping and is never persisted. A return whose order cannot
// be resolved is dropped, not written with a placeholder.
type Return struct {
	ID           uuid.UUID
	StoreID      uuid.UUID
	OrderID      uuid.UUID
	ExternalID   string
	RefundAmount decimal.Decimal
	Currency     string
	Status       ReturnStatus
	RequestedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// ExternalOrderID is the marketplace order id used to resolve OrderID
	// before persistence. Not a persisted column.
	ExternalOrderID string
}

// NeedsUpdate compares the synced fields of a return
func (r *Return) NeedsUpdate(candidate *Return) bool {
	if r == nil {
		return true
	}
	if r.Status != candidate.Status {
		return true
	}
	if !r.RefundAmount.Equal(candidate.RefundAmount) {
		return true
	}
	return false
}
