package trade

import (
	"context"

	"github.com/google/uuid"
)

// OrderRepository is the persistence port for orders and their children
type OrderRepository interface {
	// FindByExternalIDs returns stored orders keyed by external id.
	// Children are not loaded; delta detection on orders compares only
	// order-level fields.
	FindByExternalIDs(ctx context.Context, storeID uuid.UUID, externalIDs []string) (map[string]Order, error)
	// ResolveExternalIDs maps marketplace order ids to internal order ids.
	// Unknown ids are absent from the result.
	ResolveExternalIDs(ctx context.Context, storeID uuid.UUID, externalIDs []string) (map[string]uuid.UUID, error)
	// UpsertBundles atomically writes orders with their items and
	// fulfillments in dependency order. Either the whole set of batches
	// lands or none of the transaction does.
	UpsertBundles(ctx context.Context, orders []Order) (int, error)
	// UpsertFulfillments writes fulfillment candidates keyed on
	// (order_id, external_id) outside an order bundle
	UpsertFulfillments(ctx context.Context, fulfillments []Fulfillment) (int, error)
}

// ReturnRepository is the persistence port for return requests
type ReturnRepository interface {
	// FindByExternalIDs returns stored returns keyed by external return id
	FindByExternalIDs(ctx context.Context, storeID uuid.UUID, externalIDs []string) (map[string]Return, error)
	// Upsert writes return candidates keyed on (store_id, external_id).
	// Every candidate must carry a resolved OrderID.
	Upsert(ctx context.Context, returns []Return) (int, error)
}
