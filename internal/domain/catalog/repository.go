package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ProductRepository is the persistence port for canonical products
type ProductRepository interface {
	// FindBySKUs returns the stored products for the given SKUs keyed by
	// SKU. Missing SKUs are simply absent from the map.
	FindBySKUs(ctx context.Context, storeID uuid.UUID, skus []string) (map[string]Product, error)
	// Upsert writes product candidates keyed on (store_id, sku) and
	// returns how many rows were written
	Upsert(ctx context.Context, products []Product) (int, error)
	// ResolveSKUs maps SKUs to internal product ids. Unknown SKUs are
	// absent from the result; callers decide whether absence is an error.
	ResolveSKUs(ctx context.Context, storeID uuid.UUID, skus []string) (map[string]uuid.UUID, error)
}

// InventoryRepository is the persistence port for stock levels
type InventoryRepository interface {
	// FindBySKUs returns the stored levels for the given SKUs keyed by SKU
	FindBySKUs(ctx context.Context, storeID uuid.UUID, skus []string) (map[string]InventoryLevel, error)
	// Upsert writes inventory candidates keyed on (store_id, sku). Every
	// candidate must carry a resolved ProductID.
	Upsert(ctx context.Context, levels []InventoryLevel) (int, error)
}
