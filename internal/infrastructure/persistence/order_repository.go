package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/channelsync/backend/internal/domain/trade"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements trade.OrderRepository using GORM
type GormOrderRepository struct {
	db       *gorm.DB
	upserter *BatchUpserter
	config   UpserterConfig
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB, upserter *BatchUpserter) *GormOrderRepository {
	return &GormOrderRepository{db: db, upserter: upserter, config: upserter.config}
}

// FindByExternalIDs returns stored orders for the given external ids keyed
// by external id. Children are not loaded.
func (r *GormOrderRepository) FindByExternalIDs(ctx context.Context, storeID uuid.UUID, externalIDs []string) (map[string]trade.Order, error) {
	result := make(map[string]trade.Order, len(externalIDs))
	for _, chunk := range chunkRows(externalIDs, resolveBatchSize) {
		var rows []models.OrderModel
		if err := r.db.WithContext(ctx).
			Where("store_id = ? AND external_id IN ?", storeID, chunk).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			result[rows[i].ExternalID] = *rows[i].ToDomain()
		}
	}
	return result, nil
}

// ResolveExternalIDs maps marketplace order ids to internal order ids
func (r *GormOrderRepository) ResolveExternalIDs(ctx context.Context, storeID uuid.UUID, externalIDs []string) (map[string]uuid.UUID, error) {
	return resolveOrderIDs(ctx, r.db, storeID, externalIDs)
}

// UpsertBundles writes orders with their items and fulfillments inside one
// transaction, parents before children. Batches inside the transaction run
// sequentially; a single failed batch rolls back the whole bundle set.
func (r *GormOrderRepository) UpsertBundles(ctx context.Context, orders []trade.Order) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	orderRows := make([]models.OrderModel, 0, len(orders))
	for i := range orders {
		o := orders[i]
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		o.CreatedAt = now
		o.UpdatedAt = now
		orderRows = append(orderRows, *models.OrderModelFromDomain(&o))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderConflict := clause.OnConflict{
			Columns: []clause.Column{{Name: "store_id"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "fulfillment_status", "payment_status",
				"subtotal", "tax", "shipping", "total", "updated_at",
			}),
		}
		if err := tx.Clauses(orderConflict).
			CreateInBatches(orderRows, r.config.BatchSize).Error; err != nil {
			return fmt.Errorf("%w: orders: %w", ErrBatchUpsertFailed, err)
		}

		// Conflicting orders keep their existing ids, so children must be
		// keyed off what the database actually holds.
		ids, err := resolveBundleIDs(ctx, tx, orders)
		if err != nil {
			return err
		}

		var (
			itemRows        []models.OrderItemModel
			fulfillmentRows []models.FulfillmentModel
		)
		for i := range orders {
			orderID, ok := ids[bundleKey(orders[i].StoreID, orders[i].ExternalID)]
			if !ok {
				return fmt.Errorf("%w: order %s missing after upsert", ErrBatchUpsertFailed, orders[i].ExternalID)
			}
			for j := range orders[i].Items {
				item := orders[i].Items[j]
				if item.ID == uuid.Nil {
					item.ID = uuid.New()
				}
				item.OrderID = orderID
				itemRows = append(itemRows, *models.OrderItemModelFromDomain(&item))
			}
			for j := range orders[i].Fulfillments {
				f := orders[i].Fulfillments[j]
				if f.ID == uuid.Nil {
					f.ID = uuid.New()
				}
				f.OrderID = orderID
				f.CreatedAt = now
				f.UpdatedAt = now
				fulfillmentRows = append(fulfillmentRows, *models.FulfillmentModelFromDomain(&f))
			}
		}

		if len(itemRows) > 0 {
			itemConflict := clause.OnConflict{
				Columns: []clause.Column{{Name: "order_id"}, {Name: "sku"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"product_id", "quantity", "fulfilled_quantity",
					"refunded_quantity", "price", "total",
				}),
			}
			if err := tx.Clauses(itemConflict).
				CreateInBatches(itemRows, r.config.BatchSize).Error; err != nil {
				return fmt.Errorf("%w: order_items: %w", ErrBatchUpsertFailed, err)
			}
		}

		if len(fulfillmentRows) > 0 {
			if err := tx.Clauses(fulfillmentConflict()).
				CreateInBatches(fulfillmentRows, r.config.BatchSize).Error; err != nil {
				return fmt.Errorf("%w: fulfillments: %w", ErrBatchUpsertFailed, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(orders), nil
}

// UpsertFulfillments writes fulfillment candidates outside an order bundle.
// Callers must have resolved OrderID on every candidate.
func (r *GormOrderRepository) UpsertFulfillments(ctx context.Context, fulfillments []trade.Fulfillment) (int, error) {
	now := time.Now().UTC()
	rows := make([]models.FulfillmentModel, 0, len(fulfillments))
	for i := range fulfillments {
		f := fulfillments[i]
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.CreatedAt = now
		f.UpdatedAt = now
		rows = append(rows, *models.FulfillmentModelFromDomain(&f))
	}

	report, err := UpsertRows(ctx, r.upserter, "fulfillments", rows, fulfillmentConflict(), TolerateBatchFailure)
	if err != nil {
		return report.Written, err
	}
	if len(report.Errors) > 0 {
		return report.Written, report.Errors[0]
	}
	return report.Written, nil
}

func fulfillmentConflict() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"carrier", "tracking_number", "status", "updated_at",
		}),
	}
}

func bundleKey(storeID uuid.UUID, externalID string) string {
	return storeID.String() + ":" + externalID
}

// resolveBundleIDs looks up internal order ids per (store_id, external_id)
// pair, grouping by store so mixed bundles resolve correctly
func resolveBundleIDs(ctx context.Context, db *gorm.DB, orders []trade.Order) (map[string]uuid.UUID, error) {
	byStore := make(map[uuid.UUID][]string)
	for i := range orders {
		byStore[orders[i].StoreID] = append(byStore[orders[i].StoreID], orders[i].ExternalID)
	}

	result := make(map[string]uuid.UUID, len(orders))
	for storeID, externalIDs := range byStore {
		ids, err := resolveOrderIDs(ctx, db, storeID, externalIDs)
		if err != nil {
			return nil, err
		}
		for externalID, id := range ids {
			result[bundleKey(storeID, externalID)] = id
		}
	}
	return result, nil
}

func resolveOrderIDs(ctx context.Context, db *gorm.DB, storeID uuid.UUID, externalIDs []string) (map[string]uuid.UUID, error) {
	result := make(map[string]uuid.UUID, len(externalIDs))
	for _, chunk := range chunkRows(externalIDs, resolveBatchSize) {
		var rows []struct {
			ID         uuid.UUID
			ExternalID string
		}
		if err := db.WithContext(ctx).
			Model(&models.OrderModel{}).
			Select("id", "external_id").
			Where("store_id = ? AND external_id IN ?", storeID, chunk).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			result[row.ExternalID] = row.ID
		}
	}
	return result, nil
}

var _ trade.OrderRepository = (*GormOrderRepository)(nil)
