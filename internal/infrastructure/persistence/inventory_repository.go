package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/channelsync/backend/internal/domain/catalog"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormInventoryRepository implements catalog.InventoryRepository using GORM
type GormInventoryRepository struct {
	db       *gorm.DB
	upserter *BatchUpserter
}

// NewGormInventoryRepository creates a new GormInventoryRepository
func NewGormInventoryRepository(db *gorm.DB, upserter *BatchUpserter) *GormInventoryRepository {
	return &GormInventoryRepository{db: db, upserter: upserter}
}

// FindBySKUs returns stored inventory levels for the given SKUs keyed by SKU
func (r *GormInventoryRepository) FindBySKUs(ctx context.Context, storeID uuid.UUID, skus []string) (map[string]catalog.InventoryLevel, error) {
	result := make(map[string]catalog.InventoryLevel, len(skus))
	for _, chunk := range chunkRows(skus, resolveBatchSize) {
		var rows []models.InventoryLevelModel
		if err := r.db.WithContext(ctx).
			Where("store_id = ? AND sku IN ?", storeID, chunk).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			result[rows[i].SKU] = *rows[i].ToDomain()
		}
	}
	return result, nil
}

// Upsert writes inventory candidates keyed on (store_id, sku). Levels are
// independent rows, so failed batches do not stop the remaining ones.
func (r *GormInventoryRepository) Upsert(ctx context.Context, levels []catalog.InventoryLevel) (int, error) {
	now := time.Now().UTC()
	rows := make([]models.InventoryLevelModel, 0, len(levels))
	for i := range levels {
		l := levels[i]
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		l.UpdatedAt = now
		rows = append(rows, *models.InventoryLevelModelFromDomain(&l))
	}

	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "store_id"}, {Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"product_id", "platform_quantity", "warehouse_quantity",
			"reserved_quantity", "inbound_quantity", "status", "updated_at",
		}),
	}
	report, err := UpsertRows(ctx, r.upserter, "inventory_levels", rows, conflict, TolerateBatchFailure)
	if err != nil {
		return report.Written, err
	}
	if len(report.Errors) > 0 {
		return report.Written, report.Errors[0]
	}
	return report.Written, nil
}

var _ catalog.InventoryRepository = (*GormInventoryRepository)(nil)
