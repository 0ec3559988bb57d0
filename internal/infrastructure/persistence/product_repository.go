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

// resolveBatchSize bounds IN clauses for lookups and id resolution
const resolveBatchSize = 200

// GormProductRepository implements catalog.ProductRepository using GORM
type GormProductRepository struct {
	db       *gorm.DB
	upserter *BatchUpserter
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB, upserter *BatchUpserter) *GormProductRepository {
	return &GormProductRepository{db: db, upserter: upserter}
}

// FindBySKUs returns stored products for the given SKUs keyed by SKU
func (r *GormProductRepository) FindBySKUs(ctx context.Context, storeID uuid.UUID, skus []string) (map[string]catalog.Product, error) {
	result := make(map[string]catalog.Product, len(skus))
	for _, chunk := range chunkRows(skus, resolveBatchSize) {
		var rows []models.ProductModel
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

// Upsert writes product candidates keyed on (store_id, sku). Product rows
// are independent, so a failed batch does not stop the remaining ones.
func (r *GormProductRepository) Upsert(ctx context.Context, products []catalog.Product) (int, error) {
	now := time.Now().UTC()
	rows := make([]models.ProductModel, 0, len(products))
	for i := range products {
		p := products[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.CreatedAt = now
		p.UpdatedAt = now
		rows = append(rows, *models.ProductModelFromDomain(&p))
	}

	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "store_id"}, {Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_id", "title", "price", "currency", "status", "updated_at",
		}),
	}
	report, err := UpsertRows(ctx, r.upserter, "products", rows, conflict, TolerateBatchFailure)
	if err != nil {
		return report.Written, err
	}
	if len(report.Errors) > 0 {
		return report.Written, report.Errors[0]
	}
	return report.Written, nil
}

// ResolveSKUs maps SKUs to internal product ids in bounded batches
func (r *GormProductRepository) ResolveSKUs(ctx context.Context, storeID uuid.UUID, skus []string) (map[string]uuid.UUID, error) {
	result := make(map[string]uuid.UUID, len(skus))
	for _, chunk := range chunkRows(skus, resolveBatchSize) {
		var rows []struct {
			ID  uuid.UUID
			SKU string
		}
		if err := r.db.WithContext(ctx).
			Model(&models.ProductModel{}).
			Select("id", "sku").
			Where("store_id = ? AND sku IN ?", storeID, chunk).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			result[row.SKU] = row.ID
		}
	}
	return result, nil
}

var _ catalog.ProductRepository = (*GormProductRepository)(nil)
