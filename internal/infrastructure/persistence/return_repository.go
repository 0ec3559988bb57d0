package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/channelsync/backend/internal/domain/trade"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormReturnRepository implements trade.ReturnRepository using GORM
type GormReturnRepository struct {
	db       *gorm.DB
	upserter *BatchUpserter
}

// NewGormReturnRepository creates a new GormReturnRepository
func NewGormReturnRepository(db *gorm.DB, upserter *BatchUpserter) *GormReturnRepository {
	return &GormReturnRepository{db: db, upserter: upserter}
}

// FindByExternalIDs returns stored returns keyed by external return id
func (r *GormReturnRepository) FindByExternalIDs(ctx context.Context, storeID uuid.UUID, externalIDs []string) (map[string]trade.Return, error) {
	result := make(map[string]trade.Return, len(externalIDs))
	for _, chunk := range chunkRows(externalIDs, resolveBatchSize) {
		var rows []models.ReturnModel
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

// Upsert writes return candidates keyed on (store_id, external_id). Callers
// must have resolved OrderID on every candidate; the column is NOT NULL.
func (r *GormReturnRepository) Upsert(ctx context.Context, returns []trade.Return) (int, error) {
	now := time.Now().UTC()
	rows := make([]models.ReturnModel, 0, len(returns))
	for i := range returns {
		ret := returns[i]
		if ret.ID == uuid.Nil {
			ret.ID = uuid.New()
		}
		ret.CreatedAt = now
		ret.UpdatedAt = now
		rows = append(rows, *models.ReturnModelFromDomain(&ret))
	}

	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "store_id"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "refund_amount", "currency", "updated_at",
		}),
	}
	report, err := UpsertRows(ctx, r.upserter, "returns", rows, conflict, TolerateBatchFailure)
	if err != nil {
		return report.Written, err
	}
	if len(report.Errors) > 0 {
		return report.Written, report.Errors[0]
	}
	return report.Written, nil
}

var _ trade.ReturnRepository = (*GormReturnRepository)(nil)
