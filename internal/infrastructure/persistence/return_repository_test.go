package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/trade"
)

// ReturnModelSQLite is a SQLite-compatible version of ReturnModel for testing
type ReturnModelSQLite struct {
	ID           string `gorm:"primaryKey"`
	StoreID      string `gorm:"not null;uniqueIndex:idx_returns_store_external,priority:1"`
	OrderID      string `gorm:"not null;index"`
	ExternalID   string `gorm:"not null;uniqueIndex:idx_returns_store_external,priority:2"`
	RefundAmount string `gorm:"not null"`
	Currency     string `gorm:"not null"`
	Status       string `gorm:"not null"`
	RequestedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ReturnModelSQLite) TableName() string {
	return "returns"
}

func setupReturnTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ReturnModelSQLite{}))
	return db
}

func newReturnTestRepo(t *testing.T) (*GormReturnRepository, *gorm.DB) {
	db := setupReturnTestDB(t)
	upserter := NewBatchUpserter(db, UpserterConfig{
		BatchSize:   100,
		Concurrency: 1,
		MaxRetries:  1,
		RetryDelay:  time.Millisecond,
	}, zap.NewNop())
	return NewGormReturnRepository(db, upserter), db
}

func testReturn(storeID, orderID uuid.UUID, externalID string) trade.Return {
	return trade.Return{
		StoreID:      storeID,
		OrderID:      orderID,
		ExternalID:   externalID,
		RefundAmount: decimal.NewFromFloat(25.00),
		Currency:     "USD",
		Status:       trade.ReturnStatusRequested,
		RequestedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestGormReturnRepository_Upsert(t *testing.T) {
	repo, db := newReturnTestRepo(t)
	ctx := context.Background()
	storeID := uuid.New()
	orderID := uuid.New()

	t.Run("inserts new returns", func(t *testing.T) {
		written, err := repo.Upsert(ctx, []trade.Return{
			testReturn(storeID, orderID, "ret-1"),
			testReturn(storeID, orderID, "ret-2"),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, written)

		var count int64
		require.NoError(t, db.Table("returns").Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})

	t.Run("re-upsert updates in place instead of duplicating", func(t *testing.T) {
		changed := testReturn(storeID, orderID, "ret-1")
		changed.Status = trade.ReturnStatusRefunded
		changed.RefundAmount = decimal.NewFromFloat(20.00)

		written, err := repo.Upsert(ctx, []trade.Return{changed})
		require.NoError(t, err)
		assert.Equal(t, 1, written)

		var count int64
		require.NoError(t, db.Table("returns").Count(&count).Error)
		assert.Equal(t, int64(2), count)

		found, err := repo.FindByExternalIDs(ctx, storeID, []string{"ret-1"})
		require.NoError(t, err)
		require.Contains(t, found, "ret-1")
		assert.Equal(t, trade.ReturnStatusRefunded, found["ret-1"].Status)
		assert.True(t, found["ret-1"].RefundAmount.Equal(decimal.NewFromFloat(20.00)))
	})

	t.Run("same external id under another store is a separate row", func(t *testing.T) {
		otherStore := uuid.New()
		written, err := repo.Upsert(ctx, []trade.Return{
			testReturn(otherStore, uuid.New(), "ret-1"),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, written)

		var count int64
		require.NoError(t, db.Table("returns").Count(&count).Error)
		assert.Equal(t, int64(3), count)
	})
}

func TestGormReturnRepository_FindByExternalIDs(t *testing.T) {
	repo, _ := newReturnTestRepo(t)
	ctx := context.Background()
	storeID := uuid.New()
	orderID := uuid.New()

	_, err := repo.Upsert(ctx, []trade.Return{
		testReturn(storeID, orderID, "ret-1"),
		testReturn(storeID, orderID, "ret-2"),
	})
	require.NoError(t, err)

	t.Run("returns only requested ids", func(t *testing.T) {
		found, err := repo.FindByExternalIDs(ctx, storeID, []string{"ret-2", "ret-missing"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, orderID, found["ret-2"].OrderID)
	})

	t.Run("empty id list returns empty map", func(t *testing.T) {
		found, err := repo.FindByExternalIDs(ctx, storeID, nil)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("scoped to the store", func(t *testing.T) {
		found, err := repo.FindByExternalIDs(ctx, uuid.New(), []string{"ret-1"})
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}
