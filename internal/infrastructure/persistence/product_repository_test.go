package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/catalog"
)

// newMockProductRepository creates a GormProductRepository with a mocked SQL
// connection
func newMockProductRepository(t *testing.T) (*GormProductRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	upserter := NewBatchUpserter(gormDB, UpserterConfig{Concurrency: 1}, zap.NewNop()).
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil })
	return NewGormProductRepository(gormDB, upserter), mock, mockDB
}

func TestGormProductRepository_FindBySKUs(t *testing.T) {
	t.Run("returns stored products keyed by sku", func(t *testing.T) {
		repo, mock, mockDB := newMockProductRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "store_id", "platform", "external_id", "sku", "title", "price", "currency", "status"}).
			AddRow(uuid.New(), storeID, "SHOPIFY", "ext-1", "SKU-1", "Widget", decimal.RequireFromString("19.99"), "USD", "active").
			AddRow(uuid.New(), storeID, "SHOPIFY", "ext-2", "SKU-2", "Gadget", decimal.RequireFromString("5.00"), "USD", "draft")

		mock.ExpectQuery(`SELECT \* FROM "products" WHERE store_id = \$1 AND sku IN \(\$2,\$3,\$4\)`).
			WithArgs(storeID, "SKU-1", "SKU-2", "SKU-MISSING").
			WillReturnRows(rows)

		found, err := repo.FindBySKUs(context.Background(), storeID, []string{"SKU-1", "SKU-2", "SKU-MISSING"})

		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "Widget", found["SKU-1"].Title)
		assert.Equal(t, catalog.ProductStatusDraft, found["SKU-2"].Status)
		assert.NotContains(t, found, "SKU-MISSING")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty sku list queries nothing", func(t *testing.T) {
		repo, mock, mockDB := newMockProductRepository(t)
		defer mockDB.Close()

		found, err := repo.FindBySKUs(context.Background(), uuid.New(), nil)

		require.NoError(t, err)
		assert.Empty(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormProductRepository_Upsert(t *testing.T) {
	t.Run("writes candidates and assigns ids", func(t *testing.T) {
		repo, mock, mockDB := newMockProductRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`INSERT INTO "products" .* ON CONFLICT \("store_id","sku"\) DO UPDATE`).
			WillReturnResult(sqlmock.NewResult(0, 2))

		written, err := repo.Upsert(context.Background(), []catalog.Product{
			{StoreID: uuid.New(), Platform: "SHOPIFY", ExternalID: "ext-1", SKU: "SKU-1", Price: decimal.RequireFromString("19.99"), Currency: "USD", Status: catalog.ProductStatusActive},
			{StoreID: uuid.New(), Platform: "SHOPIFY", ExternalID: "ext-2", SKU: "SKU-2", Price: decimal.RequireFromString("5.00"), Currency: "USD", Status: catalog.ProductStatusActive},
		})

		require.NoError(t, err)
		assert.Equal(t, 2, written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormProductRepository_ResolveSKUs(t *testing.T) {
	t.Run("maps skus to internal ids, unknown skus absent", func(t *testing.T) {
		repo, mock, mockDB := newMockProductRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		knownID := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "sku"}).
			AddRow(knownID, "SKU-1")

		mock.ExpectQuery(`SELECT "id","sku" FROM "products" WHERE store_id = \$1 AND sku IN \(\$2,\$3\)`).
			WithArgs(storeID, "SKU-1", "SKU-GHOST").
			WillReturnRows(rows)

		ids, err := repo.ResolveSKUs(context.Background(), storeID, []string{"SKU-1", "SKU-GHOST"})

		require.NoError(t, err)
		require.Len(t, ids, 1)
		assert.Equal(t, knownID, ids["SKU-1"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
