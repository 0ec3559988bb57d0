package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/store"
)

// newMockStoreRepository creates a GormStoreRepository with a mocked SQL
// connection
func newMockStoreRepository(t *testing.T) (*GormStoreRepository, sqlmock.Sqlmock, *sql.DB) {
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

	return NewGormStoreRepository(gormDB), mock, mockDB
}

func TestGormStoreRepository_FindByID(t *testing.T) {
	t.Run("finds existing store", func(t *testing.T) {
		repo, mock, mockDB := newMockStoreRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "name", "platform", "domain", "auth_status", "healthy"}).
			AddRow(storeID, "Main Shop", "SHOPIFY", "main.myshopify.com", "active", true)

		mock.ExpectQuery(`SELECT \* FROM "stores" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(storeID, 1).
			WillReturnRows(rows)

		found, err := repo.FindByID(context.Background(), storeID)

		require.NoError(t, err)
		assert.Equal(t, storeID, found.ID)
		assert.Equal(t, connector.PlatformShopify, found.Platform)
		assert.True(t, found.Healthy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns sentinel for missing store", func(t *testing.T) {
		repo, mock, mockDB := newMockStoreRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "stores" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(storeID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		found, err := repo.FindByID(context.Background(), storeID)

		assert.Nil(t, found)
		assert.ErrorIs(t, err, store.ErrStoreNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStoreRepository_ActiveStores(t *testing.T) {
	t.Run("skips authorized stores without credentials", func(t *testing.T) {
		repo, mock, mockDB := newMockStoreRepository(t)
		defer mockDB.Close()

		withCreds := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "name", "platform", "auth_status", "credentials"}).
			AddRow(withCreds, "Ready", "SHOPIFY", "active", `{"access_token":"tok"}`).
			AddRow(uuid.New(), "Empty payload", "ETSY", "active", `{}`).
			AddRow(uuid.New(), "No payload", "EBAY", "active", ``)

		mock.ExpectQuery(`SELECT \* FROM "stores" WHERE auth_status = \$1 ORDER BY created_at ASC`).
			WithArgs("active").
			WillReturnRows(rows)

		stores, err := repo.ActiveStores(context.Background())

		require.NoError(t, err)
		require.Len(t, stores, 1)
		assert.Equal(t, withCreds, stores[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStoreRepository_GetCredentials(t *testing.T) {
	t.Run("returns parsed payload", func(t *testing.T) {
		repo, mock, mockDB := newMockStoreRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "credentials"}).
			AddRow(storeID, `{"access_token":"tok","seller_id":"A1"}`)

		mock.ExpectQuery(`SELECT "id","credentials" FROM "stores" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(storeID, 1).
			WillReturnRows(rows)

		creds, err := repo.GetCredentials(context.Background(), storeID)

		require.NoError(t, err)
		assert.Equal(t, "tok", creds["access_token"])
		assert.Equal(t, "A1", creds["seller_id"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty payload returns credentials sentinel", func(t *testing.T) {
		repo, mock, mockDB := newMockStoreRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "credentials"}).
			AddRow(storeID, `{}`)

		mock.ExpectQuery(`SELECT "id","credentials" FROM "stores" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(storeID, 1).
			WillReturnRows(rows)

		creds, err := repo.GetCredentials(context.Background(), storeID)

		assert.Nil(t, creds)
		assert.ErrorIs(t, err, store.ErrCredentialsNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStoreRepository_UpdateCredentials(t *testing.T) {
	t.Run("replaces payload and reactivates auth", func(t *testing.T) {
		repo, mock, mockDB := newMockStoreRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		mock.ExpectExec(`UPDATE "stores" SET`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), storeID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateCredentials(context.Background(), storeID, connector.Credentials{"access_token": "fresh"})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing store returns sentinel", func(t *testing.T) {
		repo, mock, mockDB := newMockStoreRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		mock.ExpectExec(`UPDATE "stores" SET`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), storeID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateCredentials(context.Background(), storeID, connector.Credentials{"access_token": "fresh"})

		assert.ErrorIs(t, err, store.ErrStoreNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStoreRepository_UpdateHealth(t *testing.T) {
	t.Run("advances watermark on success", func(t *testing.T) {
		repo, mock, mockDB := newMockStoreRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		syncedAt := time.Now().UTC()

		mock.ExpectExec(`UPDATE "stores" SET`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), storeID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateHealth(context.Background(), storeID, true, "", &syncedAt)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure keeps watermark where it was", func(t *testing.T) {
		repo, mock, mockDB := newMockStoreRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()

		// Three SET columns plus the id arg: last_synced_at stays untouched
		mock.ExpectExec(`UPDATE "stores" SET`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), storeID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateHealth(context.Background(), storeID, false, "order sync failed", nil)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStoreRepository_CreateAlert(t *testing.T) {
	t.Run("records alert with generated id", func(t *testing.T) {
		repo, mock, mockDB := newMockStoreRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		mock.ExpectExec(`INSERT INTO "alerts"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.CreateAlert(context.Background(), store.Alert{
			StoreID:  &storeID,
			Type:     store.AlertTypeSyncFailed,
			Severity: store.AlertSeverityWarning,
			Message:  "order sync failed after retries",
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
