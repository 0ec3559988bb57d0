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

	"github.com/channelsync/backend/internal/domain/job"
)

// newMockJobRepository creates a GormJobRepository with a mocked SQL
// connection
func newMockJobRepository(t *testing.T) (*GormJobRepository, sqlmock.Sqlmock, *sql.DB) {
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

	return NewGormJobRepository(gormDB), mock, mockDB
}

func TestGormJobRepository_Save(t *testing.T) {
	t.Run("upserts the job record on id", func(t *testing.T) {
		repo, mock, mockDB := newMockJobRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`INSERT INTO "sync_jobs" .* ON CONFLICT \("id"\) DO UPDATE`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Save(context.Background(), job.New(uuid.New(), job.TypeOrderSync))

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobRepository_Recent(t *testing.T) {
	t.Run("returns newest records first", func(t *testing.T) {
		repo, mock, mockDB := newMockJobRepository(t)
		defer mockDB.Close()

		now := time.Now().UTC()
		rows := sqlmock.NewRows([]string{"id", "store_id", "type", "status", "attempt", "enqueued_at"}).
			AddRow(uuid.New(), uuid.New(), "order_sync", "completed", 1, now).
			AddRow(uuid.New(), uuid.New(), "product_sync", "failed", 3, now.Add(-time.Hour))

		mock.ExpectQuery(`SELECT \* FROM "sync_jobs" ORDER BY enqueued_at DESC LIMIT .*`).
			WithArgs(20).
			WillReturnRows(rows)

		jobs, err := repo.Recent(context.Background(), 20)

		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, job.TypeOrderSync, jobs[0].Type)
		assert.Equal(t, job.StatusFailed, jobs[1].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobRepository_PruneOlderThan(t *testing.T) {
	t.Run("deletes only finished rows and reports the count", func(t *testing.T) {
		repo, mock, mockDB := newMockJobRepository(t)
		defer mockDB.Close()

		cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
		mock.ExpectExec(`DELETE FROM "sync_jobs" WHERE enqueued_at < \$1 AND status IN \(\$2,\$3\)`).
			WithArgs(cutoff, "completed", "failed").
			WillReturnResult(sqlmock.NewResult(0, 42))

		pruned, err := repo.PruneOlderThan(context.Background(), cutoff)

		require.NoError(t, err)
		assert.Equal(t, int64(42), pruned)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
