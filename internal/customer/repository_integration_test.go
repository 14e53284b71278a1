package customer_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/rapport-app/rapport/internal/customer"
	"github.com/rapport-app/rapport/internal/session"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Spins up a throwaway Postgres container and runs the remote repositories
// against it. Gated behind RAPPORT_INTEGRATION so the regular suite stays
// docker-free.
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	if os.Getenv("RAPPORT_INTEGRATION") == "" {
		t.Skip("set RAPPORT_INTEGRATION=1 to run docker-backed integration tests")
	}

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "14-alpine",
		Env: []string{
			"POSTGRES_USER=rapport",
			"POSTGRES_PASSWORD=rapport",
			"POSTGRES_DB=rapport",
		},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})

	var dbConn *gorm.DB

	pool.MaxWait = 2 * time.Minute

	err = pool.Retry(func() error {
		dsn := fmt.Sprintf(
			"host=localhost user=rapport password=rapport dbname=rapport port=%s sslmode=disable",
			resource.GetPort("5432/tcp"),
		)

		var openErr error

		dbConn, openErr = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if openErr != nil {
			return openErr
		}

		sqlDB, dbErr := dbConn.DB()
		if dbErr != nil {
			return dbErr
		}

		return sqlDB.Ping()
	})
	require.NoError(t, err)

	require.NoError(t, dbConn.AutoMigrate(&customer.Customer{}, &session.Session{}))

	return dbConn
}

func TestCustomerRepositoryLifecycle(t *testing.T) {
	dbConn := setupPostgres(t)
	ctx := context.Background()

	customers := customer.NewRepository(dbConn)
	sessions := session.NewRepository(dbConn)

	require.NoError(t, customers.Create(ctx, &customer.Customer{ID: "c-1", Name: "Avery"}))
	require.NoError(t, customers.Create(ctx, &customer.Customer{ID: "c-2", Name: "Blake"}))

	listed, err := customers.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "c-1", listed[0].ID)

	older := &session.Session{
		ID:         "c-1-1",
		CustomerID: "c-1",
		Date:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:     session.StatusPending,
	}
	newer := &session.Session{
		ID:         "c-1-2",
		CustomerID: "c-1",
		Date:       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Status:     session.StatusPending,
	}

	require.NoError(t, sessions.Upsert(ctx, older))
	require.NoError(t, sessions.Upsert(ctx, newer))

	older.Status = session.StatusUploaded
	older.AudioURL = "https://store.local/c-1-1"
	require.NoError(t, sessions.Upsert(ctx, older))

	byCustomer, err := sessions.ListByCustomer(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, byCustomer, 2)
	require.Equal(t, "c-1-2", byCustomer[0].ID)
	require.Equal(t, session.StatusUploaded, byCustomer[1].Status)

	require.NoError(t, sessions.DeleteByCustomer(ctx, "c-1"))
	require.NoError(t, customers.Delete(ctx, "c-1"))

	byCustomer, err = sessions.ListByCustomer(ctx, "c-1")
	require.NoError(t, err)
	require.Empty(t, byCustomer)

	listed, err = customers.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}
