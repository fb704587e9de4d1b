//go:build db
// +build db

package counters

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/internal/testdb"
	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/angelmondragon/poflow-backend/pkg/db"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/migrate"
)

func openPostgres(t *testing.T) *db.Client {
	t.Helper()

	dsn := os.Getenv(config.EnvDBDSN)
	if dsn == "" {
		t.Skip(config.EnvDBDSN + " is not set")
	}

	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{
		Driver:       db.DriverPostgres,
		DSN:          dsn,
		MaxOpenConns: 20,
		LockTimeout:  2 * time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.NoError(t, migrate.RunEmbedded(ctx, sqlDB, "up"))
	return client
}

func TestPostgresConcurrentAllocationIsGapFree(t *testing.T) {
	client := openPostgres(t)
	conn := client.DB()
	org := testdb.SeedOrganization(t, conn)
	t.Cleanup(func() {
		conn.Where("organization_id = ?", org.ID).Delete(&models.Counter{})
		conn.Delete(&models.Organization{}, "id = ?", org.ID)
	})

	opts := Options{MaxAttempts: 10, InitialBackoff: 5 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, LockTimeout: 2 * time.Second}
	svc, err := NewService(NewRepository(conn), client, opts)
	require.NoError(t, err)

	const workers = 25
	values := make([]int64, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.NextValue(context.Background(), org.ID, PurchaseOrderCounter)
			if err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return
			}
			values[i] = v
		}(i)
	}
	wg.Wait()
	require.Empty(t, failures)

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		assert.Equal(t, int64(i+1), v)
	}
}

func TestPostgresAllocationRollsBackWithCaller(t *testing.T) {
	client := openPostgres(t)
	conn := client.DB()
	org := testdb.SeedOrganization(t, conn)
	t.Cleanup(func() {
		conn.Where("organization_id = ?", org.ID).Delete(&models.Counter{})
		conn.Delete(&models.Organization{}, "id = ?", org.ID)
	})

	svc, err := NewService(NewRepository(conn), client, Options{LockTimeout: time.Second})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := svc.NextValue(ctx, org.ID, PurchaseOrderCounter)
	require.NoError(t, err)
	require.Equal(t, int64(1), first)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := svc.NextValueTx(ctx, tx, org.ID, PurchaseOrderCounter); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	next, err := svc.NextValue(ctx, org.ID, PurchaseOrderCounter)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}
