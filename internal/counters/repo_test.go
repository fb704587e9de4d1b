package counters

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/poflow-backend/internal/testdb"
	"github.com/angelmondragon/poflow-backend/pkg/db"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
)

func TestConcurrentNextValueYieldsDistinctSequence(t *testing.T) {
	conn := testdb.Open(t)
	org := testdb.SeedOrganization(t, conn)

	svc, err := NewService(NewRepository(conn), db.FromConn(conn), fastOptions())
	require.NoError(t, err)

	const workers = 20
	values := make([]int64, workers)
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.NextValue(context.Background(), org.ID, PurchaseOrderCounter)
			if err != nil {
				errs <- err
				return
			}
			values[i] = v
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		assert.Equal(t, int64(i+1), v)
	}

	var stored models.Counter
	require.NoError(t, conn.Where("organization_id = ? AND name = ?", org.ID, PurchaseOrderCounter).First(&stored).Error)
	assert.Equal(t, int64(workers), stored.Value)
}

func TestCountersAreScopedPerOrganizationAndName(t *testing.T) {
	conn := testdb.Open(t)
	a := testdb.SeedOrganization(t, conn)
	b := testdb.SeedOrganization(t, conn)

	svc, err := NewService(NewRepository(conn), db.FromConn(conn), fastOptions())
	require.NoError(t, err)
	ctx := context.Background()

	number, err := svc.GeneratePONumber(ctx, a.ID, "PO", 5)
	require.NoError(t, err)
	assert.Equal(t, "PO-00001", number)

	number, err = svc.GeneratePONumber(ctx, a.ID, "PO", 5)
	require.NoError(t, err)
	assert.Equal(t, "PO-00002", number)

	number, err = svc.GeneratePONumber(ctx, b.ID, "PO", 5)
	require.NoError(t, err)
	assert.Equal(t, "PO-00001", number)

	other, err := svc.NextValue(ctx, a.ID, "invoice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestRepositoryInsertEnforcesUniqueKey(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	orgID := uuid.New()

	require.NoError(t, repo.Insert(ctx, &models.Counter{OrganizationID: orgID, Name: "po", Value: 1}))
	err := repo.Insert(ctx, &models.Counter{OrganizationID: orgID, Name: "po", Value: 1})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}
