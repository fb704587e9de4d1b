package counters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
)

type stubTxRunner struct {
	calls int
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.calls++
	return fn(nil)
}

type stubCounterRepo struct {
	counter   *models.Counter
	lockErr   error
	insertErr []error
	inserts   int
	updates   []int64
}

func (s *stubCounterRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubCounterRepo) LockByName(ctx context.Context, orgID uuid.UUID, name string) (*models.Counter, error) {
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	if s.counter == nil {
		return nil, gorm.ErrRecordNotFound
	}
	row := *s.counter
	return &row, nil
}

func (s *stubCounterRepo) Insert(ctx context.Context, counter *models.Counter) error {
	s.inserts++
	if len(s.insertErr) > 0 {
		err := s.insertErr[0]
		s.insertErr = s.insertErr[1:]
		if err != nil {
			// the competing insert won; the row is visible on retry
			s.counter = &models.Counter{ID: uuid.New(), OrganizationID: counter.OrganizationID, Name: counter.Name, Value: 1}
			return err
		}
	}
	s.counter = counter
	return nil
}

func (s *stubCounterRepo) UpdateValue(ctx context.Context, id uuid.UUID, value int64) error {
	s.updates = append(s.updates, value)
	s.counter.Value = value
	return nil
}

func fastOptions() Options {
	return Options{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, &stubTxRunner{}, Options{})
	require.Error(t, err)
	_, err = NewService(&stubCounterRepo{}, nil, Options{})
	require.Error(t, err)
}

func TestNextValueCreatesThenIncrements(t *testing.T) {
	repo := &stubCounterRepo{}
	svc, err := NewService(repo, &stubTxRunner{}, fastOptions())
	require.NoError(t, err)

	orgID := uuid.New()
	first, err := svc.NextValue(context.Background(), orgID, "invoice")
	require.NoError(t, err)
	second, err := svc.NextValue(context.Background(), orgID, "invoice")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, 1, repo.inserts)
	assert.Equal(t, []int64{2}, repo.updates)
}

func TestNextValueRetriesInsertRace(t *testing.T) {
	repo := &stubCounterRepo{
		insertErr: []error{errors.New("UNIQUE constraint failed: counters.organization_id, counters.name")},
	}
	tx := &stubTxRunner{}
	svc, err := NewService(repo, tx, fastOptions())
	require.NoError(t, err)

	value, err := svc.NextValue(context.Background(), uuid.New(), PurchaseOrderCounter)
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)
	assert.Equal(t, 2, tx.calls)
}

func TestNextValueGivesUpAfterMaxAttempts(t *testing.T) {
	repo := &stubCounterRepo{lockErr: errors.New("database is locked")}
	tx := &stubTxRunner{}
	svc, err := NewService(repo, tx, fastOptions())
	require.NoError(t, err)

	_, err = svc.NextValue(context.Background(), uuid.New(), PurchaseOrderCounter)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, 3, tx.calls)
}

func TestNextValueDoesNotRetryPermanentErrors(t *testing.T) {
	repo := &stubCounterRepo{lockErr: errors.New("relation \"counters\" does not exist")}
	tx := &stubTxRunner{}
	svc, err := NewService(repo, tx, fastOptions())
	require.NoError(t, err)

	_, err = svc.NextValue(context.Background(), uuid.New(), PurchaseOrderCounter)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
	assert.Equal(t, 1, tx.calls)
}

func TestNextValueValidatesKey(t *testing.T) {
	svc, err := NewService(&stubCounterRepo{}, &stubTxRunner{}, fastOptions())
	require.NoError(t, err)

	_, err = svc.NextValue(context.Background(), uuid.Nil, "x")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.NextValue(context.Background(), uuid.New(), "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRunWithRetryStopsOnCancelledContext(t *testing.T) {
	svc, err := NewService(&stubCounterRepo{}, &stubTxRunner{}, fastOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err = svc.RunWithRetry(ctx, "x", func() error {
		calls++
		return errors.New("deadlock detected: lock timeout")
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestFormatPONumber(t *testing.T) {
	cases := []struct {
		prefix  string
		padding int
		value   int64
		want    string
	}{
		{"PO", 5, 1, "PO-00001"},
		{"PO", 5, 123456, "PO-123456"},
		{"ACME", 3, 42, "ACME-042"},
		{"", 0, 7, "PO-00007"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatPONumber(tc.prefix, tc.padding, tc.value))
	}
}
