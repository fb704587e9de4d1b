package counters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/angelmondragon/poflow-backend/pkg/db"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/angelmondragon/poflow-backend/pkg/metrics"
)

const (
	// PurchaseOrderCounter is the counter name backing purchase order numbers.
	PurchaseOrderCounter = "purchase_order"

	DefaultPrefix  = "PO"
	DefaultPadding = 5

	defaultMaxAttempts    = 5
	defaultInitialBackoff = 25 * time.Millisecond
	defaultMaxBackoff     = time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service allocates gap-free, strictly increasing values per organization.
type Service interface {
	NextValue(ctx context.Context, orgID uuid.UUID, name string) (int64, error)
	// NextValueTx allocates inside a transaction owned by the caller. A
	// returned conflict poisons that transaction; wrap the caller's whole
	// transaction with RunWithRetry.
	NextValueTx(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, name string) (int64, error)
	GeneratePONumber(ctx context.Context, orgID uuid.UUID, prefix string, padding int) (string, error)
	GeneratePONumberTx(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, prefix string, padding int) (string, error)
	RunWithRetry(ctx context.Context, name string, fn func() error) error
}

// Options tunes retry behaviour around lock contention.
type Options struct {
	MaxAttempts    uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// LockTimeout bounds the row lock wait on Postgres. Zero leaves the server default.
	LockTimeout time.Duration
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

// OptionsFromConfig maps the counter and database settings onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxAttempts:    cfg.Counters.MaxAttempts,
		InitialBackoff: cfg.Counters.InitialBackoff,
		MaxBackoff:     cfg.Counters.MaxBackoff,
		LockTimeout:    cfg.DB.LockTimeout,
	}
}

type service struct {
	repo Repository
	tx   txRunner
	opts Options
}

// NewService builds a counter service with the required dependencies.
func NewService(repo Repository, tx txRunner, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("counters repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	return &service{repo: repo, tx: tx, opts: opts}, nil
}

func (s *service) NextValue(ctx context.Context, orgID uuid.UUID, name string) (int64, error) {
	if err := validateKey(orgID, name); err != nil {
		return 0, err
	}

	var value int64
	err := s.RunWithRetry(ctx, name, func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			v, err := s.NextValueTx(ctx, tx, orgID, name)
			if err != nil {
				return err
			}
			value = v
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (s *service) NextValueTx(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, name string) (int64, error) {
	if err := validateKey(orgID, name); err != nil {
		return 0, err
	}
	if err := db.SetLockTimeout(ctx, tx, s.opts.LockTimeout); err != nil {
		return 0, err
	}

	repo := s.repo.WithTx(tx)
	counter, err := repo.LockByName(ctx, orgID, name)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// A concurrent first insert surfaces as a unique violation and is retried.
		row := &models.Counter{OrganizationID: orgID, Name: name, Value: 1}
		if err := repo.Insert(ctx, row); err != nil {
			return 0, err
		}
		s.opts.Metrics.IncCounterAllocation(name)
		return 1, nil
	case err != nil:
		return 0, err
	}

	next := counter.Value + 1
	if err := repo.UpdateValue(ctx, counter.ID, next); err != nil {
		return 0, err
	}
	s.opts.Metrics.IncCounterAllocation(name)
	return next, nil
}

func (s *service) GeneratePONumber(ctx context.Context, orgID uuid.UUID, prefix string, padding int) (string, error) {
	value, err := s.NextValue(ctx, orgID, PurchaseOrderCounter)
	if err != nil {
		return "", err
	}
	return FormatPONumber(prefix, padding, value), nil
}

func (s *service) GeneratePONumberTx(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, prefix string, padding int) (string, error) {
	value, err := s.NextValueTx(ctx, tx, orgID, PurchaseOrderCounter)
	if err != nil {
		return "", err
	}
	return FormatPONumber(prefix, padding, value), nil
}

// RunWithRetry replays fn with exponential backoff while it fails with a
// counter conflict. fn must open its own transaction on every call.
func (s *service) RunWithRetry(ctx context.Context, name string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.InitialBackoff
	policy.MaxInterval = s.opts.MaxBackoff
	policy.MaxElapsedTime = 0

	op := func() error {
		err := fn()
		if err == nil || IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		s.opts.Metrics.IncCounterRetry(name)
		if s.opts.Logger != nil {
			logCtx := s.opts.Logger.WithFields(ctx, map[string]any{
				"counter": name,
				"wait_ms": wait.Milliseconds(),
				"error":   err.Error(),
			})
			s.opts.Logger.Debug(logCtx, "counter contention, retrying")
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, s.opts.MaxAttempts-1), ctx)
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	if IsRetryable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counter allocation contended").
			WithDetails(map[string]any{"counter": name, "attempts": s.opts.MaxAttempts})
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counter allocation cancelled")
	}
	return err
}

// IsRetryable reports whether err is an insert race or lock conflict after
// which the allocating transaction can be replayed.
func IsRetryable(err error) bool {
	if err == nil || pkgerrors.As(err) != nil {
		return false
	}
	return db.IsUniqueViolation(err, "") || db.IsRetryableConflict(err)
}

// FormatPONumber renders value as {prefix}-{value zero padded to padding}.
func FormatPONumber(prefix string, padding int, value int64) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if padding <= 0 {
		padding = DefaultPadding
	}
	return fmt.Sprintf("%s-%0*d", prefix, padding, value)
}

func validateKey(orgID uuid.UUID, name string) error {
	if orgID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	if strings.TrimSpace(name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "counter name required")
	}
	return nil
}
