package postcommit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/angelmondragon/poflow-backend/pkg/metrics"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultMaxGoroutines = 4
)

// Hook is a side effect that must only run once the owning transaction has
// committed. Its failure never affects the primary operation.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Dispatcher schedules hooks after commit.
type Dispatcher interface {
	Dispatch(ctx context.Context, hooks ...Hook)
}

// Options configures a Runner.
type Options struct {
	Timeout time.Duration
	// Sync makes Dispatch block until all hooks finish.
	Sync bool
}

// Runner executes hooks concurrently, recovering panics and logging failures.
type Runner struct {
	logg    *logger.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	sync    bool
	wg      sync.WaitGroup
}

func NewRunner(logg *logger.Logger, m *metrics.Metrics, opts Options) *Runner {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{logg: logg, metrics: m, timeout: timeout, sync: opts.Sync}
}

// Dispatch runs hooks detached from the caller's cancellation so a finished
// HTTP request does not abort pending notifications.
func (r *Runner) Dispatch(ctx context.Context, hooks ...Hook) {
	if len(hooks) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	if r.sync {
		_ = r.Run(detached, hooks...)
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Run(detached, hooks...)
	}()
}

// Run executes hooks and returns their combined failures.
func (r *Runner) Run(ctx context.Context, hooks ...Hook) error {
	var (
		mu   sync.Mutex
		errs error
	)

	p := pool.New().WithMaxGoroutines(defaultMaxGoroutines)
	for _, hook := range hooks {
		if hook.Fn == nil {
			continue
		}
		p.Go(func() {
			err := r.runOne(ctx, hook)
			if err == nil {
				return
			}
			mu.Lock()
			errs = multierr.Append(errs, err)
			mu.Unlock()
		})
	}
	p.Wait()
	return errs
}

// Wait blocks until all asynchronously dispatched hooks have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) runOne(ctx context.Context, hook Hook) error {
	hctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var err error
	if recovered := panics.Try(func() { err = hook.Fn(hctx) }); recovered != nil {
		err = recovered.AsError()
	}
	if err == nil {
		return nil
	}

	err = fmt.Errorf("post-commit hook %s: %w", hook.Name, err)
	r.metrics.IncHookFailure(hook.Name)
	if r.logg != nil {
		r.logg.Error(r.logg.WithField(ctx, "hook", hook.Name), "post-commit hook failed", err)
	}
	return err
}
