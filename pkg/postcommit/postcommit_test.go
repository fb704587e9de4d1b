package postcommit

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestRunCollectsFailuresWithoutStoppingOthers(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	runner := NewRunner(logg, nil, Options{Timeout: time.Second})

	var ran int32
	err := runner.Run(context.Background(),
		Hook{Name: "ok", Fn: func(context.Context) error { atomic.AddInt32(&ran, 1); return nil }},
		Hook{Name: "fails", Fn: func(context.Context) error { atomic.AddInt32(&ran, 1); return errors.New("smtp down") }},
		Hook{Name: "panics", Fn: func(context.Context) error { atomic.AddInt32(&ran, 1); panic("nil map") }},
		Hook{Name: "skipped"},
	)

	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "post-commit hook fails")
	assert.Contains(t, err.Error(), "post-commit hook panics")
	assert.Contains(t, buf.String(), `"hook":"fails"`)
}

func TestHookContextHasTimeout(t *testing.T) {
	runner := NewRunner(nil, nil, Options{Timeout: 20 * time.Millisecond})
	err := runner.Run(context.Background(), Hook{Name: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatchIgnoresCallerCancellation(t *testing.T) {
	runner := NewRunner(nil, nil, Options{Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	done := make(chan struct{})
	runner.Dispatch(ctx, Hook{Name: "notify", Fn: func(hctx context.Context) error {
		seen = hctx.Err()
		close(done)
		return nil
	}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hook did not run")
	}
	runner.Wait()
	assert.NoError(t, seen)
}

func TestDispatchSyncRunsInline(t *testing.T) {
	runner := NewRunner(nil, nil, Options{Sync: true})
	var ran bool
	runner.Dispatch(context.Background(), Hook{Name: "inline", Fn: func(context.Context) error {
		ran = true
		return nil
	}})
	assert.True(t, ran)
}
