package controllers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/angelmondragon/poflow-backend/api/responses"
	"github.com/angelmondragon/poflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
)

const readinessTimeout = 3 * time.Second

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "live", "env": cfg.App.Env})
	}
}

// HealthReady pings every named dependency concurrently and reports 503 with
// the failing names when any of them is unreachable.
func HealthReady(logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			failed = map[string]string{}
			wg     conc.WaitGroup
		)
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			wg.Go(func() {
				if err := dep.Ping(ctx); err != nil {
					mu.Lock()
					failed[name] = err.Error()
					mu.Unlock()
				}
			})
		}
		wg.Wait()

		if len(failed) > 0 {
			names := make([]string, 0, len(failed))
			for name := range failed {
				names = append(names, name)
			}
			sort.Strings(names)
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"failed": names}))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
