package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/poflow-backend/api/controllers"
	"github.com/angelmondragon/poflow-backend/api/responses"
	"github.com/angelmondragon/poflow-backend/api/routes"
	"github.com/angelmondragon/poflow-backend/internal/approvals"
	"github.com/angelmondragon/poflow-backend/internal/counters"
	"github.com/angelmondragon/poflow-backend/internal/invoiceupload"
	"github.com/angelmondragon/poflow-backend/internal/notifications"
	"github.com/angelmondragon/poflow-backend/internal/organizations"
	"github.com/angelmondragon/poflow-backend/internal/purchaseorders"
	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/angelmondragon/poflow-backend/pkg/db"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/angelmondragon/poflow-backend/pkg/metrics"
	"github.com/angelmondragon/poflow-backend/pkg/migrate"
	"github.com/angelmondragon/poflow-backend/pkg/postcommit"
	"github.com/angelmondragon/poflow-backend/pkg/pubsub"
	"github.com/angelmondragon/poflow-backend/pkg/redis"
	"github.com/angelmondragon/poflow-backend/pkg/sentry"
	"github.com/angelmondragon/poflow-backend/pkg/storage/gcs"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter, err := sentry.New(cfg.Sentry, cfg.App.Env)
	if err != nil {
		logg.Error(ctx, "failed to init sentry", err)
		os.Exit(1)
	}
	defer reporter.Flush(2 * time.Second)
	responses.SetErrorReporter(reporter)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer gcsClient.Close()

	readiness := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
		"gcs":   gcsClient,
	}

	var notifier notifications.Notifier = notifications.NewLogNotifier(logg)
	if cfg.FeatureFlags.Notifications {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer pubsubClient.Close()
		readiness["pubsub"] = pubsubClient

		pubsubNotifier, err := notifications.NewPubSubNotifier(pubsubClient, logg)
		if err != nil {
			logg.Error(ctx, "failed to create notifier", err)
			os.Exit(1)
		}
		notifier = pubsubNotifier
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	hooks := postcommit.NewRunner(logg, m, postcommit.Options{Timeout: cfg.Notifications.HookTimeout})

	conn := dbClient.DB()
	userRepo := users.NewRepository(conn)
	orgRepo := organizations.NewRepository(conn)
	poRepo := purchaseorders.NewRepository(conn)
	numbering := purchaseorders.Numbering{Prefix: cfg.PurchaseOrder.NumberPrefix, Padding: cfg.PurchaseOrder.NumberPadding}

	counterOpts := counters.OptionsFromConfig(cfg)
	counterOpts.Metrics = m
	counterOpts.Logger = logg
	counterSvc, err := counters.NewService(counters.NewRepository(conn), dbClient, counterOpts)
	if err != nil {
		logg.Error(ctx, "failed to create counter service", err)
		os.Exit(1)
	}

	poSvc, err := purchaseorders.NewService(poRepo, dbClient, orgRepo, counterSvc, numbering)
	if err != nil {
		logg.Error(ctx, "failed to create purchase order service", err)
		os.Exit(1)
	}

	approvalSvc, err := approvals.NewService(approvals.Deps{
		Requests:       approvals.NewRepository(conn),
		PurchaseOrders: poRepo,
		Organizations:  orgRepo,
		Users:          userRepo,
		Numbers:        counterSvc,
		Numbering:      numbering,
		Tx:             dbClient,
		Notifier:       notifier,
		Hooks:          hooks,
		Metrics:        m,
	})
	if err != nil {
		logg.Error(ctx, "failed to create approval service", err)
		os.Exit(1)
	}

	uploadSvc, err := invoiceupload.NewService(invoiceupload.Deps{
		Repo:          invoiceupload.NewRepository(conn),
		Organizations: orgRepo,
		Store:         gcsClient,
		Notifier:      notifier,
		Hooks:         hooks,
		Metrics:       m,
		Logger:        logg,
		Options:       invoiceupload.OptionsFromConfig(cfg),
	})
	if err != nil {
		logg.Error(ctx, "failed to create invoice upload service", err)
		os.Exit(1)
	}

	orgSvc, err := organizations.NewService(orgRepo, userRepo, dbClient, notifier, hooks)
	if err != nil {
		logg.Error(ctx, "failed to create organization service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			m,
			registry,
			readiness,
			userRepo,
			redisClient,
			poSvc,
			approvalSvc,
			uploadSvc,
			orgSvc,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			hooks.Wait()
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logg.Info(context.WithoutCancel(ctx), "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "graceful shutdown failed", err)
	}
	hooks.Wait()
}
