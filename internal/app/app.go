// Package app wires fleetd's capability and domain packages together and
// runs the process in one of three modes: server (healthz/metrics only),
// worker (runs the worker supervisor), or migrate (applies migrations then
// exits).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wisbric/fleetd/internal/caservice"
	"github.com/wisbric/fleetd/internal/cluster"
	"github.com/wisbric/fleetd/internal/config"
	"github.com/wisbric/fleetd/internal/connector"
	"github.com/wisbric/fleetd/internal/externalops"
	"github.com/wisbric/fleetd/internal/manifest"
	"github.com/wisbric/fleetd/internal/notify"
	"github.com/wisbric/fleetd/internal/platform"
	"github.com/wisbric/fleetd/internal/provisioner"
	"github.com/wisbric/fleetd/internal/rbac"
	"github.com/wisbric/fleetd/internal/store"
	"github.com/wisbric/fleetd/internal/telemetry"
	"github.com/wisbric/fleetd/internal/vault"
	"github.com/wisbric/fleetd/internal/workers"
)

// Run is the process entry point. It reads config, connects to
// infrastructure, and starts the mode cfg.Mode selects.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting fleetd", "mode", cfg.Mode)

	if cfg.Mode == "migrate" {
		if err := platform.RunMigrations(cfg.DatabaseURL(), cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewRegistry(telemetry.All()...)

	st := store.New(db)

	vlt, err := vault.New(cfg.EncryptionKey, logger)
	if err != nil {
		return fmt.Errorf("creating credential vault: %w", err)
	}

	switch cfg.Mode {
	case "server":
		return runServer(ctx, cfg, logger, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, st, vlt)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// runServer exposes only the metrics and health surface — the mode used
// behind a load balancer's liveness/readiness checks when fleetd's
// provisioning and reconciliation work runs entirely in worker processes.
func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, metricsReg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.MetricsAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker wires the domain layer and runs every worker under one
// supervisor until ctx is cancelled.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, st *store.Store, vlt *vault.Vault) error {
	rbacChecker := rbac.New(st)

	// The cluster substrate and manifest templating engine are external
	// collaborators (see their package docs) — a real deployment supplies
	// its own client-go-backed Client and its own Templater (Helm, kustomize,
	// or a raw text/template set) at this seam. NewFake stands in here so
	// fleetd boots standalone; swap it for a concrete implementation by
	// replacing this one call.
	clusterClient := cluster.NewFake()
	templater := manifest.NewFakeTemplater()

	prov := provisioner.New(st, vlt, clusterClient, templater, rbacChecker, logger)

	registry := connector.NewRegistry()
	connector.RegisterDefaults(registry)

	ops := externalops.New(st, vlt, registry, rbacChecker, logger)

	notifier := notify.NewSlackSink(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	ca := caservice.New()

	backend, err := newBackupBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating backup backend: %w", err)
	}

	_ = prov // provisioner is exercised via the (not-yet-built) admin API surface; kept wired here so its dependencies are validated at startup.

	sup := workers.NewSupervisor(logger,
		workers.NewBackupScheduler(st, ops, backend, logger, cfg.BackupRetentionDays),
		workers.NewCertRotator(st, ca, ops, clusterClient, notifier, logger,
			time.Duration(cfg.CertCheckIntervalSeconds)*time.Second, cfg.CertNotificationThresholdDays),
		workers.NewStatsCollector(st, clusterClient, ops, notifier, logger,
			time.Duration(cfg.StatsIntervalSeconds)*time.Second),
		workers.NewUserSyncWorker(st, ops, logger,
			time.Duration(cfg.UserSyncIntervalSeconds)*time.Second, cfg.UserSyncBatchSize),
	)

	logger.Info("worker supervisor starting")
	sup.Run(ctx)
	logger.Info("worker supervisor stopped")
	return nil
}

func newBackupBackend(ctx context.Context, cfg *config.Config) (workers.Backend, error) {
	switch cfg.BackupBackendType {
	case "s3":
		return workers.NewS3Backend(ctx, cfg.BackupS3Bucket, cfg.BackupS3Region)
	default:
		return workers.LocalBackend{Dir: cfg.BackupLocalDir}, nil
	}
}
