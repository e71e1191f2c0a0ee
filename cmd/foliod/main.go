// foliod runs the identity housekeeping daemon: it applies schema
// migrations, serves the metrics endpoint and executes the scheduled
// session-purge and lockout-reset jobs. The identity core itself is a
// library consumed by the application servers.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openfolio/identity/pkg/config"
	"github.com/openfolio/identity/pkg/maintenance"
	"github.com/openfolio/identity/pkg/observability"
	"github.com/openfolio/identity/pkg/session"
	"github.com/openfolio/identity/pkg/storage"
	"github.com/openfolio/identity/pkg/user"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}
	if providers != nil {
		defer providers.Shutdown(context.Background())
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	sessions := session.NewStore(cfg.Redis, cfg.Session.Timeout)
	defer sessions.Close()
	if err := sessions.Ping(ctx); err != nil {
		logger.WithError(err).Error("Failed to reach session store")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	observability.NewMetrics(registry)
	if cfg.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
			if err := sessions.Ping(r.Context()); err != nil {
				http.Error(w, "session store unreachable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		server := &http.Server{Addr: cfg.Observability.MetricsAddr, Handler: mux}
		go func() {
			logger.WithField("addr", cfg.Observability.MetricsAddr).Info("Metrics endpoint listening")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Metrics endpoint failed")
			}
		}()
		defer server.Shutdown(context.Background())
	}

	scheduler, err := maintenance.NewScheduler(user.NewStore(db), logger)
	if err != nil {
		logger.WithError(err).Error("Failed to build maintenance scheduler")
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("Identity housekeeping daemon ready")
	<-ctx.Done()
	logger.Info("Shutting down")
}
