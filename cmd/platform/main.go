package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/carebridge/platform/internal/api"
	"github.com/carebridge/platform/internal/audit"
	"github.com/carebridge/platform/internal/case/domain"
	caseinfra "github.com/carebridge/platform/internal/case/infrastructure"
	"github.com/carebridge/platform/internal/case/manager"
	"github.com/carebridge/platform/internal/engine"
	"github.com/carebridge/platform/internal/followup"
	"github.com/carebridge/platform/internal/notify"
	"github.com/carebridge/platform/internal/shared/auth"
	"github.com/carebridge/platform/internal/shared/config"
	"github.com/carebridge/platform/internal/shared/database"
	"github.com/carebridge/platform/internal/shared/events"
	"github.com/carebridge/platform/internal/shared/logging"
	"github.com/carebridge/platform/internal/shared/metrics"
	secmiddleware "github.com/carebridge/platform/internal/shared/middleware"
	"github.com/carebridge/platform/internal/staff"
	"github.com/carebridge/platform/internal/stats"
	"github.com/carebridge/platform/internal/triage"
)

// App holds the long-lived application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	DB     *database.DB
	Stream *events.StreamPublisher
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Server.Env, os.Getenv("LOG_LEVEL"))
	app := &App{Config: cfg, Logger: logger}

	// Postgres is required for the postgres backend and optional otherwise.
	if cfg.Storage.Backend == "postgres" {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres backend selected but database unavailable")
		}
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			logger.Fatal().Err(err).Msg("database migration failed")
		}
	}

	bus := events.NewMemoryBus(logging.Component(logger, "bus"))
	defer bus.Close()

	// Durable audit trail, when configured.
	if cfg.EventStream.Enabled {
		stream, err := events.NewStreamPublisher(cfg.EventStream)
		if err != nil {
			logger.Warn().Err(err).Msg("event stream unavailable, audit trail disabled")
		} else {
			app.Stream = stream
			defer stream.Close()
			audit.NewSubscriber(stream, logging.Component(logger, "audit")).Attach(bus)
			logger.Info().Msg("audit trail attached to event stream")
		}
	}

	// Storage backends.
	var caseRepo domain.Repository
	var fuRepo followup.Repository
	if app.DB != nil {
		caseRepo = caseinfra.NewPostgresRepository(app.DB.Pool)
		fuRepo = followup.NewPostgresRepository(app.DB.Pool)
	} else {
		caseRepo = caseinfra.NewMemoryRepository()
		fuRepo = followup.NewMemoryRepository()
	}

	// Staff directory.
	var directory staff.Directory
	if cfg.StaffDir.Source == "legacy_his" {
		legacy, err := staff.NewLegacyDirectory(cfg.StaffDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open legacy staff directory")
		}
		defer legacy.Close()
		directory = legacy
	} else {
		directory = staff.NewMemoryDirectory()
	}

	// Notification dispatch.
	var provider notify.Provider
	if cfg.Notifications.WebhookURL != "" {
		provider = notify.NewWebhookProvider(cfg.Notifications.WebhookURL)
	} else {
		provider = notify.NewLogProvider(logging.Component(logger, "notify"))
	}
	notifier := notify.NewService(provider, cfg.Notifications, logging.Component(logger, "notify"))
	if err := notifier.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start notification dispatcher")
	}
	defer notifier.Stop()

	// Triage pipeline.
	var inference triage.Inferencer
	if cfg.Inference.Enabled {
		inference = triage.NewHTTPInference(cfg.Inference)
	}
	triageEngine := triage.NewEngine(inference, bus, logging.Component(logger, "triage"))

	mgr := manager.New(caseRepo, bus, notifier, logging.Component(logger, "case-manager"), manager.Config{
		ResolvedGracePeriod: cfg.Scheduler.ResolvedGracePeriod,
	})
	mgr.SubscribeToEvents()
	go mgr.Run(ctx)
	defer mgr.Stop()

	scheduler := followup.NewScheduler(fuRepo, notifier, bus, logging.Component(logger, "scheduler"), cfg.Scheduler.TickInterval)
	scheduler.SubscribeToEvents()
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	eng := engine.New(
		triageEngine,
		mgr,
		stats.NewAggregator(caseRepo, fuRepo),
		caseRepo,
		directory,
		notifier,
		logging.Component(logger, "engine"),
	)
	eng.SetResponseService(followup.NewService(fuRepo, bus, eng, logging.Component(logger, "followup")))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.CORS)
	r.Use(secmiddleware.BodyLimit(1 << 20))
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.NewIPRateLimiter(50, 100).Middleware)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.Enforce {
			r.Use(auth.Middleware(cfg.Auth))
		}
		r.Mount("/", api.NewHandler(eng).Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
		close(done)
	}()

	logger.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Backend).
		Bool("inference", cfg.Inference.Enabled).
		Bool("event_stream", cfg.EventStream.Enabled).
		Msg("carebridge triage platform starting")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}

	<-done
	logger.Info().Msg("server stopped")
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"server": "ready"}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if app.Stream != nil {
			if err := app.Stream.Health(r.Context()); err != nil {
				checks["event_stream"] = "not ready: " + err.Error()
			} else {
				checks["event_stream"] = "ready"
			}
		} else {
			checks["event_stream"] = "not configured"
		}

		ready := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				ready = false
				break
			}
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[ready],
			"checks": checks,
		})
	}
}
