package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	conhttp "github.com/voidukas/conductor/internal/adapter/http"
	"github.com/voidukas/conductor/internal/adapter/litellm"
	connats "github.com/voidukas/conductor/internal/adapter/nats"
	conotel "github.com/voidukas/conductor/internal/adapter/otel"
	"github.com/voidukas/conductor/internal/adapter/postgres"
	"github.com/voidukas/conductor/internal/adapter/ristretto"
	"github.com/voidukas/conductor/internal/adapter/ws"
	"github.com/voidukas/conductor/internal/config"
	"github.com/voidukas/conductor/internal/domain/decomp"
	"github.com/voidukas/conductor/internal/domain/tier"
	"github.com/voidukas/conductor/internal/logger"
	"github.com/voidukas/conductor/internal/port/archive"
	"github.com/voidukas/conductor/internal/port/auditlog"
	"github.com/voidukas/conductor/internal/port/broadcast"
	"github.com/voidukas/conductor/internal/resilience"
	"github.com/voidukas/conductor/internal/service"
)

const analysisCacheBytes = 64 << 20 // 64 MB

func main() {
	if len(os.Args) > 1 && os.Args[1] == "apikey" {
		if err := runAPIKey(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"default_tier", cfg.Orchestrator.DefaultTier,
	)

	ctx := context.Background()

	// --- Telemetry ---
	providers, err := conotel.Init(cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	// --- Infrastructure ---

	// PostgreSQL audit and workflow archives. Optional: an empty DSN keeps
	// history in-process only.
	var audit auditlog.Sink = auditlog.Nop{}
	var workflowStore archive.Store = archive.Nop{}
	if cfg.Postgres.DSN != "" {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		pgAudit := postgres.NewArchive(pool)
		defer pgAudit.Close()
		audit = pgAudit
		workflowStore = postgres.NewWorkflowArchive(pool)
		log.Info("postgres archives connected")
	}

	// WebSocket hub plus optional NATS relay, fanned out as one broadcaster.
	hub := ws.NewHub()
	broadcasters := broadcast.Fanout{hub}

	if cfg.NATS.URL != "" {
		queue, err := connats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
		broadcasters = append(broadcasters, connats.NewRelay(queue))
		log.Info("nats relay connected", "url", cfg.NATS.URL)
	}

	if cfg.Telemetry.Enabled {
		metrics, err := conotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		broadcasters = append(broadcasters, metrics)
	}

	// Analysis cache
	analysisCache, err := ristretto.New(analysisCacheBytes)
	if err != nil {
		return fmt.Errorf("analysis cache: %w", err)
	}
	defer analysisCache.Close()

	// Model proxy
	llm := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---
	resources := service.NewResourceService(cfg.Resources)
	protocol := service.NewProtocolService(cfg.Orchestrator.LockTTL, audit)
	decomposer := service.NewDecomposerService(analysisCache, cfg.Orchestrator.AnalysisCacheTTL)
	router := service.NewRouterService(decomposer)

	coordinator := service.NewCoordinatorService(cfg.Orchestrator, service.CoordinatorDeps{
		Protocol:    protocol,
		Resources:   resources,
		Router:      router,
		Invoker:     llm,
		Broadcaster: broadcasters,
		Audit:       audit,
		Archive:     workflowStore,
	})

	if cfg.Orchestrator.DefaultTier != "" {
		if err := coordinator.Initialize(ctx, tier.Tier(cfg.Orchestrator.DefaultTier), decomp.Strategy("")); err != nil {
			return fmt.Errorf("initialize pool: %w", err)
		}
	}

	// --- HTTP ---
	handlers := conhttp.NewHandlers(coordinator, protocol, resources, decomposer, router, hub, llm)

	r := chi.NewRouter()
	r.Use(conhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(conhttp.SecurityHeaders)
	r.Use(conhttp.RequestID)
	r.Use(conhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(conotel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(conhttp.APIKeyAuth(cfg.Auth.APIKeyHash))

	conhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // ExecuteTask blocks until the workflow finishes
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
