package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pricescout/pricescout/internal/adapter/gemini"
	"github.com/pricescout/pricescout/internal/adapter/googlecse"
	pshttp "github.com/pricescout/pricescout/internal/adapter/http"
	"github.com/pricescout/pricescout/internal/adapter/memstore"
	psnats "github.com/pricescout/pricescout/internal/adapter/nats"
	"github.com/pricescout/pricescout/internal/adapter/natskv"
	"github.com/pricescout/pricescout/internal/adapter/otel"
	"github.com/pricescout/pricescout/internal/adapter/postgres"
	"github.com/pricescout/pricescout/internal/adapter/ristretto"
	"github.com/pricescout/pricescout/internal/adapter/taskcache"
	"github.com/pricescout/pricescout/internal/adapter/tiered"
	"github.com/pricescout/pricescout/internal/adapter/webpage"
	"github.com/pricescout/pricescout/internal/adapter/ws"
	"github.com/pricescout/pricescout/internal/config"
	"github.com/pricescout/pricescout/internal/logger"
	"github.com/pricescout/pricescout/internal/middleware"
	"github.com/pricescout/pricescout/internal/port/taskstore"
	"github.com/pricescout/pricescout/internal/resilience"
	"github.com/pricescout/pricescout/internal/service"
)

const serviceName = "pricescout"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"store_backend", cfg.Store.Backend,
		"task_ttl", cfg.Store.TTL,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTelemetry, err := otel.Setup(ctx, cfg.Telemetry, serviceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Task store ---
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Event queue (optional, best-effort) ---
	var queue *psnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = psnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, lifecycle events disabled", "url", cfg.NATS.URL, "error", err)
			queue = nil
		} else {
			defer func() { _ = queue.Close() }()
		}
	}

	// --- Source adapters ---
	searchBreaker := resilience.NewBreaker("google-cse", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	discoverer := googlecse.NewClient(cfg.Google)
	discoverer.SetBreaker(searchBreaker)

	fetcher := webpage.NewFetcher()

	extractBreaker := resilience.NewBreaker("gemini", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	extractor := gemini.NewExtractor(cfg.Gemini)
	extractor.SetBreaker(extractBreaker)

	// --- Services ---
	pipeline := service.NewPipeline(fetcher, extractor, cfg.Aggregator.SourceTimeout, metrics)
	aggregator := service.NewAggregator(discoverer, pipeline, cfg.Aggregator.GlobalDeadline, cfg.Aggregator.MaxInFlight, metrics)
	taskSvc := service.NewTaskService(store, aggregator, cfg.Store.TTL, metrics)

	hub := ws.NewHub()
	taskSvc.SetBroadcaster(hub)
	if queue != nil {
		taskSvc.SetEventPublisher(queue)
	}

	// --- HTTP ---
	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	handlers := &pshttp.Handlers{Tasks: taskSvc}

	r := chi.NewRouter()

	r.Use(pshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(pshttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(limiter.Handler)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(serviceName))
	}

	r.Get("/health", healthHandler(cfg, searchBreaker, extractBreaker))
	r.Get("/ws", hub.HandleWS)

	pshttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// buildStore assembles the task store selected by config. The returned
// close func stops background maintenance and releases connections.
func buildStore(ctx context.Context, cfg *config.Config) (taskstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		s := memstore.New()
		stop := s.StartSweep(cfg.Store.TTL / 2)
		slog.Info("task store ready", "backend", "memory")
		return s, stop, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		s := postgres.NewTaskStore(pool)
		stopJanitor := s.StartJanitor(cfg.Postgres.JanitorInterval)
		slog.Info("task store ready", "backend", "postgres")
		return s, func() {
			stopJanitor()
			pool.Close()
		}, nil

	case "tiered":
		queue, err := psnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("nats: %w", err)
		}
		kv, err := queue.KeyValue(ctx, cfg.Store.Bucket, cfg.Store.TTL)
		if err != nil {
			_ = queue.Close()
			return nil, nil, fmt.Errorf("nats kv: %w", err)
		}
		l1, err := ristretto.New(cfg.Store.L1MaxSizeMB << 20)
		if err != nil {
			_ = queue.Close()
			return nil, nil, fmt.Errorf("ristretto: %w", err)
		}
		c := tiered.New(l1, natskv.New(kv), cfg.Store.TTL)
		slog.Info("task store ready", "backend", "tiered", "bucket", cfg.Store.Bucket)
		return taskcache.New(c), func() {
			l1.Close()
			_ = queue.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config, breakers ...*resilience.Breaker) http.HandlerFunc {
	type healthStatus struct {
		Status   string            `json:"status"`
		Store    string            `json:"store"`
		NATS     string            `json:"nats,omitempty"`
		Breakers map[string]string `json:"breakers"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:   "ok",
			Store:    cfg.Store.Backend,
			NATS:     cfg.NATS.URL,
			Breakers: make(map[string]string, len(breakers)),
		}
		for _, b := range breakers {
			status.Breakers[b.Name()] = string(b.State())
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
