package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/eirenox/kdata-gateway/internal/auth"
	"github.com/eirenox/kdata-gateway/internal/cache"
	"github.com/eirenox/kdata-gateway/internal/config"
	"github.com/eirenox/kdata-gateway/internal/egress"
	"github.com/eirenox/kdata-gateway/internal/gateway"
	"github.com/eirenox/kdata-gateway/internal/ratelimit"
	"github.com/eirenox/kdata-gateway/internal/telemetry"
	"github.com/eirenox/kdata-gateway/internal/upstream"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (gateway will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (caching, rate limits, and quotas disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	// Load egress policies
	gate := egress.NewEvaluator(func() config.EgressConfig {
		return loader.Config().Egress
	})
	if loader.Config().Egress.Enabled {
		if err := gate.Load(); err != nil {
			logger.Error("failed to load egress policies", "error", err)
			os.Exit(1)
		}
	}

	// Build endpoint registry
	registry := upstream.BuildFromConfig(context.Background(), loader.Endpoints(), cfg.Upstream, gate, metrics.RecordHandshake)
	loader.OnReload(func() {
		if loader.Config().Egress.Enabled {
			if err := gate.Load(); err != nil {
				logger.Error("egress policy reload failed, keeping previous", "error", err)
				return
			}
		}
		next := upstream.BuildFromConfig(context.Background(), loader.Endpoints(), loader.Config().Upstream, gate, metrics.RecordHandshake)
		registry.ReplaceFrom(next)
		logger.Info("endpoint registry reloaded", "endpoints", len(registry.Names()))
	})

	breakerCfg := cfg.Upstream.CircuitBreaker
	healthTracker := upstream.NewHealthTracker(breakerCfg.FailureThreshold, breakerCfg.RecoveryProbeInterval)

	// Build handler
	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	limiter := ratelimit.NewLimiter(rdb)
	quota := ratelimit.NewQuotaTracker(rdb)
	handler := gateway.NewHandler(registry, healthTracker, quota, cache.New(rdb), metrics)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/kdata/v1/health", handler.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		r.Use(ratelimit.Middleware(limiter, metrics))
		r.Get("/v1/endpoints", handler.ListEndpoints)
		r.Get("/v1/fetch/{endpoint}/*", handler.Fetch)
		r.Post("/v1/fetch/{endpoint}/*", handler.Fetch)
	})

	// Metrics server
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			logger.Info("metrics server starting", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
