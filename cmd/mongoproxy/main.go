// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Command mongoproxy runs the MongoDB wire-protocol proxy: a listener that
// dials a single upstream backend per connection, inspects traffic through
// pkg/mongoproxy.Filter, and exposes Prometheus metrics and health/readiness
// endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/absmach/mongoproxy/pkg/accesslog"
	"github.com/absmach/mongoproxy/pkg/breaker"
	"github.com/absmach/mongoproxy/pkg/fault"
	"github.com/absmach/mongoproxy/pkg/health"
	"github.com/absmach/mongoproxy/pkg/mongoproxy"
	"github.com/absmach/mongoproxy/pkg/network"
	"github.com/absmach/mongoproxy/pkg/pool"
	"github.com/absmach/mongoproxy/pkg/ratelimit"
	"github.com/absmach/mongoproxy/pkg/runtime"
	"github.com/absmach/mongoproxy/pkg/stats"
)

// Config holds the process configuration, loaded from the environment (and
// optionally a .env file) the same way the teacher's cmd/production/main.go
// does it.
type Config struct {
	ListenAddress   string `env:"LISTEN_ADDRESS"   envDefault:":27018"`
	UpstreamAddress string `env:"UPSTREAM_ADDRESS" envDefault:"localhost:27017"`

	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"  envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"   envDefault:"json"`

	StatsPrefix      string `env:"STATS_PREFIX"       envDefault:"mongo"`
	MaxMessageLength int32  `env:"MAX_MESSAGE_LENGTH" envDefault:"48000000"`

	AccessLogPath  string `env:"ACCESS_LOG_PATH"  envDefault:""`
	FaultConfigRaw string `env:"FAULT_CONFIG"     envDefault:""`

	PoolMaxIdle        int           `env:"POOL_MAX_IDLE"         envDefault:"50"`
	PoolMaxActive      int           `env:"POOL_MAX_ACTIVE"       envDefault:"500"`
	PoolIdleTimeout    time.Duration `env:"POOL_IDLE_TIMEOUT"     envDefault:"5m"`
	PoolDialTimeout    time.Duration `env:"POOL_DIAL_TIMEOUT"     envDefault:"10s"`
	PoolMaxDialRetries uint64        `env:"POOL_MAX_DIAL_RETRIES" envDefault:"3"`

	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"60s"`
	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT"       envDefault:"30s"`

	RateLimitCapacity  int64 `env:"RATE_LIMIT_CAPACITY"  envDefault:"100"`
	RateLimitRefill    int64 `env:"RATE_LIMIT_REFILL"    envDefault:"10"`
	GlobalRateCapacity int64 `env:"GLOBAL_RATE_CAPACITY" envDefault:"10000"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		// .env file is optional
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mongoproxy",
		slog.String("listen", cfg.ListenAddress),
		slog.String("upstream", cfg.UpstreamAddress))

	sink := stats.NewPrometheus(cfg.StatsPrefix)
	go startMetricsServer(cfg.MetricsPort, logger)

	faultCfg, err := fault.Parse([]byte(cfg.FaultConfigRaw))
	if err != nil {
		logger.Error("invalid fault config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var accessLog *accesslog.AccessLog
	if cfg.AccessLogPath != "" {
		accessLog = accesslog.New(accesslog.NewFileSink(accesslog.FileSinkConfig{
			Path:       cfg.AccessLogPath,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		}))
	}

	loader := runtime.NewStatic()

	healthChecker := health.NewChecker(10 * time.Second)

	cb := breaker.New(breaker.Config{
		MaxFailures:      cfg.BreakerMaxFailures,
		ResetTimeout:      cfg.BreakerResetTimeout,
		SuccessThreshold:  2,
		Timeout:           cfg.BreakerTimeout,
	})
	cb.OnStateChange(func(from, to breaker.State) {
		logger.Warn("upstream breaker state changed",
			slog.String("from", from.String()), slog.String("to", to.String()))
	})
	healthChecker.Register("upstream_breaker", health.BreakerCheck(cb))

	connPool := pool.New(
		func(ctx context.Context) (net.Conn, error) {
			return net.Dial("tcp", cfg.UpstreamAddress)
		},
		pool.Config{
			MaxIdle:        cfg.PoolMaxIdle,
			MaxActive:      cfg.PoolMaxActive,
			IdleTimeout:    cfg.PoolIdleTimeout,
			DialTimeout:    cfg.PoolDialTimeout,
			MaxDialRetries: cfg.PoolMaxDialRetries,
		},
	)
	defer connPool.Close()
	healthChecker.Register("connection_pool", func(ctx context.Context) error {
		idle, active := connPool.Stats()
		logger.Debug("connection pool stats", slog.Int("idle", idle), slog.Int("active", active))
		return nil
	})

	go startHealthServer(cfg.HealthPort, healthChecker, logger)

	rateLimiter := ratelimit.NewAccessRateLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, 10000, cfg.GlobalRateCapacity)
	defer rateLimiter.Close()

	dial := func(ctx context.Context, _ string) (net.Conn, error) {
		var conn *pool.MongoConn
		err := cb.Call(func() error {
			c, err := connPool.Get(ctx)
			if err != nil {
				return err
			}
			conn = c
			return nil
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	host := network.New(network.Config{
		Address:       cfg.ListenAddress,
		TargetAddress: cfg.UpstreamAddress,
		Logger:        logger,
		Admit:         rateLimiter.Allow,
	}, func() network.ReadFilter {
		return mongoproxy.New(mongoproxy.Config{
			Prefix:           cfg.StatsPrefix,
			Stats:            sink,
			Runtime:          loader,
			AccessLog:        accessLog,
			Fault:            faultCfg,
			MaxMessageLength: cfg.MaxMessageLength,
		})
	}, dial)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return host.Listen(ctx)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("context cancelled")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("graceful shutdown completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
		os.Exit(1)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func startMetricsServer(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("starting metrics server", slog.String("address", addr))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", slog.String("error", err.Error()))
	}
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HTTPHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", health.LivenessHandler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("starting health server", slog.String("address", addr))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("health server error", slog.String("error", err.Error()))
	}
}
