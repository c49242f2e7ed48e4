// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"placement-workers/internal/common/camunda"
	"placement-workers/internal/common/config"
	"placement-workers/internal/common/database"
	"placement-workers/internal/common/logger"
	"placement-workers/internal/common/observability"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// dependencies are the shared clients every worker draws from.
type dependencies struct {
	zeebe    *camunda.Client
	postgres *database.PostgresClient
	redis    *database.RedisClient
	search   *database.ElasticsearchClient
}

func (d *dependencies) close(log *zap.Logger) {
	if d.zeebe != nil {
		if err := d.zeebe.Close(); err != nil {
			log.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.postgres != nil {
		_ = d.postgres.Close()
	}
}

// connect dials every backing service concurrently, each with its own
// retry budget.
func connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return retryWithBackoff(func() error {
			c, err := camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
			if err != nil {
				return err
			}
			deps.zeebe = c
			return nil
		}, 10, 2*time.Second, log, "Zeebe client initialization")
	})

	g.Go(func() error {
		return retryWithBackoff(func() error {
			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(gctx); err != nil {
				_ = pg.Close()
				return err
			}
			deps.postgres = pg
			return nil
		}, 15, 2*time.Second, log, "PostgreSQL connection")
	})

	g.Go(func() error {
		return retryWithBackoff(func() error {
			rdb, err := database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			if err := rdb.Ping(gctx); err != nil {
				_ = rdb.Close()
				return err
			}
			deps.redis = rdb
			return nil
		}, 10, 2*time.Second, log, "Redis connection")
	})

	g.Go(func() error {
		return retryWithBackoff(func() error {
			es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			if err := es.Ping(gctx); err != nil {
				return err
			}
			deps.search = es
			return nil
		}, 15, 2*time.Second, log, "Elasticsearch connection")
	})

	if err := g.Wait(); err != nil {
		deps.close(log)
		return nil, err
	}
	return deps, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", "console")
		fallback.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(ctx); err != nil {
			zapLog.Warn("observability shutdown failed", zap.Error(err))
		}
	}()

	deps, err := connect(context.Background(), cfg, zapLog)
	if err != nil {
		zapLog.Fatal("dependency initialization failed", zap.Error(err))
	}
	defer deps.close(zapLog)
	zapLog.Info("All backing services connected")

	workers, err := registerWorkers(context.Background(), cfg, deps, obs, log, zapLog)
	if err != nil {
		zapLog.Fatal("worker registration failed", zap.Error(err))
	}
	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	srv := &http.Server{
		Addr: cfg.HTTP.Address,
		Handler: newHTTPHandler([]readinessCheck{
			{name: "zeebe", check: deps.zeebe.HealthCheck},
			{name: "postgres", check: deps.postgres.Ping},
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("Health/Metrics server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
