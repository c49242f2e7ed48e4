package main

import (
	"context"
	"testing"

	"placement-workers/internal/common/camunda"
	"placement-workers/internal/common/config"
	"placement-workers/internal/common/database"
	"placement-workers/internal/common/logger"
	"placement-workers/internal/common/observability"

	ca "placement-workers/internal/workers/assignment/compute-assignments"
	ffa "placement-workers/internal/workers/assignment/force-fill-assignments"
	iar "placement-workers/internal/workers/assignment/index-assignment-report"
	nu "placement-workers/internal/workers/assignment/notify-unassigned"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap/zaptest"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestAppConfig() *config.Config {
	return &config.Config{
		Workers: map[string]config.WorkerConfig{},
		Assignment: config.AssignmentConfig{
			LockTTL:     120000,
			ResultTTL:   3600000,
			RunTimeout:  60000,
			ReportIndex: "assignment-reports",
		},
	}
}

// setupDependencies returns clients for every backing service except Zeebe,
// which stays nil so any attempt to open a subscription panics.
func setupDependencies(t *testing.T) *dependencies {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return &dependencies{
		postgres: &database.PostgresClient{DB: db},
		redis:    &database.RedisClient{Client: rdb},
	}
}

func setupObservability(t *testing.T) *observability.Observability {
	obs := observability.New("worker-manager-test", observability.WithMetricReader(metric.NewManualReader()))
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })
	return obs
}

// ==========================
// Registration
// ==========================

func TestBuildHandlers_AllEnabled(t *testing.T) {
	cfg := createTestAppConfig()
	deps := setupDependencies(t)

	regs, err := buildHandlers(context.Background(), cfg, deps, setupObservability(t), logger.NewTestLogger(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	var taskTypes []string
	for _, r := range regs {
		taskTypes = append(taskTypes, r.taskType)
		assert.NotNil(t, r.handler)
	}
	assert.Equal(t, []string{ca.TaskType, ffa.TaskType, iar.TaskType, nu.TaskType}, taskTypes)
}

func TestBuildHandlers_SkipsDisabled(t *testing.T) {
	cfg := createTestAppConfig()
	cfg.Workers[ffa.TaskType] = config.WorkerConfig{Enabled: false}
	cfg.Workers[nu.TaskType] = config.WorkerConfig{Enabled: false}

	regs, err := buildHandlers(context.Background(), cfg, setupDependencies(t), setupObservability(t),
		logger.NewTestLogger(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Len(t, regs, 2)
	assert.Equal(t, ca.TaskType, regs[0].taskType)
	assert.Equal(t, iar.TaskType, regs[1].taskType)
}

func TestRegisterWorkers_InvalidConfigOpensNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
		errMsg string
	}{
		{
			name: "last worker invalid",
			mutate: func(cfg *config.Config) {
				cfg.Notifications.Email.Enabled = true
			},
			errMsg: nu.TaskType + " config",
		},
		{
			name: "middle worker invalid",
			mutate: func(cfg *config.Config) {
				cfg.Assignment.ReportIndex = ""
			},
			errMsg: iar.TaskType + " config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestAppConfig()
			tt.mutate(cfg)
			deps := setupDependencies(t)

			var workers []*camunda.Worker
			var err error
			require.NotPanics(t, func() {
				workers, err = registerWorkers(context.Background(), cfg, deps, setupObservability(t),
					logger.NewTestLogger(t), zaptest.NewLogger(t))
			}, "no subscription may be opened before every config is valid")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Nil(t, workers)
		})
	}
}
