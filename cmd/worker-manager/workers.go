package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	awsclient "placement-workers/internal/common/aws"
	"placement-workers/internal/common/camunda"
	"placement-workers/internal/common/config"
	"placement-workers/internal/common/logger"
	"placement-workers/internal/common/observability"

	ca "placement-workers/internal/workers/assignment/compute-assignments"
	ffa "placement-workers/internal/workers/assignment/force-fill-assignments"
	iar "placement-workers/internal/workers/assignment/index-assignment-report"
	nu "placement-workers/internal/workers/assignment/notify-unassigned"
)

type validatable interface {
	Validate() error
}

// registration is a handler ready to be subscribed.
type registration struct {
	taskType string
	handler  camunda.JobHandler
}

// registerWorkers builds and validates a handler per enabled task type and
// only then opens the subscriptions, so a bad config leaves nothing running.
// Disabled task types are skipped.
func registerWorkers(
	ctx context.Context,
	cfg *config.Config,
	deps *dependencies,
	obs *observability.Observability,
	log logger.Logger,
	zapLog *zap.Logger,
) ([]*camunda.Worker, error) {
	regs, err := buildHandlers(ctx, cfg, deps, obs, log, zapLog)
	if err != nil {
		return nil, err
	}

	zeebe := deps.zeebe.GetClient()
	workers := make([]*camunda.Worker, 0, len(regs))
	for _, r := range regs {
		workers = append(workers, camunda.NewWorker(zeebe, r.taskType, config.GetWorkerConfig(cfg, r.taskType), r.handler, zapLog))
	}
	return workers, nil
}

func buildHandlers(
	ctx context.Context,
	cfg *config.Config,
	deps *dependencies,
	obs *observability.Observability,
	log logger.Logger,
	zapLog *zap.Logger,
) ([]registration, error) {
	var regs []registration
	enabled := func(taskType string) bool {
		if config.IsWorkerEnabled(cfg, taskType) {
			return true
		}
		zapLog.Info("worker disabled", zap.String("taskType", taskType))
		return false
	}
	check := func(taskType string, workerCfg validatable) error {
		if err := workerCfg.Validate(); err != nil {
			return fmt.Errorf("%s config: %w", taskType, err)
		}
		return nil
	}

	if enabled(ca.TaskType) {
		c := ca.LoadConfig(cfg)
		if err := check(ca.TaskType, c); err != nil {
			return nil, err
		}
		regs = append(regs, registration{ca.TaskType, ca.NewHandler(c, deps.postgres.DB, deps.redis.Client, obs, log)})
	}

	if enabled(ffa.TaskType) {
		c := ffa.LoadConfig(cfg)
		if err := check(ffa.TaskType, c); err != nil {
			return nil, err
		}
		regs = append(regs, registration{ffa.TaskType, ffa.NewHandler(c, deps.postgres.DB, deps.redis.Client, log)})
	}

	if enabled(iar.TaskType) {
		c := iar.LoadConfig(cfg)
		if err := check(iar.TaskType, c); err != nil {
			return nil, err
		}
		regs = append(regs, registration{iar.TaskType, iar.NewHandler(c, deps.postgres.DB, deps.search, log)})
	}

	if enabled(nu.TaskType) {
		c := nu.LoadConfig(cfg)
		if err := check(nu.TaskType, c); err != nil {
			return nil, err
		}
		var sesClient awsclient.SESService
		var snsClient awsclient.SNSService
		if c.EmailEnabled || c.TopicEnabled {
			awsCfg, err := awsclient.LoadConfig(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				return nil, fmt.Errorf("load AWS config: %w", err)
			}
			sesClient = awsclient.NewSESClient(awsCfg)
			snsClient = awsclient.NewSNSClient(awsCfg)
		}
		regs = append(regs, registration{nu.TaskType, nu.NewHandler(c, deps.postgres.DB, deps.redis.Client, sesClient, snsClient, log)})
	}

	return regs, nil
}
