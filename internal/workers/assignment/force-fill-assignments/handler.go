package forcefillassignments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"placement-workers/internal/common/camunda"
	apperrors "placement-workers/internal/common/errors"
	"placement-workers/internal/common/logger"
	"placement-workers/internal/common/metrics"
	"placement-workers/internal/common/placement"
	"placement-workers/internal/common/validation"
	"placement-workers/pkg/assignment"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const TaskType = "force-fill-assignments"

var schema = validation.MustCompileSchema(inputSchema)

// Handler places whoever a committed batch left unassigned into the
// remaining free seats, ignoring preferences.
type Handler struct {
	config       *Config
	repo         *placement.Repository
	runs         *placement.RunStore
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
	newRunID     func() string
	now          func() time.Time
}

func NewHandler(config *Config, db *sql.DB, rdb redis.Cmdable, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		repo:         placement.NewRepository(db),
		runs:         placement.NewRunStore(rdb, config.LockTTL, config.ResultTTL),
		errorHandler: apperrors.NewErrorHandler(log, config.MaxRetries, config.RetryBackoff),
		logger:       log,
		newRunID:     func() string { return uuid.New().String() },
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, apperrors.NewInvalidAssignmentInputError(fmt.Sprintf("parse variables: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.Key, "error": err})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	bpmnErr := h.errorHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInvalidAssignmentInputError("input cannot be nil")
	}
	if res := schema.Validate(input); !res.Valid {
		return nil, apperrors.NewInvalidAssignmentInputError(res.Error())
	}

	batchID := input.BatchID
	runID := h.newRunID()
	log := h.logger.WithFields(map[string]interface{}{"batchId": batchID, "runId": runID})

	if err := h.runs.Acquire(ctx, batchID, runID); err != nil {
		if errors.Is(err, placement.ErrBatchLocked) {
			return nil, apperrors.NewBatchLockedError(batchID)
		}
		return nil, apperrors.NewExternalServiceError("redis", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.runs.Release(releaseCtx, batchID, runID); err != nil {
			log.Warn("failed to release batch lock", map[string]interface{}{"error": err})
		}
	}()

	batch, err := h.repo.LoadBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, placement.ErrBatchNotFound) {
			return nil, apperrors.NewBatchNotFoundError(batchID)
		}
		return nil, apperrors.NewPreferencesLoadFailedError(batchID, err)
	}
	if batch.Status == placement.StatusOpen {
		return nil, apperrors.NewInvalidAssignmentInputError(
			fmt.Sprintf("batch %s has no committed assignments to fill around", batchID))
	}

	problem, err := h.repo.LoadProblem(ctx, batchID)
	if err != nil {
		return nil, apperrors.NewPreferencesLoadFailedError(batchID, err)
	}
	rows, err := h.repo.LoadAssignments(ctx, batchID)
	if err != nil {
		return nil, apperrors.NewPreferencesLoadFailedError(batchID, err)
	}

	prefs := assignment.Normalize(problem.Preferences)
	assigned, forced := placement.SplitRows(rows)
	current := assignment.Summarize(assigned, forced, prefs)

	newlyForced := assignment.Force(current.Unassigned, problem.Capacities, assignment.CountAssignments(assigned))
	result := assignment.MergeForced(current, newlyForced, prefs)
	if err := assignment.VerifyCapacity(result, problem.Capacities); err != nil {
		return nil, apperrors.NewCapacityInvariantViolatedError(err)
	}

	if len(newlyForced) > 0 {
		if err := h.repo.AppendForced(ctx, batchID, runID, newlyForced); err != nil {
			return nil, apperrors.NewAssignmentPersistFailedError(batchID, err)
		}
		batch.Status = placement.StatusForceFilled

		for _, a := range current.Unassigned {
			slot, ok := newlyForced[a]
			if !ok {
				continue
			}
			rows = append(rows, placement.AssignmentRow{
				ApplicantID: a,
				SlotID:      slot,
				Phase:       assignment.PhaseForced,
				RunID:       runID,
			})
		}
		sum := placement.SummaryFromRows(batch, rows, prefs, h.now())
		if err := h.runs.PutSummary(ctx, sum); err != nil {
			log.Warn("failed to cache result, dropping stale entry", map[string]interface{}{"error": err})
			if err := h.runs.Invalidate(ctx, batchID); err != nil {
				log.Warn("failed to invalidate cached result", map[string]interface{}{"error": err})
			}
		}
	}

	kind := string(batch.Kind)
	metrics.RecordPhases(kind, 0, 0, len(newlyForced))
	metrics.AssignmentUnassigned.WithLabelValues(kind).Set(float64(len(result.Unassigned)))

	log.Info("force fill finished", map[string]interface{}{
		"forced":     len(newlyForced),
		"unassigned": len(result.Unassigned),
	})

	return &Output{
		BatchID:       batchID,
		RunID:         runID,
		Status:        batch.Status,
		Forced:        newlyForced,
		Unassigned:    result.Unassigned,
		HasUnassigned: len(result.Unassigned) > 0,
		AssignedCount: result.AssignedCount,
		AverageRank:   result.AverageRank,
	}, nil
}
