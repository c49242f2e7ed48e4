package computeassignments

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
	"placement-workers/internal/common/observability"
	"placement-workers/internal/common/placement"
	"placement-workers/internal/common/validation"
	"placement-workers/pkg/assignment"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const TaskType = "compute-assignments"

var schema = validation.MustCompileSchema(inputSchema)

type Handler struct {
	config       *Config
	repo         *placement.Repository
	runs         *placement.RunStore
	engine       *assignment.Engine
	obs          *observability.Observability
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
	newRunID     func() string
}

func NewHandler(config *Config, db *sql.DB, rdb redis.Cmdable, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		repo:         placement.NewRepository(db),
		runs:         placement.NewRunStore(rdb, config.LockTTL, config.ResultTTL),
		engine:       assignment.DefaultEngine(),
		obs:          obs,
		errorHandler: apperrors.NewErrorHandler(log, config.MaxRetries, config.RetryBackoff),
		logger:       log,
		now:          time.Now,
		newRunID:     func() string { return uuid.New().String() },
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
	})

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
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	bpmnErr := h.errorHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
}

// Execute runs the pipeline for a batch and commits the result.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	forceFill := h.config.ForceFill
	if input.ForceFill != nil {
		forceFill = *input.ForceFill
	}

	if input.Problem != nil {
		return h.preview(ctx, input, forceFill)
	}

	batchID := input.BatchID
	log := h.logger.WithFields(map[string]interface{}{"batchId": batchID})

	if !input.Rerun && !input.DryRun {
		cached, err := h.runs.Summary(ctx, batchID)
		if err != nil {
			log.Warn("result cache unavailable", map[string]interface{}{"error": err})
		} else if cached != nil {
			log.Info("returning cached result", map[string]interface{}{"runId": cached.RunID})
			return outputFromSummary(cached), nil
		}
	}

	runID := h.newRunID()
	log = log.WithFields(map[string]interface{}{"runId": runID})

	if !input.DryRun {
		if err := h.runs.Acquire(ctx, batchID, runID); err != nil {
			if errors.Is(err, placement.ErrBatchLocked) {
				return nil, apperrors.NewBatchLockedError(batchID)
			}
			return nil, apperrors.NewExternalServiceError("redis", err)
		}
		defer func() {
			// The job context may already be done; the release must still go out.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.runs.Release(releaseCtx, batchID, runID); err != nil {
				log.Warn("failed to release batch lock", map[string]interface{}{"error": err})
			}
		}()
	}

	batch, err := h.repo.LoadBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, placement.ErrBatchNotFound) {
			return nil, apperrors.NewBatchNotFoundError(batchID)
		}
		return nil, apperrors.NewPreferencesLoadFailedError(batchID, err)
	}

	// A committed batch is only recomputed on request: a fresh run would
	// replace rows appended by force-fill since.
	if !input.Rerun && !input.DryRun && batch.Status != placement.StatusOpen {
		return h.committed(ctx, batch, log)
	}

	problem, err := h.repo.LoadProblem(ctx, batchID)
	if err != nil {
		return nil, apperrors.NewPreferencesLoadFailedError(batchID, err)
	}

	out, err := h.run(ctx, batch, problem, forceFill)
	if err != nil {
		return nil, err
	}

	if input.DryRun {
		log.Info("dry run finished", map[string]interface{}{"assigned": out.Result.AssignedCount})
		return newOutput(batch, runID, out, true), nil
	}

	status, err := h.repo.SaveOutcome(ctx, batchID, runID, out)
	if err != nil {
		return nil, apperrors.NewAssignmentPersistFailedError(batchID, err)
	}
	batch.Status = status

	if err := h.runs.PutSummary(ctx, placement.NewSummary(batch, runID, out, h.now())); err != nil {
		log.Warn("failed to cache result", map[string]interface{}{"error": err})
	}

	log.Info("assignments committed", map[string]interface{}{
		"kind":       string(batch.Kind),
		"status":     string(status),
		"total":      out.Result.Total,
		"assigned":   out.Result.AssignedCount,
		"stable":     out.StableAssigned,
		"cascade":    out.CascadeAssigned,
		"forced":     out.ForcedAssigned,
		"unassigned": len(out.Result.Unassigned),
	})

	return newOutput(batch, runID, out, false), nil
}

// committed answers for a batch whose result is already stored, rebuilding
// the summary from its rows and caching it again.
func (h *Handler) committed(ctx context.Context, batch *placement.Batch, log logger.Logger) (*Output, error) {
	problem, err := h.repo.LoadProblem(ctx, batch.ID)
	if err != nil {
		return nil, apperrors.NewPreferencesLoadFailedError(batch.ID, err)
	}
	rows, err := h.repo.LoadAssignments(ctx, batch.ID)
	if err != nil {
		return nil, apperrors.NewPreferencesLoadFailedError(batch.ID, err)
	}

	at := batch.UpdatedAt
	if at.IsZero() {
		at = h.now()
	}
	sum := placement.SummaryFromRows(batch, rows, problem.Preferences, at)
	if err := h.runs.PutSummary(ctx, sum); err != nil {
		log.Warn("failed to cache result", map[string]interface{}{"error": err})
	}

	log.Info("returning committed result", map[string]interface{}{
		"runId":  sum.RunID,
		"status": string(batch.Status),
	})
	return outputFromSummary(sum), nil
}

func (h *Handler) preview(ctx context.Context, input *Input, forceFill bool) (*Output, error) {
	kind := input.Kind
	if kind == "" {
		kind = placement.KindSubjects
	}
	batch := &placement.Batch{ID: input.BatchID, Kind: kind, Status: placement.StatusOpen}
	runID := h.newRunID()

	out, err := h.run(ctx, batch, input.Problem, forceFill)
	if err != nil {
		return nil, err
	}
	return newOutput(batch, runID, out, true), nil
}

type runResult struct {
	out *assignment.Outcome
	err error
}

// run executes the engine on its own goroutine so the run deadline can be
// enforced from outside. A timed-out engine goroutine finishes in the
// background and its result is dropped.
func (h *Handler) run(ctx context.Context, batch *placement.Batch, problem *placement.Problem, forceFill bool) (*assignment.Outcome, error) {
	ctx, span := h.obs.StartSpan(ctx, "assignment.run",
		attribute.String("batchId", batch.ID),
		attribute.String("kind", string(batch.Kind)),
		attribute.Bool("forceFill", forceFill),
	)
	defer span.End()

	prefs := assignment.Normalize(problem.Preferences)
	caps := problem.Capacities

	runCtx, cancel := context.WithTimeout(ctx, h.config.RunTimeout)
	defer cancel()

	done := make(chan runResult, 1)
	start := time.Now()
	go func() {
		out, err := h.engine.Run(prefs, caps, assignment.RunOptions{ForceFill: forceFill})
		done <- runResult{out: out, err: err}
	}()

	kind := string(batch.Kind)
	select {
	case r := <-done:
		elapsed := time.Since(start)
		metrics.AssignmentRunDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

		if r.err != nil {
			span.RecordError(r.err)
			span.SetStatus(codes.Error, r.err.Error())
			h.obs.RecordAssignmentRun(ctx, kind, elapsed, "failed")
			return nil, classifyRunError(r.err)
		}

		h.obs.RecordAssignmentRun(ctx, kind, elapsed, "succeeded")
		recordOutcome(kind, r.out)
		span.SetAttributes(
			attribute.Int("total", r.out.Result.Total),
			attribute.Int("assigned", r.out.Result.AssignedCount),
			attribute.Int("unassigned", len(r.out.Result.Unassigned)),
		)
		return r.out, nil

	case <-runCtx.Done():
		span.SetStatus(codes.Error, "assignment run timed out")
		h.obs.RecordAssignmentRun(ctx, kind, time.Since(start), "timeout")
		return nil, apperrors.NewAssignmentTimeoutError(h.config.RunTimeout)
	}
}

func classifyRunError(err error) error {
	switch {
	case errors.Is(err, assignment.ErrMatcherUnavailable):
		return apperrors.NewMatcherUnavailableError(err)
	case errors.Is(err, assignment.ErrCapacityExceeded):
		return apperrors.NewCapacityInvariantViolatedError(err)
	default:
		return apperrors.NewInternalError(err)
	}
}

func recordOutcome(kind string, out *assignment.Outcome) {
	metrics.RecordPhases(kind, out.StableAssigned, out.CascadeAssigned, out.ForcedAssigned)
	metrics.AssignmentUnassigned.WithLabelValues(kind).Set(float64(len(out.Result.Unassigned)))
	if out.Result.AverageRank != nil {
		metrics.AssignmentAverageRank.WithLabelValues(kind).Set(*out.Result.AverageRank)
	}
}

func validateInput(input *Input) error {
	if input == nil {
		return apperrors.NewInvalidAssignmentInputError("input cannot be nil")
	}
	if res := schema.Validate(input); !res.Valid {
		return apperrors.NewInvalidAssignmentInputError(res.Error())
	}
	if input.Problem != nil {
		if res := validation.ValidateStruct(input.Problem); !res.Valid {
			return apperrors.NewInvalidAssignmentInputError(res.Error())
		}
	}
	return nil
}

func newOutput(batch *placement.Batch, runID string, out *assignment.Outcome, dryRun bool) *Output {
	res := out.Result
	return &Output{
		BatchID:         batch.ID,
		RunID:           runID,
		Kind:            batch.Kind,
		Status:          batch.Status,
		Assignments:     res.Assignments,
		Unassigned:      res.Unassigned,
		HasUnassigned:   len(res.Unassigned) > 0,
		Total:           res.Total,
		AssignedCount:   res.AssignedCount,
		StableAssigned:  out.StableAssigned,
		CascadeAssigned: out.CascadeAssigned,
		ForcedAssigned:  out.ForcedAssigned,
		AverageRank:     res.AverageRank,
		DryRun:          dryRun,
	}
}

func outputFromSummary(sum *placement.Summary) *Output {
	unassigned := sum.Unassigned
	if unassigned == nil {
		unassigned = []assignment.ApplicantID{}
	}
	return &Output{
		BatchID:         sum.BatchID,
		RunID:           sum.RunID,
		Kind:            sum.Kind,
		Status:          sum.Status,
		Unassigned:      unassigned,
		HasUnassigned:   len(unassigned) > 0,
		Total:           sum.Total,
		AssignedCount:   sum.AssignedCount,
		StableAssigned:  sum.StableAssigned,
		CascadeAssigned: sum.CascadeAssigned,
		ForcedAssigned:  sum.ForcedAssigned,
		AverageRank:     sum.AverageRank,
		Cached:          true,
	}
}
