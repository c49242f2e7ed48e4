package indexassignmentreport

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

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "index-assignment-report"

var schema = validation.MustCompileSchema(inputSchema)

// DocumentIndexer stores a JSON document under a fixed id.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

type Handler struct {
	config       *Config
	repo         *placement.Repository
	indexer      DocumentIndexer
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

func NewHandler(config *Config, db *sql.DB, indexer DocumentIndexer, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		repo:         placement.NewRepository(db),
		indexer:      indexer,
		errorHandler: apperrors.NewErrorHandler(log, config.MaxRetries, config.RetryBackoff),
		logger:       log,
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

// Execute rebuilds the report of a committed batch from its stored rows and
// indexes it under the run id, which must have written some of those rows.
// Indexing the same run twice overwrites the earlier document.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInvalidAssignmentInputError("input cannot be nil")
	}
	if res := schema.Validate(input); !res.Valid {
		return nil, apperrors.NewInvalidAssignmentInputError(res.Error())
	}

	batch, err := h.repo.LoadBatch(ctx, input.BatchID)
	if err != nil {
		if errors.Is(err, placement.ErrBatchNotFound) {
			return nil, apperrors.NewBatchNotFoundError(input.BatchID)
		}
		return nil, apperrors.NewPreferencesLoadFailedError(input.BatchID, err)
	}
	if batch.Status == placement.StatusOpen {
		return nil, apperrors.NewInvalidAssignmentInputError(
			fmt.Sprintf("batch %s has no committed run to report", input.BatchID))
	}

	problem, err := h.repo.LoadProblem(ctx, input.BatchID)
	if err != nil {
		return nil, apperrors.NewPreferencesLoadFailedError(input.BatchID, err)
	}
	rows, err := h.repo.LoadAssignments(ctx, input.BatchID)
	if err != nil {
		return nil, apperrors.NewPreferencesLoadFailedError(input.BatchID, err)
	}
	if len(rows) > 0 && !placement.HasRun(rows, input.RunID) {
		return nil, apperrors.NewInvalidAssignmentInputError(
			fmt.Sprintf("run %s wrote none of the assignments stored for batch %s (committed run %s)",
				input.RunID, input.BatchID, placement.CommittedRunID(rows)))
	}

	report := placement.BuildReport(batch, input.RunID, rows, problem, h.now())
	if err := h.indexer.IndexDocument(ctx, h.config.Index, input.RunID, report); err != nil {
		return nil, apperrors.NewReportIndexFailedError(h.config.Index, err)
	}

	h.logger.Info("report indexed", map[string]interface{}{
		"batchId": input.BatchID,
		"runId":   input.RunID,
		"index":   h.config.Index,
	})

	return &Output{
		ReportIndex:   h.config.Index,
		ReportID:      input.RunID,
		Status:        batch.Status,
		AssignedCount: report.AssignedCount,
		Unassigned:    len(report.Unassigned),
		IndexedAt:     report.IndexedAt.Format(time.RFC3339),
	}, nil
}
