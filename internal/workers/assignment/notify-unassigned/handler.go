package notifyunassigned

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	awsclient "placement-workers/internal/common/aws"
	"placement-workers/internal/common/camunda"
	apperrors "placement-workers/internal/common/errors"
	"placement-workers/internal/common/logger"
	"placement-workers/internal/common/metrics"
	"placement-workers/internal/common/placement"
	"placement-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const TaskType = "notify-unassigned"

var schema = validation.MustCompileSchema(inputSchema)

// Handler tells operators which applicants a batch could not place.
type Handler struct {
	config       *Config
	repo         *placement.Repository
	sesClient    awsclient.SESService
	snsClient    awsclient.SNSService
	deliveries   *placement.DeliveryLog
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

func NewHandler(config *Config, db *sql.DB, rdb redis.Cmdable, sesClient awsclient.SESService, snsClient awsclient.SNSService, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		repo:         placement.NewRepository(db),
		sesClient:    sesClient,
		snsClient:    snsClient,
		deliveries:   placement.NewDeliveryLog(rdb, config.DeliveryTTL),
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInvalidAssignmentInputError("input cannot be nil")
	}
	if res := schema.Validate(input); !res.Valid {
		return nil, apperrors.NewInvalidAssignmentInputError(res.Error())
	}

	unassigned := input.Unassigned
	kind := input.Kind
	if unassigned == nil {
		loaded, loadedKind, err := h.loadUnassigned(ctx, input.BatchID)
		if err != nil {
			return nil, err
		}
		unassigned, kind = loaded, loadedKind
	}

	output := &Output{
		NotificationID:  notificationID(input.BatchID, input.RunID, unassigned),
		Channels:        []string{},
		UnassignedCount: len(unassigned),
		SentAt:          h.now().UTC().Format(time.RFC3339),
	}

	if len(unassigned) == 0 {
		output.Status = StatusSkipped
		return output, nil
	}
	if !h.config.EmailEnabled && !h.config.TopicEnabled {
		h.logger.Warn("no notification channel enabled", map[string]interface{}{"batchId": input.BatchID})
		output.Status = StatusDisabled
		return output, nil
	}

	subject, body := composeMessage(input.BatchID, input.RunID, kind, unassigned)

	if h.config.EmailEnabled {
		err := h.deliver(ctx, output.NotificationID, ChannelEmail, func() error {
			email := awsclient.BuildEmail(h.config.FromEmail, h.config.Recipients, subject, body)
			_, err := h.sesClient.SendEmail(ctx, email)
			return err
		})
		if err != nil {
			return nil, err
		}
		output.Channels = append(output.Channels, ChannelEmail)
	}

	if h.config.TopicEnabled {
		attrs := map[string]string{
			"batchId":         input.BatchID,
			"notificationId":  output.NotificationID,
			"unassignedCount": fmt.Sprint(len(unassigned)),
		}
		if kind != "" {
			attrs["kind"] = string(kind)
		}
		err := h.deliver(ctx, output.NotificationID, ChannelTopic, func() error {
			msg := awsclient.BuildPublish(h.config.TopicARN, subject, body, attrs)
			_, err := h.snsClient.Publish(ctx, msg)
			return err
		})
		if err != nil {
			return nil, err
		}
		output.Channels = append(output.Channels, ChannelTopic)
	}

	h.logger.Info("unassigned applicants reported", map[string]interface{}{
		"batchId":        input.BatchID,
		"notificationId": output.NotificationID,
		"count":          len(unassigned),
		"channels":       output.Channels,
	})

	output.Status = StatusSent
	return output, nil
}

// deliver sends on channel unless an earlier attempt of the same
// notification already did. When the delivery record cannot be read the
// message goes out again rather than not at all.
func (h *Handler) deliver(ctx context.Context, notificationID, channel string, send func() error) error {
	log := h.logger.WithFields(map[string]interface{}{"notificationId": notificationID, "channel": channel})

	sent, err := h.deliveries.Delivered(ctx, notificationID, channel)
	if err != nil {
		log.Warn("delivery record unavailable", map[string]interface{}{"error": err})
	} else if sent {
		log.Info("already delivered, skipping", nil)
		return nil
	}

	if err := send(); err != nil {
		return apperrors.NewNotificationSendFailedError(channel, err)
	}
	if err := h.deliveries.MarkDelivered(ctx, notificationID, channel); err != nil {
		log.Warn("failed to record delivery", map[string]interface{}{"error": err})
	}
	return nil
}

// notificationID is derived from the content so every attempt of a job
// carries the same id.
func notificationID(batchID, runID string, unassigned []string) string {
	ids := append([]string(nil), unassigned...)
	sort.Strings(ids)
	key := batchID + "\n" + runID + "\n" + strings.Join(ids, ",")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func (h *Handler) loadUnassigned(ctx context.Context, batchID string) ([]string, placement.Kind, error) {
	batch, err := h.repo.LoadBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, placement.ErrBatchNotFound) {
			return nil, "", apperrors.NewBatchNotFoundError(batchID)
		}
		return nil, "", apperrors.NewPreferencesLoadFailedError(batchID, err)
	}
	problem, err := h.repo.LoadProblem(ctx, batchID)
	if err != nil {
		return nil, "", apperrors.NewPreferencesLoadFailedError(batchID, err)
	}
	rows, err := h.repo.LoadAssignments(ctx, batchID)
	if err != nil {
		return nil, "", apperrors.NewPreferencesLoadFailedError(batchID, err)
	}

	sum := placement.SummaryFromRows(batch, rows, problem.Preferences, h.now())

	ids := make([]string, len(sum.Unassigned))
	for i, a := range sum.Unassigned {
		ids[i] = string(a)
	}
	return ids, batch.Kind, nil
}

func composeMessage(batchID, runID string, kind placement.Kind, unassigned []string) (string, string) {
	subject := fmt.Sprintf("Batch %s: %d applicant(s) unassigned", batchID, len(unassigned))

	var b strings.Builder
	fmt.Fprintf(&b, "Batch: %s\n", batchID)
	if kind != "" {
		fmt.Fprintf(&b, "Kind: %s\n", kind)
	}
	if runID != "" {
		fmt.Fprintf(&b, "Run: %s\n", runID)
	}
	fmt.Fprintf(&b, "\nThe following %d applicant(s) hold no slot:\n", len(unassigned))
	for _, id := range unassigned {
		fmt.Fprintf(&b, "  - %s\n", id)
	}
	b.WriteString("\nRun force-fill-assignments to place them in the remaining seats.\n")
	return subject, b.String()
}
