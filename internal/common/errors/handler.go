// internal/common/errors/handler.go
package errors

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler reports a failed job either as a retryable failure or as a
// BPMN error the process can catch.
type ErrorHandler struct {
	logger       Logger
	maxRetries   int
	retryBackoff time.Duration
}

// NewErrorHandler returns a handler that caps retries at maxRetries and asks
// the engine to wait retryBackoff between attempts.
func NewErrorHandler(logger Logger, maxRetries int, retryBackoff time.Duration) *ErrorHandler {
	return &ErrorHandler{logger: logger, maxRetries: maxRetries, retryBackoff: retryBackoff}
}

// Decision says how a failure is reported.
type Decision struct {
	Throw   bool
	Retries int
}

// Decide picks between failing with retries and throwing. Zeebe's job
// retries count down, so the remaining budget is the job's own count minus
// one, bounded by the code's retry count and the handler's cap.
func (h *ErrorHandler) Decide(stdErr *StandardError, jobRetries int32) Decision {
	if !stdErr.Retryable {
		return Decision{Throw: true}
	}
	budget := GetRetryCount(stdErr.Code)
	if h.maxRetries > 0 && h.maxRetries < budget {
		budget = h.maxRetries
	}
	remaining := int(jobRetries) - 1
	if remaining > budget {
		remaining = budget
	}
	if remaining <= 0 {
		return Decision{Throw: true}
	}
	return Decision{Retries: remaining}
}

// Normalize turns any error into a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// HandleJobError reports err for job and returns the BPMN form it sent.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) *BPMNError {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	decision := h.Decide(stdErr, job.Retries)

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":             job.Key,
		"jobType":            job.Type,
		"processInstanceKey": job.ProcessInstanceKey,
		"errorCode":          string(stdErr.Code),
		"errorCategory":      GetErrorCategory(stdErr.Code),
		"details":            stdErr.Details,
		"retryable":          stdErr.Retryable,
		"retries":            decision.Retries,
		"thrown":             decision.Throw,
	})

	var sendErr error
	if decision.Throw {
		sendErr = h.throwBPMNError(ctx, client, job, bpmnErr)
	} else {
		sendErr = h.failJobWithRetries(ctx, client, job, bpmnErr, decision.Retries)
	}
	if sendErr != nil {
		h.logger.Error("failed to report job failure", map[string]interface{}{
			"jobKey": job.Key,
			"error":  sendErr.Error(),
		})
	}
	return bpmnErr
}

func (h *ErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, retries int) error {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(retries)).
		ErrorMessage("[" + bpmnErr.Code + "] " + bpmnErr.Message)
	if h.retryBackoff > 0 {
		cmd = cmd.RetryBackoff(h.retryBackoff)
	}

	withVars, err := cmd.VariablesFromMap(bpmnErr.ToErrorVariables())
	if err != nil {
		_, err = cmd.Send(ctx)
		return err
	}
	_, err = withVars.Send(ctx)
	return err
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) error {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	withVars, err := cmd.VariablesFromMap(bpmnErr.ToErrorVariables())
	if err != nil {
		_, err = cmd.Send(ctx)
		return err
	}
	_, err = withVars.Send(ctx)
	return err
}
