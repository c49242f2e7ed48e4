// Package errors maps worker failures onto Zeebe job failures and BPMN errors.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode is the code carried to the process as a BPMN error code.
type ErrorCode string

const (
	ErrCodeInvalidAssignmentInput    ErrorCode = "INVALID_ASSIGNMENT_INPUT"
	ErrCodeBatchNotFound             ErrorCode = "BATCH_NOT_FOUND"
	ErrCodeBatchLocked               ErrorCode = "BATCH_LOCKED"
	ErrCodePreferencesLoadFailed     ErrorCode = "PREFERENCES_LOAD_FAILED"
	ErrCodeMatcherUnavailable        ErrorCode = "MATCHER_UNAVAILABLE"
	ErrCodeAssignmentTimeout         ErrorCode = "ASSIGNMENT_TIMEOUT"
	ErrCodeCapacityInvariantViolated ErrorCode = "CAPACITY_INVARIANT_VIOLATED"
	ErrCodeAssignmentPersistFailed   ErrorCode = "ASSIGNMENT_PERSIST_FAILED"
	ErrCodeReportIndexFailed         ErrorCode = "REPORT_INDEX_FAILED"
	ErrCodeNotificationSendFailed    ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the structured error workers return from Execute.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key to the error and returns it.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// AsStandardError extracts a StandardError from err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError is what gets reported to the engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns the process variables sent along with a failure.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: IsRetryableErrorCode(code),
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewInvalidAssignmentInputError(details string) *StandardError {
	return newError(ErrCodeInvalidAssignmentInput, "Assignment input validation failed", details, nil)
}

func NewBatchNotFoundError(batchID string) *StandardError {
	return newError(ErrCodeBatchNotFound, "Assignment batch not found", "batchId: "+batchID, nil).
		WithMetadata("batchId", batchID)
}

func NewBatchLockedError(batchID string) *StandardError {
	return newError(ErrCodeBatchLocked, "Another assignment run holds the batch", "batchId: "+batchID, nil).
		WithMetadata("batchId", batchID)
}

func NewPreferencesLoadFailedError(batchID string, err error) *StandardError {
	return newError(ErrCodePreferencesLoadFailed, "Failed to load preferences or capacities",
		fmt.Sprintf("batchId: %s, error: %v", batchID, err), err)
}

func NewMatcherUnavailableError(err error) *StandardError {
	return newError(ErrCodeMatcherUnavailable, "Stable matcher unavailable", err.Error(), err)
}

func NewAssignmentTimeoutError(timeout time.Duration) *StandardError {
	return newError(ErrCodeAssignmentTimeout, "Assignment run exceeded its deadline",
		fmt.Sprintf("timeout: %s", timeout), nil)
}

func NewCapacityInvariantViolatedError(err error) *StandardError {
	return newError(ErrCodeCapacityInvariantViolated, "Assignment violates slot capacity", err.Error(), err)
}

func NewAssignmentPersistFailedError(batchID string, err error) *StandardError {
	return newError(ErrCodeAssignmentPersistFailed, "Failed to persist assignments",
		fmt.Sprintf("batchId: %s, error: %v", batchID, err), err)
}

func NewReportIndexFailedError(index string, err error) *StandardError {
	return newError(ErrCodeReportIndexFailed, "Failed to index assignment report",
		fmt.Sprintf("index: %s, error: %v", index, err), err)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), err)
}

// Generic constructors

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), err)
}

func NewExternalServiceError(service string, err error) *StandardError {
	e := newError("EXTERNAL_SERVICE_ERROR", fmt.Sprintf("External service '%s' error", service), err.Error(), err)
	e.Retryable = true
	return e
}

func NewTimeoutError(service string, err error) *StandardError {
	e := newError("TIMEOUT_ERROR", fmt.Sprintf("Service '%s' timeout", service), err.Error(), err)
	e.Retryable = true
	return e
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError("RESOURCE_NOT_FOUND", fmt.Sprintf("Resource not found in %s", service), details, nil)
}

func NewBusinessRuleError(message, details string) *StandardError {
	return newError("BUSINESS_RULE_VIOLATION", message, details, nil)
}

func NewAuthenticationError(details string) *StandardError {
	return newError("AUTHENTICATION_ERROR", "Authentication failed", details, nil)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal codes to the codes modelled in the process.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidAssignmentInput:    "INVALID_ASSIGNMENT_INPUT",
	ErrCodeBatchNotFound:             "BATCH_NOT_FOUND",
	ErrCodeBatchLocked:               "BATCH_LOCKED",
	ErrCodePreferencesLoadFailed:     "PREFERENCES_LOAD_FAILED",
	ErrCodeMatcherUnavailable:        "MATCHER_UNAVAILABLE",
	ErrCodeAssignmentTimeout:         "ASSIGNMENT_TIMEOUT",
	ErrCodeCapacityInvariantViolated: "CAPACITY_INVARIANT_VIOLATED",
	ErrCodeAssignmentPersistFailed:   "ASSIGNMENT_PERSIST_FAILED",
	ErrCodeReportIndexFailed:         "REPORT_INDEX_FAILED",
	ErrCodeNotificationSendFailed:    "NOTIFICATION_SEND_FAILED",
}

// GetRetryCount returns how many times a job failing with code may be retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeBatchLocked,
		ErrCodePreferencesLoadFailed,
		ErrCodeAssignmentPersistFailed,
		ErrCodeReportIndexFailed,
		ErrCodeNotificationSendFailed,
		"EXTERNAL_SERVICE_ERROR":
		return 3

	case ErrCodeAssignmentTimeout, "TIMEOUT_ERROR":
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError for reporting to the engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode reports whether code allows retries.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory groups codes for logs and metrics.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "INPUT") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "BATCH"):
		return "BATCH"
	case strings.Contains(codeStr, "PREFERENCES") || strings.Contains(codeStr, "PERSIST"):
		return "DATABASE"
	case strings.Contains(codeStr, "MATCHER") || strings.Contains(codeStr, "CAPACITY") || strings.Contains(codeStr, "ASSIGNMENT"):
		return "ASSIGNMENT"
	case strings.Contains(codeStr, "REPORT"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
