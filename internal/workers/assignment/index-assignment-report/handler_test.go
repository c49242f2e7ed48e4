package indexassignmentreport

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"placement-workers/internal/common/config"
	"placement-workers/internal/common/database"
	apperrors "placement-workers/internal/common/errors"
	"placement-workers/internal/common/logger"
	"placement-workers/internal/common/placement"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func createTestConfig() *Config {
	return &Config{
		Timeout:      5 * time.Second,
		Index:        "assignment-reports",
		MaxRetries:   3,
		RetryBackoff: time.Second,
	}
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type indexRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// setupElasticsearch starts a fake cluster answering index requests with
// status and records what it receives.
func setupElasticsearch(t *testing.T, status int) (*database.ElasticsearchClient, *[]indexRequest) {
	t.Helper()
	var requests []indexRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		raw, _ := io.ReadAll(r.Body)
		req := indexRequest{Method: r.Method, Path: r.URL.Path}
		_ = json.Unmarshal(raw, &req.Body)
		requests = append(requests, req)

		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte(`{"error":{"type":"cluster_block_exception"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := database.NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client, &requests
}

func createTestHandler(t *testing.T, db *sql.DB, indexer DocumentIndexer) *Handler {
	h := NewHandler(createTestConfig(), db, indexer, logger.NewTestLogger(t))
	h.now = func() time.Time { return fixedNow }
	return h
}

// expectReportLoad registers the reads for force-filled batch b1:
// A1:[S1 S2] A2:[S1 S2] A3:[S1] A4:[], capacities S1..S3 = 1.
func expectReportLoad(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT id, kind, status, updated_at FROM assignment_batches`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "status", "updated_at"}).
			AddRow("b1", "subjects", "force_filled", fixedNow))
	mock.ExpectQuery(`SELECT a.applicant_id, c.slot_id FROM batch_applicants a`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"applicant_id", "slot_id"}).
			AddRow("A1", "S1").AddRow("A1", "S2").
			AddRow("A2", "S1").AddRow("A2", "S2").
			AddRow("A3", "S1").
			AddRow("A4", nil))
	mock.ExpectQuery(`SELECT slot_id, capacity FROM slot_capacities`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"slot_id", "capacity"}).
			AddRow("S1", 1).AddRow("S2", 1).AddRow("S3", 1))
	mock.ExpectQuery(`SELECT applicant_id, slot_id, phase, run_id FROM assignments`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"applicant_id", "slot_id", "phase", "run_id"}).
			AddRow("A1", "S1", "stable", "run-1").
			AddRow("A2", "S2", "stable", "run-1").
			AddRow("A3", "S3", "forced", "run-2"))
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok, "expected StandardError, got %T", err)
	assert.Equal(t, code, stdErr.Code)
}

// ==========================
// Execute
// ==========================

func TestHandler_Execute_IndexesReport(t *testing.T) {
	db, mock := setupMockDB(t)
	es, requests := setupElasticsearch(t, http.StatusCreated)
	handler := createTestHandler(t, db, es)

	expectReportLoad(mock)

	output, err := handler.Execute(context.Background(), &Input{BatchID: "b1", RunID: "run-2"})
	require.NoError(t, err)

	assert.Equal(t, "assignment-reports", output.ReportIndex)
	assert.Equal(t, "run-2", output.ReportID)
	assert.Equal(t, placement.StatusForceFilled, output.Status)
	assert.Equal(t, 3, output.AssignedCount)
	assert.Equal(t, 1, output.Unassigned)
	assert.Equal(t, "2026-03-01T09:00:00Z", output.IndexedAt)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/assignment-reports/_doc/run-2", req.Path)
	assert.Equal(t, "b1", req.Body["batchId"])
	assert.Equal(t, "subjects", req.Body["kind"])
	assert.Equal(t, float64(2), req.Body["stableAssigned"])
	assert.Equal(t, float64(1), req.Body["forcedAssigned"])
	assert.Equal(t, 1.5, req.Body["averageRank"])
	assert.Len(t, req.Body["assignments"], 3)
	assert.Len(t, req.Body["slotLoad"], 3)
}

func TestHandler_Execute_IndexesEitherRunOfBatch(t *testing.T) {
	db, mock := setupMockDB(t)
	es, requests := setupElasticsearch(t, http.StatusCreated)
	handler := createTestHandler(t, db, es)

	expectReportLoad(mock)

	output, err := handler.Execute(context.Background(), &Input{BatchID: "b1", RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", output.ReportID)
	require.Len(t, *requests, 1)
	assert.Equal(t, "/assignment-reports/_doc/run-1", (*requests)[0].Path)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_IndexRejected(t *testing.T) {
	db, mock := setupMockDB(t)
	es, _ := setupElasticsearch(t, http.StatusForbidden)
	handler := createTestHandler(t, db, es)

	expectReportLoad(mock)

	_, err := handler.Execute(context.Background(), &Input{BatchID: "b1", RunID: "run-2"})
	requireCode(t, err, apperrors.ErrCodeReportIndexFailed)
	assert.Contains(t, err.Error(), "cluster_block_exception")

	stdErr, _ := apperrors.AsStandardError(err)
	assert.True(t, stdErr.Retryable)
}

func TestHandler_Execute_Failures(t *testing.T) {
	tests := []struct {
		name   string
		input  *Input
		setup  func(mock sqlmock.Sqlmock)
		expect apperrors.ErrorCode
	}{
		{name: "nil input", expect: apperrors.ErrCodeInvalidAssignmentInput},
		{name: "missing run id", input: &Input{BatchID: "b1"}, expect: apperrors.ErrCodeInvalidAssignmentInput},
		{
			name:  "batch not found",
			input: &Input{BatchID: "b1", RunID: "run-1"},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, kind, status`).WillReturnError(sql.ErrNoRows)
			},
			expect: apperrors.ErrCodeBatchNotFound,
		},
		{
			name:  "batch still open",
			input: &Input{BatchID: "b1", RunID: "run-1"},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, kind, status`).
					WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "status", "updated_at"}).
						AddRow("b1", "internships", "open", fixedNow))
			},
			expect: apperrors.ErrCodeInvalidAssignmentInput,
		},
		{
			name:   "run replaced by a rerun",
			input:  &Input{BatchID: "b1", RunID: "run-0"},
			setup:  expectReportLoad,
			expect: apperrors.ErrCodeInvalidAssignmentInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			es, requests := setupElasticsearch(t, http.StatusCreated)
			handler := createTestHandler(t, db, es)
			if tt.setup != nil {
				tt.setup(mock)
			}

			_, err := handler.Execute(context.Background(), tt.input)
			requireCode(t, err, tt.expect)
			assert.Empty(t, *requests, "nothing should be indexed")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	appCfg := &config.Config{
		Workers:    map[string]config.WorkerConfig{},
		Assignment: config.AssignmentConfig{ReportIndex: "reports-v2"},
	}

	cfg := LoadConfig(appCfg)
	assert.Equal(t, "reports-v2", cfg.Index)
	assert.Equal(t, 30*time.Second, cfg.Timeout, "worker defaults apply")
	require.NoError(t, cfg.Validate())

	cfg.Index = ""
	assert.Error(t, cfg.Validate())
}
