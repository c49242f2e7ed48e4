package forcefillassignments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"placement-workers/internal/common/config"
	apperrors "placement-workers/internal/common/errors"
	"placement-workers/internal/common/logger"
	"placement-workers/internal/common/placement"
	"placement-workers/pkg/assignment"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
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
		LockTTL:      30 * time.Second,
		ResultTTL:    time.Hour,
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

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func createTestHandler(t *testing.T, db *sql.DB, rdb redis.Cmdable) *Handler {
	h := NewHandler(createTestConfig(), db, rdb, logger.NewTestLogger(t))
	h.newRunID = func() string { return "run-2" }
	h.now = func() time.Time { return fixedNow }
	return h
}

// expectCommittedBatch registers the reads for batch b1:
// A1:[S1 S2] A2:[S1 S2] A3:[S1] A4:[], capacities S1..S3 = 1,
// with A1->S1 and A2->S2 already committed.
func expectCommittedBatch(mock sqlmock.Sqlmock, status string, rows *sqlmock.Rows) {
	mock.ExpectQuery(`SELECT id, kind, status, updated_at FROM assignment_batches WHERE id = \$1`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "status", "updated_at"}).
			AddRow("b1", "subjects", status, fixedNow))
	mock.ExpectQuery(`SELECT a.applicant_id, c.slot_id FROM batch_applicants a`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"applicant_id", "slot_id"}).
			AddRow("A1", "S1").AddRow("A1", "S2").
			AddRow("A2", "S1").AddRow("A2", "S2").
			AddRow("A3", "S1").
			AddRow("A4", nil))
	mock.ExpectQuery(`SELECT slot_id, capacity FROM slot_capacities WHERE batch_id = \$1`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"slot_id", "capacity"}).
			AddRow("S1", 1).AddRow("S2", 1).AddRow("S3", 1))
	mock.ExpectQuery(`SELECT applicant_id, slot_id, phase, run_id FROM assignments WHERE batch_id = \$1`).
		WithArgs("b1").
		WillReturnRows(rows)
}

func committedRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"applicant_id", "slot_id", "phase", "run_id"}).
		AddRow("A1", "S1", "stable", "run-1").
		AddRow("A2", "S2", "stable", "run-1")
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

func TestHandler_Execute_FillsFreeSeats(t *testing.T) {
	db, mock := setupMockDB(t)
	rdb, mr := setupRedis(t)
	handler := createTestHandler(t, db, rdb)
	require.NoError(t, mr.Set(placement.ResultKey("b1"), `{"runId":"run-1"}`))

	expectCommittedBatch(mock, "assigned", committedRows())
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assignments").
		WithArgs("b1", "A3", "S3", "forced", "run-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE assignment_batches SET status = $2`)).
		WithArgs("b1", "force_filled").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	output, err := handler.Execute(context.Background(), &Input{BatchID: "b1"})
	require.NoError(t, err)

	assert.Equal(t, "run-2", output.RunID)
	assert.Equal(t, placement.StatusForceFilled, output.Status)
	assert.Equal(t, map[assignment.ApplicantID]assignment.SlotID{"A3": "S3"}, output.Forced)
	assert.Equal(t, []assignment.ApplicantID{"A4"}, output.Unassigned)
	assert.True(t, output.HasUnassigned)
	assert.Equal(t, 3, output.AssignedCount)
	require.NotNil(t, output.AverageRank)
	assert.InDelta(t, 1.5, *output.AverageRank, 1e-9, "forced pairs stay out of the average")

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.False(t, mr.Exists(placement.LockKey("b1")))

	cached, err := mr.Get(placement.ResultKey("b1"))
	require.NoError(t, err)
	var sum placement.Summary
	require.NoError(t, json.Unmarshal([]byte(cached), &sum))
	assert.Equal(t, "run-1", sum.RunID, "the summary stays keyed to the committed run")
	assert.Equal(t, placement.StatusForceFilled, sum.Status)
	assert.Equal(t, 2, sum.StableAssigned)
	assert.Equal(t, 1, sum.ForcedAssigned)
	assert.Equal(t, 3, sum.AssignedCount)
	assert.Equal(t, []assignment.ApplicantID{"A4"}, sum.Unassigned)
	assert.Equal(t, fixedNow, sum.CompletedAt)
	assert.True(t, mr.TTL(placement.ResultKey("b1")) > 0)
}

func TestHandler_Execute_NothingToFill(t *testing.T) {
	db, mock := setupMockDB(t)
	rdb, mr := setupRedis(t)
	handler := createTestHandler(t, db, rdb)
	require.NoError(t, mr.Set(placement.ResultKey("b1"), `{"runId":"run-1"}`))

	rows := committedRows().AddRow("A3", "S3", "forced", "run-1")
	expectCommittedBatch(mock, "force_filled", rows)

	output, err := handler.Execute(context.Background(), &Input{BatchID: "b1"})
	require.NoError(t, err)

	assert.Empty(t, output.Forced)
	assert.Equal(t, placement.StatusForceFilled, output.Status)
	assert.Equal(t, []assignment.ApplicantID{"A4"}, output.Unassigned)
	assert.Equal(t, 3, output.AssignedCount)

	assert.NoError(t, mock.ExpectationsWereMet(), "no writes expected")
	assert.True(t, mr.Exists(placement.ResultKey("b1")), "cache untouched when nothing changes")
}

func TestHandler_Execute_Failures(t *testing.T) {
	tests := []struct {
		name   string
		input  *Input
		setup  func(mock sqlmock.Sqlmock, mr *miniredis.Miniredis)
		expect apperrors.ErrorCode
	}{
		{
			name:   "nil input",
			expect: apperrors.ErrCodeInvalidAssignmentInput,
		},
		{
			name:   "missing batch id",
			input:  &Input{},
			expect: apperrors.ErrCodeInvalidAssignmentInput,
		},
		{
			name:  "batch locked",
			input: &Input{BatchID: "b1"},
			setup: func(_ sqlmock.Sqlmock, mr *miniredis.Miniredis) {
				_ = mr.Set(placement.LockKey("b1"), "run-1")
			},
			expect: apperrors.ErrCodeBatchLocked,
		},
		{
			name:  "batch not found",
			input: &Input{BatchID: "b1"},
			setup: func(mock sqlmock.Sqlmock, _ *miniredis.Miniredis) {
				mock.ExpectQuery(`SELECT id, kind, status`).WillReturnError(sql.ErrNoRows)
			},
			expect: apperrors.ErrCodeBatchNotFound,
		},
		{
			name:  "batch never assigned",
			input: &Input{BatchID: "b1"},
			setup: func(mock sqlmock.Sqlmock, _ *miniredis.Miniredis) {
				mock.ExpectQuery(`SELECT id, kind, status`).
					WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "status", "updated_at"}).
						AddRow("b1", "subjects", "open", fixedNow))
			},
			expect: apperrors.ErrCodeInvalidAssignmentInput,
		},
		{
			name:  "assignments unreadable",
			input: &Input{BatchID: "b1"},
			setup: func(mock sqlmock.Sqlmock, _ *miniredis.Miniredis) {
				expectCommittedBatch(mock, "assigned", committedRows().RowError(1, errors.New("broken row")))
			},
			expect: apperrors.ErrCodePreferencesLoadFailed,
		},
		{
			name:  "persist failed",
			input: &Input{BatchID: "b1"},
			setup: func(mock sqlmock.Sqlmock, _ *miniredis.Miniredis) {
				expectCommittedBatch(mock, "assigned", committedRows())
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO assignments").WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			expect: apperrors.ErrCodeAssignmentPersistFailed,
		},
		{
			name:  "committed rows exceed capacity",
			input: &Input{BatchID: "b1"},
			setup: func(mock sqlmock.Sqlmock, _ *miniredis.Miniredis) {
				rows := committedRows().AddRow("A3", "S1", "cascade", "run-1")
				expectCommittedBatch(mock, "assigned", rows)
			},
			expect: apperrors.ErrCodeCapacityInvariantViolated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			rdb, mr := setupRedis(t)
			handler := createTestHandler(t, db, rdb)
			if tt.setup != nil {
				tt.setup(mock, mr)
			}

			_, err := handler.Execute(context.Background(), tt.input)
			requireCode(t, err, tt.expect)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	appCfg := &config.Config{
		Workers: map[string]config.WorkerConfig{
			TaskType: {Enabled: true, Timeout: 20000, MaxRetries: 1, RetryBackoff: 500},
		},
		Assignment: config.AssignmentConfig{LockTTL: 60000, ResultTTL: 3600000},
	}

	cfg := LoadConfig(appCfg)
	assert.Equal(t, 20*time.Second, cfg.Timeout)
	assert.Equal(t, time.Minute, cfg.LockTTL)
	assert.Equal(t, time.Hour, cfg.ResultTTL)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	require.NoError(t, cfg.Validate())
}
