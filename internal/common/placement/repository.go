package placement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"placement-workers/internal/common/database"
	"placement-workers/pkg/assignment"
)

var ErrBatchNotFound = errors.New("placement: batch not found")

const (
	selectBatchQuery = `SELECT id, kind, status, updated_at FROM assignment_batches WHERE id = $1`

	// Applicants without any choice still come back once, with a NULL slot.
	selectPreferencesQuery = `SELECT a.applicant_id, c.slot_id
FROM batch_applicants a
LEFT JOIN applicant_choices c ON c.batch_id = a.batch_id AND c.applicant_id = a.applicant_id
WHERE a.batch_id = $1
ORDER BY a.applicant_id, c.rank`

	selectCapacitiesQuery = `SELECT slot_id, capacity FROM slot_capacities WHERE batch_id = $1 ORDER BY slot_id`

	selectAssignmentsQuery = `SELECT applicant_id, slot_id, phase, run_id FROM assignments WHERE batch_id = $1 ORDER BY applicant_id`

	deleteAssignmentsQuery = `DELETE FROM assignments WHERE batch_id = $1`

	insertAssignmentQuery = `INSERT INTO assignments (batch_id, applicant_id, slot_id, phase, run_id, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())`

	updateBatchStatusQuery = `UPDATE assignment_batches SET status = $2, updated_at = NOW() WHERE id = $1`
)

// Repository reads batch inputs and writes committed runs.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) LoadBatch(ctx context.Context, batchID string) (*Batch, error) {
	var b Batch
	err := r.db.QueryRowContext(ctx, selectBatchQuery, batchID).
		Scan(&b.ID, &b.Kind, &b.Status, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	return &b, nil
}

// LoadPreferences returns every applicant of the batch with its choices in
// rank order. Applicants with no choices map to an empty list.
func (r *Repository) LoadPreferences(ctx context.Context, batchID string) (assignment.Preferences, error) {
	rows, err := r.db.QueryContext(ctx, selectPreferencesQuery, batchID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(assignment.Preferences)
	for rows.Next() {
		var applicant string
		var slot sql.NullString
		if err := rows.Scan(&applicant, &slot); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		id := assignment.ApplicantID(applicant)
		list, ok := prefs[id]
		if !ok {
			list = []assignment.SlotID{}
		}
		if slot.Valid {
			list = append(list, assignment.SlotID(slot.String))
		}
		prefs[id] = list
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return prefs, nil
}

func (r *Repository) LoadCapacities(ctx context.Context, batchID string) (assignment.Capacities, error) {
	rows, err := r.db.QueryContext(ctx, selectCapacitiesQuery, batchID)
	if err != nil {
		return nil, fmt.Errorf("query capacities: %w", err)
	}
	defer rows.Close()

	caps := make(assignment.Capacities)
	for rows.Next() {
		var slot string
		var capacity int
		if err := rows.Scan(&slot, &capacity); err != nil {
			return nil, fmt.Errorf("scan capacity: %w", err)
		}
		caps[assignment.SlotID(slot)] = capacity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capacities: %w", err)
	}
	return caps, nil
}

// LoadProblem reads preferences and capacities together.
func (r *Repository) LoadProblem(ctx context.Context, batchID string) (*Problem, error) {
	prefs, err := r.LoadPreferences(ctx, batchID)
	if err != nil {
		return nil, err
	}
	caps, err := r.LoadCapacities(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &Problem{Preferences: prefs, Capacities: caps}, nil
}

func (r *Repository) LoadAssignments(ctx context.Context, batchID string) ([]AssignmentRow, error) {
	rows, err := r.db.QueryContext(ctx, selectAssignmentsQuery, batchID)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var out []AssignmentRow
	for rows.Next() {
		var row AssignmentRow
		if err := rows.Scan(&row.ApplicantID, &row.SlotID, &row.Phase, &row.RunID); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

// SaveOutcome replaces the batch's assignments with out and moves the batch
// to its new status, all in one transaction. It returns the new status.
func (r *Repository) SaveOutcome(ctx context.Context, batchID, runID string, out *assignment.Outcome) (Status, error) {
	status := StatusAssigned
	if out.ForcedAssigned > 0 {
		status = StatusForceFilled
	}

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteAssignmentsQuery, batchID); err != nil {
			return fmt.Errorf("clear assignments: %w", err)
		}
		for _, a := range sortedApplicants(out.Result.Assignments) {
			if _, err := tx.ExecContext(ctx, insertAssignmentQuery,
				batchID, string(a), string(out.Result.Assignments[a]), string(out.Phases[a]), runID); err != nil {
				return fmt.Errorf("insert assignment %s: %w", a, err)
			}
		}
		return updateStatus(ctx, tx, batchID, status)
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// AppendForced adds forced pairs to an already committed batch.
func (r *Repository) AppendForced(ctx context.Context, batchID, runID string, forced map[assignment.ApplicantID]assignment.SlotID) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, a := range sortedApplicants(forced) {
			if _, err := tx.ExecContext(ctx, insertAssignmentQuery,
				batchID, string(a), string(forced[a]), string(assignment.PhaseForced), runID); err != nil {
				return fmt.Errorf("insert forced assignment %s: %w", a, err)
			}
		}
		return updateStatus(ctx, tx, batchID, StatusForceFilled)
	})
}

func updateStatus(ctx context.Context, tx *sql.Tx, batchID string, status Status) error {
	res, err := tx.ExecContext(ctx, updateBatchStatusQuery, batchID, string(status))
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	return nil
}
