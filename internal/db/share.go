package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jinsol/flowline/internal/flowline"
	"github.com/jinsol/flowline/internal/repository"
)

var _ repository.ShareStore = (*DB)(nil)

// CreateShare grants a user access to a workflow.
func (d *DB) CreateShare(ctx context.Context, rec *flowline.ShareRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO `+d.table("shared_workflows")+` (workflow_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, $4)`,
		rec.WorkflowID, rec.UserID, rec.Role, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

// Find looks up a single share record for the workflow. An empty userID
// omits the user constraint, matching any holder of a share. Absence is
// reported as repository.ErrNotFound, never as a query failure.
func (d *DB) Find(ctx context.Context, workflowID, userID string, withWorkflow bool) (*flowline.ShareRecord, error) {
	query := `SELECT workflow_id, user_id, role, created_at
		 FROM ` + d.table("shared_workflows") + ` WHERE workflow_id = $1`
	args := []any{workflowID}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}
	query += ` LIMIT 1`

	rec := &flowline.ShareRecord{}
	err := d.Pool.QueryRowContext(ctx, query, args...).
		Scan(&rec.WorkflowID, &rec.UserID, &rec.Role, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: share for workflow %s", repository.ErrNotFound, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("find share: %w", err)
	}

	if withWorkflow {
		wf, err := d.Get(ctx, workflowID, false)
		if err != nil {
			return nil, err
		}
		rec.Workflow = wf
	}
	return rec, nil
}

// ListWorkflowIDs returns every workflow id shared with the user.
func (d *DB) ListWorkflowIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT workflow_id FROM `+d.table("shared_workflows")+` WHERE user_id = $1 ORDER BY workflow_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list shared ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan shared id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
