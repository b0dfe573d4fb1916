package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jinsol/flowline/internal/flowline"
	"github.com/jinsol/flowline/internal/repository"
)

var _ repository.WorkflowStore = (*DB)(nil)

// Create stores a new workflow definition.
func (d *DB) Create(ctx context.Context, wf *flowline.Workflow) error {
	nodesJSON, err := json.Marshal(wf.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	settingsJSON, err := json.Marshal(wf.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if wf.Settings == nil {
		settingsJSON = []byte("{}")
	}

	if wf.ID == "" {
		wf.ID = flowline.GenerateID("wf")
	}
	wf.VersionID = uuid.NewString()
	now := time.Now()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO `+d.table("workflows")+` (id, name, active, nodes, settings, version_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wf.ID, wf.Name, wf.Active, nodesJSON, settingsJSON, wf.VersionID, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// Get retrieves a workflow by id, optionally attaching its tags.
func (d *DB) Get(ctx context.Context, id string, withTags bool) (*flowline.Workflow, error) {
	wf := &flowline.Workflow{}
	var nodesJSON, settingsJSON []byte

	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, name, active, nodes, settings, version_id, created_at, updated_at
		 FROM `+d.table("workflows")+` WHERE id = $1`, id,
	).Scan(&wf.ID, &wf.Name, &wf.Active, &nodesJSON, &settingsJSON, &wf.VersionID, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: workflow %s", repository.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	if err := json.Unmarshal(nodesJSON, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(settingsJSON, &wf.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if withTags {
		tags, err := d.tagsFor(ctx, id)
		if err != nil {
			return nil, err
		}
		wf.Tags = tags
	}
	return wf, nil
}

// List returns workflows matching the query configuration.
func (d *DB) List(ctx context.Context, q repository.ListQuery) ([]*flowline.Workflow, error) {
	if q.IDs != nil && len(q.IDs) == 0 {
		return []*flowline.Workflow{}, nil
	}

	var (
		where []string
		args  []any
	)
	if q.IDs != nil {
		args = append(args, pq.Array(q.IDs))
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if q.Name != "" {
		args = append(args, q.Name)
		where = append(where, fmt.Sprintf("name = $%d", len(args)))
	}
	if q.Active != nil {
		args = append(args, *q.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}

	query := `SELECT id, name, active, nodes, settings, version_id, created_at, updated_at
		 FROM ` + d.table("workflows")
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	rows, err := d.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var result []*flowline.Workflow
	for rows.Next() {
		wf := &flowline.Workflow{}
		var nodesJSON, settingsJSON []byte
		if err := rows.Scan(&wf.ID, &wf.Name, &wf.Active, &nodesJSON, &settingsJSON, &wf.VersionID, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		if err := json.Unmarshal(nodesJSON, &wf.Nodes); err != nil {
			return nil, fmt.Errorf("unmarshal nodes: %w", err)
		}
		if err := json.Unmarshal(settingsJSON, &wf.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
		result = append(result, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	if q.WithTags {
		for _, wf := range result {
			tags, err := d.tagsFor(ctx, wf.ID)
			if err != nil {
				return nil, err
			}
			wf.Tags = tags
		}
	}
	if q.WithRoles && q.UserID != "" && len(result) > 0 {
		if err := d.attachRoles(ctx, result, q.UserID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Count returns the total number of stored workflows.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := d.Pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+d.table("workflows")).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count workflows: %w", err)
	}
	return n, nil
}

// UpdateFields performs a partial update of the workflow's mutable fields.
// The version marker is store-managed and refreshed on every write; the
// value on wf is ignored.
func (d *DB) UpdateFields(ctx context.Context, id string, wf *flowline.Workflow) error {
	set := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if wf.Name != "" {
		add("name", wf.Name)
	}
	if wf.Nodes != nil {
		nodesJSON, err := json.Marshal(wf.Nodes)
		if err != nil {
			return fmt.Errorf("marshal nodes: %w", err)
		}
		add("nodes", nodesJSON)
	}
	if wf.Settings != nil {
		settingsJSON, err := json.Marshal(wf.Settings)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		add("settings", settingsJSON)
	}
	add("active", wf.Active)
	if !wf.UpdatedAt.IsZero() {
		add("updated_at", wf.UpdatedAt)
	}
	add("version_id", uuid.NewString())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		d.table("workflows"), strings.Join(set, ", "), len(args))

	res, err := d.Pool.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: workflow %s", repository.ErrNotFound, id)
	}
	return nil
}

// SetActive writes only the active flag.
func (d *DB) SetActive(ctx context.Context, id string, active bool) error {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE `+d.table("workflows")+` SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: workflow %s", repository.ErrNotFound, id)
	}
	return nil
}

// ListActiveIDs returns ids of workflows persisted as active.
func (d *DB) ListActiveIDs(ctx context.Context) ([]string, error) {
	return d.listIDs(ctx, `SELECT id FROM `+d.table("workflows")+` WHERE active = TRUE ORDER BY id`)
}

// ListIDs returns all workflow ids.
func (d *DB) ListIDs(ctx context.Context) ([]string, error) {
	return d.listIDs(ctx, `SELECT id FROM `+d.table("workflows")+` ORDER BY id`)
}

func (d *DB) listIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := d.Pool.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflow ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan workflow id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// attachRoles fills in each workflow's Role from the caller's share rows.
func (d *DB) attachRoles(ctx context.Context, workflows []*flowline.Workflow, userID string) error {
	ids := make([]string, len(workflows))
	for i, wf := range workflows {
		ids[i] = wf.ID
	}
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT workflow_id, role FROM `+d.table("shared_workflows")+`
		 WHERE user_id = $1 AND workflow_id = ANY($2)`, userID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list share roles: %w", err)
	}
	defer rows.Close()

	roles := make(map[string]string)
	for rows.Next() {
		var wfID, role string
		if err := rows.Scan(&wfID, &role); err != nil {
			return fmt.Errorf("scan share role: %w", err)
		}
		roles[wfID] = role
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, wf := range workflows {
		wf.Role = roles[wf.ID]
	}
	return nil
}
