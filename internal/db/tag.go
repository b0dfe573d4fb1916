package db

import (
	"context"
	"fmt"

	"github.com/jinsol/flowline/internal/flowline"
	"github.com/jinsol/flowline/internal/repository"
)

var _ repository.TagStore = (*DB)(nil)

// CreateTag stores a new tag.
func (d *DB) CreateTag(ctx context.Context, tag *flowline.Tag) error {
	if tag.ID == "" {
		tag.ID = flowline.GenerateID("tag")
	}
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO `+d.table("tags")+` (id, name) VALUES ($1, $2)`, tag.ID, tag.Name)
	if err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

// ReplaceLinks removes every tag association for the workflow and recreates
// one row per requested tag id, all within one transaction. Associations
// are a set; the order of tagIDs is not persisted.
func (d *DB) ReplaceLinks(ctx context.Context, workflowID string, tagIDs []string) error {
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tag sync: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM `+d.table("workflows_tags")+` WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("clear tag links: %w", err)
	}

	if len(tagIDs) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO `+d.table("workflows_tags")+` (workflow_id, tag_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare tag link insert: %w", err)
		}
		defer stmt.Close()
		for _, tagID := range tagIDs {
			if _, err := stmt.ExecContext(ctx, workflowID, tagID); err != nil {
				return fmt.Errorf("insert tag link %s: %w", tagID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tag sync: %w", err)
	}
	return nil
}

// tagsFor reads back a workflow's tags in storage order. Any ordering the
// caller asked for during an update is applied on the response path only.
func (d *DB) tagsFor(ctx context.Context, workflowID string) ([]flowline.Tag, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT t.id, t.name FROM `+d.table("tags")+` t
		 JOIN `+d.table("workflows_tags")+` wt ON wt.tag_id = t.id
		 WHERE wt.workflow_id = $1 ORDER BY t.id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow tags: %w", err)
	}
	defer rows.Close()

	var tags []flowline.Tag
	for rows.Next() {
		var t flowline.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
