// Package repository defines storage interfaces for domain entities.
package repository

import (
	"context"
	"errors"

	"github.com/jinsol/flowline/internal/flowline"
)

// ErrNotFound is returned when a requested record does not exist. Absence
// is a valid outcome for share lookups; callers decide how to surface it.
var ErrNotFound = errors.New("not found")

// ListQuery is the typed query configuration for workflow listings.
// IDs scopes the listing to an explicit id set (IN semantics); a non-nil
// empty slice matches nothing. WithTags and WithRoles select which
// relations are attached, chosen up front by configuration rather than
// by mutating a query object mid-flight.
type ListQuery struct {
	IDs       []string
	Name      string
	Active    *bool
	WithTags  bool
	WithRoles bool
	UserID    string // whose share role to attach when WithRoles is set
}

// WorkflowStore abstracts workflow persistence. UpdateFields performs a
// partial update keyed by id and reports no usable return value; callers
// that need the post-write state must re-read it.
type WorkflowStore interface {
	Create(ctx context.Context, wf *flowline.Workflow) error
	Get(ctx context.Context, id string, withTags bool) (*flowline.Workflow, error)
	List(ctx context.Context, q ListQuery) ([]*flowline.Workflow, error)
	Count(ctx context.Context) (int, error)
	// UpdateFields writes the entity's mutable fields. The version marker
	// is store-managed and refreshed on every write; values on wf are
	// ignored.
	UpdateFields(ctx context.Context, id string, wf *flowline.Workflow) error
	SetActive(ctx context.Context, id string, active bool) error
	// ListActiveIDs returns ids of all workflows persisted as active,
	// used to rebuild the activation runtime on startup.
	ListActiveIDs(ctx context.Context) ([]string, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// ShareStore abstracts share-record lookups. An empty userID omits the
// user constraint from the lookup, matching any holder of a share on the
// workflow.
type ShareStore interface {
	CreateShare(ctx context.Context, rec *flowline.ShareRecord) error
	Find(ctx context.Context, workflowID, userID string, withWorkflow bool) (*flowline.ShareRecord, error)
	ListWorkflowIDs(ctx context.Context, userID string) ([]string, error)
}

// TagStore reconciles the workflow-to-tag association table.
type TagStore interface {
	// ReplaceLinks removes every association for the workflow and
	// recreates one per requested tag id. Associations are a set; any
	// ordering in tagIDs is not persisted.
	ReplaceLinks(ctx context.Context, workflowID string, tagIDs []string) error
	CreateTag(ctx context.Context, tag *flowline.Tag) error
}
