package services

import (
	"context"
	"errors"

	"github.com/jinsol/flowline/internal/flowline"
	"github.com/jinsol/flowline/internal/repository"
)

// ResolveShare looks up the share record that lets user act on workflowID.
// When allowGlobalOwner is set and the user holds the global-owner role,
// the user constraint is omitted from the lookup, granting access to any
// workflow, including one with no share records at all, for which a
// synthetic owner record is returned. Absence is reported as
// repository.ErrNotFound: a valid, expected outcome the caller interprets
// as "no access or does not exist".
func ResolveShare(ctx context.Context, workflows repository.WorkflowStore, shares repository.ShareStore, user *flowline.User, workflowID string, withWorkflow, allowGlobalOwner bool) (*flowline.ShareRecord, error) {
	bypass := allowGlobalOwner && user.IsGlobalOwner()
	userID := user.ID
	if bypass {
		userID = ""
	}

	rec, err := shares.Find(ctx, workflowID, userID, withWorkflow)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, repository.ErrNotFound) || !bypass {
		return nil, err
	}

	// Global owner, no share rows: access is granted as long as the
	// workflow itself exists.
	wf, err := workflows.Get(ctx, workflowID, false)
	if err != nil {
		return nil, err
	}
	rec = &flowline.ShareRecord{
		WorkflowID: workflowID,
		UserID:     user.ID,
		Role:       flowline.RoleGlobalOwner,
	}
	if withWorkflow {
		rec.Workflow = wf
	}
	return rec, nil
}

// SharedWorkflowIDs returns every workflow id the user may see: all ids
// for a global owner, otherwise the ids of their share records. The result
// is never nil so it can scope an IN query directly.
func SharedWorkflowIDs(ctx context.Context, workflows repository.WorkflowStore, shares repository.ShareStore, user *flowline.User) ([]string, error) {
	var (
		ids []string
		err error
	)
	if user.IsGlobalOwner() {
		ids, err = workflows.ListIDs(ctx)
	} else {
		ids, err = shares.ListWorkflowIDs(ctx, user.ID)
	}
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
