package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jinsol/flowline/internal/config"
	"github.com/jinsol/flowline/internal/flowline"
	"github.com/jinsol/flowline/internal/flowline/ports"
	"github.com/jinsol/flowline/internal/repository"
)

// WorkflowService orchestrates workflow mutations against persisted state
// and the activation runtime. It is the only caller path that toggles a
// workflow's triggers, and it guarantees the persisted active flag mirrors
// actual runtime registration when each operation returns.
//
// Concurrent updates against the same workflow id are not serialized here;
// correctness under that race relies on the store's row-level guarantees.
type WorkflowService struct {
	workflows repository.WorkflowStore
	shares    repository.ShareStore
	tags      repository.TagStore
	runtime   ports.ActivationRuntime
	cfg       config.WorkflowConfig
}

// NewWorkflowService creates a WorkflowService. The workflow configuration
// is captured here once; nothing in the flow reads ambient state.
func NewWorkflowService(
	workflows repository.WorkflowStore,
	shares repository.ShareStore,
	tags repository.TagStore,
	runtime ports.ActivationRuntime,
	cfg config.WorkflowConfig,
) *WorkflowService {
	return &WorkflowService{
		workflows: workflows,
		shares:    shares,
		tags:      tags,
		runtime:   runtime,
		cfg:       cfg,
	}
}

// Update applies a proposed mutation to the workflow and brings the
// activation runtime in line with the result.
//
// The sequence is fixed: authorize, deactivate if currently active,
// normalize, persist, sync tags, reload the canonical record, reorder tags
// for display, reactivate if the result is active. A failure at any step
// aborts the rest; only a reactivation failure triggers compensation,
// which forces the active flag to false in storage and returns the
// original runtime error unchanged.
//
// tagIDs nil means "leave tag associations alone"; an empty non-nil slice
// clears them.
func (s *WorkflowService) Update(ctx context.Context, user *flowline.User, proposed *flowline.Workflow, id string, tagIDs []string) (*flowline.Workflow, error) {
	rec, err := ResolveShare(ctx, s.workflows, s.shares, user, id, true, true)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve share: %w", err)
	}

	// Triggers must never run against a mid-update definition, so an
	// active workflow is taken off the runtime before any field changes.
	wasActive := rec.Workflow.Active
	if wasActive {
		if err := s.runtime.Remove(ctx, id); err != nil {
			return nil, fmt.Errorf("deactivate before update: %w", err)
		}
	}

	if err := Normalize(proposed, s.cfg.DefaultTimeout); err != nil {
		return nil, err
	}

	if err := s.workflows.UpdateFields(ctx, id, proposed); err != nil {
		return nil, fmt.Errorf("persist update: %w", err)
	}

	if tagIDs != nil && !s.cfg.TagsDisabled {
		if err := s.tags.ReplaceLinks(ctx, id, tagIDs); err != nil {
			return nil, fmt.Errorf("sync tags: %w", err)
		}
	}

	// The partial update reports nothing usable, so the canonical state
	// comes from a re-read. Absence here means the row vanished between
	// the write and the read.
	reloaded, err := s.workflows.Get(ctx, id, !s.cfg.TagsDisabled)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrIntegrity
	}
	if err != nil {
		return nil, fmt.Errorf("reload workflow: %w", err)
	}

	if len(reloaded.Tags) > 0 && len(tagIDs) > 0 {
		reloaded.Tags = ReorderForDisplay(reloaded.Tags, tagIDs)
	}

	if reloaded.Active {
		mode := flowline.ModeActivate
		if wasActive {
			mode = flowline.ModeUpdate
		}
		if err := s.runtime.Add(ctx, id, mode); err != nil {
			// The runtime holds nothing for this workflow now, so the
			// persisted flag must say inactive before the error goes
			// back to the caller.
			proposed.Active = false
			reloaded.Active = false
			if perr := s.workflows.SetActive(ctx, id, false); perr != nil {
				slog.Error("workflow: compensating deactivation write failed, flag out of sync",
					"workflow", id, "err", perr)
			}
			return nil, err
		}
	}

	return reloaded, nil
}

// Get returns a workflow the user may see, with tags unless disabled.
func (s *WorkflowService) Get(ctx context.Context, user *flowline.User, id string) (*flowline.Workflow, error) {
	_, err := ResolveShare(ctx, s.workflows, s.shares, user, id, false, true)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve share: %w", err)
	}
	wf, err := s.workflows.Get(ctx, id, !s.cfg.TagsDisabled)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	return wf, err
}

// List returns the workflows shared with the user, narrowed by an optional
// raw filter payload. A filter id outside the caller's shared set yields
// an empty listing, never the record itself.
func (s *WorkflowService) List(ctx context.Context, user *flowline.User, rawFilter []byte) ([]*flowline.Workflow, error) {
	sharedIDs, err := SharedWorkflowIDs(ctx, s.workflows, s.shares, user)
	if err != nil {
		return nil, fmt.Errorf("resolve shared ids: %w", err)
	}

	filter, err := ParseListFilter(rawFilter)
	if err != nil {
		return nil, err
	}

	q := repository.ListQuery{
		IDs:       sharedIDs,
		WithTags:  !s.cfg.TagsDisabled,
		WithRoles: s.cfg.SharingEnabled,
		UserID:    user.ID,
	}
	if filter != nil {
		if filter.ID != "" {
			if !slices.Contains(sharedIDs, filter.ID) {
				return []*flowline.Workflow{}, nil
			}
			q.IDs = []string{filter.ID}
		}
		q.Name = filter.Name
		q.Active = filter.Active
	}

	out, err := s.workflows.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	if out == nil {
		out = []*flowline.Workflow{}
	}
	return out, nil
}

// Count returns the total number of stored workflows.
func (s *WorkflowService) Count(ctx context.Context) (int, error) {
	return s.workflows.Count(ctx)
}

// Activate registers the workflow's triggers and then persists the active
// flag. Registration comes first: if it fails, storage still says inactive
// and the runtime error is returned unchanged.
func (s *WorkflowService) Activate(ctx context.Context, user *flowline.User, id string) (*flowline.Workflow, error) {
	rec, err := ResolveShare(ctx, s.workflows, s.shares, user, id, true, true)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve share: %w", err)
	}
	if rec.Workflow.Active {
		return s.workflows.Get(ctx, id, !s.cfg.TagsDisabled)
	}

	if err := s.runtime.Add(ctx, id, flowline.ModeActivate); err != nil {
		return nil, err
	}
	if err := s.workflows.SetActive(ctx, id, true); err != nil {
		// Storage still says inactive; take the triggers back down so
		// the runtime agrees.
		if rerr := s.runtime.Remove(ctx, id); rerr != nil {
			slog.Error("workflow: could not deregister after failed flag write",
				"workflow", id, "err", rerr)
		}
		return nil, fmt.Errorf("persist activation: %w", err)
	}
	return s.workflows.Get(ctx, id, !s.cfg.TagsDisabled)
}

// Deactivate persists the inactive flag and removes the workflow's
// triggers from the runtime.
func (s *WorkflowService) Deactivate(ctx context.Context, user *flowline.User, id string) (*flowline.Workflow, error) {
	rec, err := ResolveShare(ctx, s.workflows, s.shares, user, id, true, true)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve share: %w", err)
	}

	if rec.Workflow.Active {
		if err := s.workflows.SetActive(ctx, id, false); err != nil {
			return nil, fmt.Errorf("persist deactivation: %w", err)
		}
	}
	if err := s.runtime.Remove(ctx, id); err != nil {
		return nil, fmt.Errorf("deregister triggers: %w", err)
	}
	return s.workflows.Get(ctx, id, !s.cfg.TagsDisabled)
}
