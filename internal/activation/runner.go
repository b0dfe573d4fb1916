// Package activation holds the process-wide registry of active workflow
// triggers. A workflow's persisted active flag must mirror whether this
// registry currently holds its triggers; the services layer owns that
// bookkeeping.
package activation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/jinsol/flowline/internal/flowline"
	"github.com/jinsol/flowline/internal/flowline/ports"
	"github.com/jinsol/flowline/internal/repository"
)

var _ ports.ActivationRuntime = (*Runner)(nil)

// ExecuteFunc is invoked when a registered trigger fires.
type ExecuteFunc func(workflowID, nodeID string)

// Runner registers active workflows' schedule triggers with a cron
// scheduler and tracks webhook triggers in a path table. One Runner exists
// per process.
type Runner struct {
	cron    *cron.Cron
	store   repository.WorkflowStore
	execute ExecuteFunc

	mu       sync.RWMutex
	entries  map[string][]cron.EntryID // workflow id → cron entries
	webhooks map[string]string         // path → workflow id
}

// NewRunner creates a Runner. execute may be nil, in which case fired
// triggers are only logged.
func NewRunner(store repository.WorkflowStore, execute ExecuteFunc) *Runner {
	if execute == nil {
		execute = func(workflowID, nodeID string) {
			slog.Info("activation: trigger fired", "workflow", workflowID, "node", nodeID)
		}
	}
	return &Runner{
		cron:     cron.New(cron.WithSeconds()),
		store:    store,
		execute:  execute,
		entries:  make(map[string][]cron.EntryID),
		webhooks: make(map[string]string),
	}
}

// Start begins the cron scheduler and registers every workflow persisted
// as active. A workflow whose registration fails has its active flag
// forced to false so storage and runtime stay in sync.
func (r *Runner) Start(ctx context.Context) error {
	ids, err := r.store.ListActiveIDs(ctx)
	if err != nil {
		return fmt.Errorf("load active workflows: %w", err)
	}
	for _, id := range ids {
		if err := r.Add(ctx, id, flowline.ModeInit); err != nil {
			slog.Error("activation: startup registration failed, deactivating",
				"workflow", id, "err", err)
			if err := r.store.SetActive(ctx, id, false); err != nil {
				slog.Error("activation: could not persist forced deactivation",
					"workflow", id, "err", err)
			}
		}
	}
	r.cron.Start()
	slog.Info("activation: runner started", "active", len(r.entries))
	return nil
}

// Stop gracefully stops the cron scheduler, waiting for running jobs.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	slog.Info("activation: runner stopped")
}

// Add loads the workflow and registers its triggers. Mode "update"
// re-registers an already-active workflow, so any existing entries are
// removed first. Registration is all-or-nothing: on failure nothing of the
// workflow remains registered.
func (r *Runner) Add(ctx context.Context, workflowID string, mode flowline.ActivationMode) error {
	wf, err := r.store.Get(ctx, workflowID, false)
	if err != nil {
		return err
	}

	triggers := wf.TriggerNodes()
	if len(triggers) == 0 {
		return fmt.Errorf("workflow %s has no trigger nodes to activate", workflowID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if mode == flowline.ModeUpdate {
		r.removeLocked(workflowID)
	}

	var added []cron.EntryID
	var paths []string
	fail := func(err error) error {
		for _, id := range added {
			r.cron.Remove(id)
		}
		for _, p := range paths {
			delete(r.webhooks, p)
		}
		return err
	}

	for _, node := range triggers {
		switch node.Type {
		case flowline.NodeTypeSchedule:
			expr, _ := node.Config["cron"].(string)
			tz, _ := node.Config["timezone"].(string)
			sched, err := parseCronExpr(expr, tz)
			if err != nil {
				return fail(fmt.Errorf("node %s: invalid cron expression %q: %w", node.ID, expr, err))
			}
			nodeID := node.ID
			added = append(added, r.cron.Schedule(sched, cron.FuncJob(func() {
				r.execute(workflowID, nodeID)
			})))
		case flowline.NodeTypeWebhook:
			path, _ := node.Config["path"].(string)
			if path == "" {
				return fail(fmt.Errorf("node %s: webhook trigger has no path", node.ID))
			}
			if owner, taken := r.webhooks[path]; taken && owner != workflowID {
				return fail(fmt.Errorf("node %s: webhook path %q already registered by workflow %s", node.ID, path, owner))
			}
			r.webhooks[path] = workflowID
			paths = append(paths, path)
		}
	}

	r.entries[workflowID] = added
	slog.Info("activation: registered workflow",
		"workflow", workflowID, "mode", string(mode), "triggers", len(triggers))
	return nil
}

// Remove deregisters all of the workflow's triggers. Removing a workflow
// that is not registered is a no-op.
func (r *Runner) Remove(ctx context.Context, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(workflowID)
	return nil
}

func (r *Runner) removeLocked(workflowID string) {
	for _, id := range r.entries[workflowID] {
		r.cron.Remove(id)
	}
	delete(r.entries, workflowID)
	for path, owner := range r.webhooks {
		if owner == workflowID {
			delete(r.webhooks, path)
		}
	}
}

// IsActive reports whether the workflow currently has triggers registered.
func (r *Runner) IsActive(workflowID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[workflowID]
	return ok
}

// WebhookOwner resolves a webhook path to the workflow that registered it.
func (r *Runner) WebhookOwner(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.webhooks[path]
	return id, ok
}

// parseCronExpr tries 6-field (with seconds) then 5-field (standard) parsing.
// If timezone is non-empty and non-UTC, it is applied via the CRON_TZ= prefix.
func parseCronExpr(expr string, timezone string) (cron.Schedule, error) {
	if timezone != "" && timezone != "UTC" {
		expr = "CRON_TZ=" + timezone + " " + expr
	}
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser6.Parse(expr)
	if err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser5.Parse(expr)
}
