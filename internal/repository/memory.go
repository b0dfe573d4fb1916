package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jinsol/flowline/internal/flowline"
	memstore "github.com/jinsol/flowline/internal/repository/memory"
)

// Memory is a thread-safe in-memory implementation of WorkflowStore,
// ShareStore, and TagStore. It mimics the relational store's semantics
// (partial updates with a refreshed version marker, eager relation
// attachment, share lookups with an optional user constraint) so services
// can be exercised without a database.
type Memory struct {
	workflows *memstore.Store[*flowline.Workflow]
	tags      *memstore.Store[*flowline.Tag]

	mu     sync.RWMutex
	shares []*flowline.ShareRecord
	links  map[string]map[string]struct{} // workflow id → tag id set
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		workflows: memstore.New(func(w *flowline.Workflow) string { return w.ID }),
		tags:      memstore.New(func(t *flowline.Tag) string { return t.ID }),
		links:     make(map[string]map[string]struct{}),
	}
}

var _ WorkflowStore = (*Memory)(nil)
var _ ShareStore = (*Memory)(nil)
var _ TagStore = (*Memory)(nil)

func (m *Memory) Create(ctx context.Context, wf *flowline.Workflow) error {
	cp := cloneWorkflow(wf)
	if cp.VersionID == "" {
		cp.VersionID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
		cp.UpdatedAt = cp.CreatedAt
	}
	cp.Tags = nil
	return m.workflows.Set(ctx, cp)
}

func (m *Memory) Get(ctx context.Context, id string, withTags bool) (*flowline.Workflow, error) {
	wf, err := m.workflows.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	out := cloneWorkflow(wf)
	if withTags {
		out.Tags = m.tagsFor(ctx, id)
	}
	return out, nil
}

func (m *Memory) List(ctx context.Context, q ListQuery) ([]*flowline.Workflow, error) {
	var scope map[string]struct{}
	if q.IDs != nil {
		scope = make(map[string]struct{}, len(q.IDs))
		for _, id := range q.IDs {
			scope[id] = struct{}{}
		}
	}
	rows, err := m.workflows.Filter(ctx, func(w *flowline.Workflow) bool {
		if scope != nil {
			if _, ok := scope[w.ID]; !ok {
				return false
			}
		}
		if q.Name != "" && w.Name != q.Name {
			return false
		}
		if q.Active != nil && w.Active != *q.Active {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	out := make([]*flowline.Workflow, 0, len(rows))
	for _, w := range rows {
		cp := cloneWorkflow(w)
		if q.WithTags {
			cp.Tags = m.tagsFor(ctx, w.ID)
		}
		if q.WithRoles {
			if rec, err := m.Find(ctx, w.ID, q.UserID, false); err == nil {
				cp.Role = rec.Role
			}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	all, err := m.workflows.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (m *Memory) UpdateFields(ctx context.Context, id string, wf *flowline.Workflow) error {
	cur, err := m.workflows.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	next := cloneWorkflow(cur)
	if wf.Name != "" {
		next.Name = wf.Name
	}
	if wf.Nodes != nil {
		next.Nodes = cloneNodes(wf.Nodes)
	}
	if wf.Settings != nil {
		next.Settings = cloneSettings(wf.Settings)
	}
	next.Active = wf.Active
	if !wf.UpdatedAt.IsZero() {
		next.UpdatedAt = wf.UpdatedAt
	}
	// Version marker is store-managed, refreshed on every write.
	next.VersionID = uuid.NewString()
	return m.workflows.Set(ctx, next)
}

func (m *Memory) SetActive(ctx context.Context, id string, active bool) error {
	cur, err := m.workflows.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	next := cloneWorkflow(cur)
	next.Active = active
	return m.workflows.Set(ctx, next)
}

func (m *Memory) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := m.workflows.Filter(ctx, func(w *flowline.Workflow) bool { return w.Active })
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, w := range rows {
		ids = append(ids, w.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := m.workflows.All(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, w := range rows {
		ids = append(ids, w.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// --- ShareStore ---

func (m *Memory) CreateShare(ctx context.Context, rec *flowline.ShareRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.Workflow = nil
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.shares = append(m.shares, &cp)
	return nil
}

func (m *Memory) Find(ctx context.Context, workflowID, userID string, withWorkflow bool) (*flowline.ShareRecord, error) {
	m.mu.RLock()
	var found *flowline.ShareRecord
	for _, s := range m.shares {
		if s.WorkflowID != workflowID {
			continue
		}
		if userID != "" && s.UserID != userID {
			continue
		}
		found = s
		break
	}
	m.mu.RUnlock()
	if found == nil {
		return nil, fmt.Errorf("%w: share for workflow %s", ErrNotFound, workflowID)
	}
	out := *found
	if withWorkflow {
		wf, err := m.Get(ctx, workflowID, false)
		if err != nil {
			return nil, err
		}
		out.Workflow = wf
	}
	return &out, nil
}

func (m *Memory) ListWorkflowIDs(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, s := range m.shares {
		if s.UserID == userID {
			ids = append(ids, s.WorkflowID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- TagStore ---

func (m *Memory) CreateTag(ctx context.Context, tag *flowline.Tag) error {
	cp := *tag
	return m.tags.Set(ctx, &cp)
}

func (m *Memory) ReplaceLinks(ctx context.Context, workflowID string, tagIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.links, workflowID)
	if len(tagIDs) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		set[id] = struct{}{}
	}
	m.links[workflowID] = set
	return nil
}

// tagsFor reads back a workflow's tags in storage (id) order, which is
// deliberately unrelated to any order the caller requested.
func (m *Memory) tagsFor(ctx context.Context, workflowID string) []flowline.Tag {
	m.mu.RLock()
	set := m.links[workflowID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	var out []flowline.Tag
	for _, id := range ids {
		if t, err := m.tags.Get(ctx, id); err == nil {
			out = append(out, *t)
		}
	}
	return out
}

func cloneWorkflow(w *flowline.Workflow) *flowline.Workflow {
	cp := *w
	cp.Nodes = cloneNodes(w.Nodes)
	cp.Settings = cloneSettings(w.Settings)
	cp.Tags = append([]flowline.Tag(nil), w.Tags...)
	return &cp
}

func cloneNodes(nodes []flowline.Node) []flowline.Node {
	if nodes == nil {
		return nil
	}
	out := make([]flowline.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		if n.Config != nil {
			cfg := make(map[string]any, len(n.Config))
			for k, v := range n.Config {
				cfg[k] = v
			}
			out[i].Config = cfg
		}
	}
	return out
}

func cloneSettings(s map[string]any) map[string]any {
	if s == nil {
		return nil
	}
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
