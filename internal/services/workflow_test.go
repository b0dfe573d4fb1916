package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinsol/flowline/internal/config"
	"github.com/jinsol/flowline/internal/flowline"
	"github.com/jinsol/flowline/internal/repository"
)

// journal records the order of store and runtime calls so tests can assert
// sequencing, not just call counts.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(ev string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type trackedStore struct {
	*repository.Memory
	j *journal
}

func (s *trackedStore) UpdateFields(ctx context.Context, id string, wf *flowline.Workflow) error {
	s.j.add("store.update")
	return s.Memory.UpdateFields(ctx, id, wf)
}

func (s *trackedStore) SetActive(ctx context.Context, id string, active bool) error {
	s.j.add("store.setActive")
	return s.Memory.SetActive(ctx, id, active)
}

type fakeRuntime struct {
	j      *journal
	addErr error

	mu     sync.Mutex
	active map[string]bool
}

func newFakeRuntime(j *journal) *fakeRuntime {
	return &fakeRuntime{j: j, active: make(map[string]bool)}
}

func (f *fakeRuntime) Add(ctx context.Context, id string, mode flowline.ActivationMode) error {
	f.j.add("runtime.add:" + string(mode))
	if f.addErr != nil {
		return f.addErr
	}
	f.mu.Lock()
	f.active[id] = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, id string) error {
	f.j.add("runtime.remove")
	f.mu.Lock()
	delete(f.active, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) isActive(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[id]
}

type env struct {
	mem     *repository.Memory
	store   *trackedStore
	runtime *fakeRuntime
	j       *journal
	svc     *WorkflowService
}

func newEnv(t *testing.T, cfg config.WorkflowConfig) *env {
	t.Helper()
	j := &journal{}
	mem := repository.NewMemory()
	store := &trackedStore{Memory: mem, j: j}
	rt := newFakeRuntime(j)
	return &env{
		mem:     mem,
		store:   store,
		runtime: rt,
		j:       j,
		svc:     NewWorkflowService(store, mem, mem, rt, cfg),
	}
}

func defaultConfig() config.WorkflowConfig {
	return config.WorkflowConfig{SharingEnabled: true, DefaultTimeout: 300}
}

// seedWorkflow creates a workflow shared with user u1 and mirrors its
// active flag into the fake runtime.
func (e *env) seedWorkflow(t *testing.T, wf *flowline.Workflow) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.mem.Create(ctx, wf))
	require.NoError(t, e.mem.CreateShare(ctx, &flowline.ShareRecord{WorkflowID: wf.ID, UserID: "u1", Role: "editor"}))
	if wf.Active {
		e.runtime.mu.Lock()
		e.runtime.active[wf.ID] = true
		e.runtime.mu.Unlock()
	}
}

func member() *flowline.User { return &flowline.User{ID: "u1", Role: "member"} }

func TestUpdate_UnsharedUserIsNotFound(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "One"})

	stranger := &flowline.User{ID: "u9", Role: "member"}
	_, err := e.svc.Update(context.Background(), stranger, &flowline.Workflow{Name: "Hacked"}, "wf-1", nil)
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	// Nothing happened downstream of authorization.
	assert.Empty(t, e.j.all())
	wf, err := e.mem.Get(context.Background(), "wf-1", false)
	require.NoError(t, err)
	assert.Equal(t, "One", wf.Name)
}

func TestUpdate_GlobalOwnerWithZeroShares(t *testing.T) {
	e := newEnv(t, defaultConfig())
	require.NoError(t, e.mem.Create(context.Background(), &flowline.Workflow{ID: "wf-1", Name: "One"}))

	owner := &flowline.User{ID: "boss", Role: flowline.RoleGlobalOwner}
	got, err := e.svc.Update(context.Background(), owner, &flowline.Workflow{Name: "Renamed"}, "wf-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
}

func TestUpdate_DeactivatesBeforePersisting(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{
		ID: "wf-1", Name: "One", Active: true,
		Nodes: []flowline.Node{{ID: "cron", Type: flowline.NodeTypeSchedule, Config: map[string]any{"cron": "* * * * *"}}},
	})

	_, err := e.svc.Update(context.Background(), member(), &flowline.Workflow{Name: "Two", Active: true}, "wf-1", nil)
	require.NoError(t, err)

	events := e.j.all()
	require.Equal(t, []string{"runtime.remove", "store.update", "runtime.add:update"}, events)
}

func TestUpdate_InactiveWorkflowSkipsRuntime(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "One"})

	got, err := e.svc.Update(context.Background(), member(), &flowline.Workflow{Name: "Two"}, "wf-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Two", got.Name)
	assert.Equal(t, []string{"store.update"}, e.j.all())
}

func TestUpdate_ActivationTransitionUsesActivateMode(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "One"})

	_, err := e.svc.Update(context.Background(), member(), &flowline.Workflow{Name: "One", Active: true}, "wf-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"store.update", "runtime.add:activate"}, e.j.all())
}

func TestUpdate_ActivationFailureCompensates(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "One", Active: true})

	bootErr := errors.New("trigger registration refused")
	e.runtime.addErr = bootErr

	proposed := &flowline.Workflow{Name: "Two", Active: true}
	_, err := e.svc.Update(context.Background(), member(), proposed, "wf-1", nil)

	// The caller sees the original runtime error, unchanged.
	require.Same(t, bootErr, err)
	// Both the proposed entity and the persisted record are forced inactive.
	assert.False(t, proposed.Active)
	wf, gerr := e.mem.Get(context.Background(), "wf-1", false)
	require.NoError(t, gerr)
	assert.False(t, wf.Active)
	assert.False(t, e.runtime.isActive("wf-1"))
	// Compensation is a flag-only write, after the failed add.
	assert.Equal(t, []string{"runtime.remove", "store.update", "runtime.add:update", "store.setActive"}, e.j.all())
}

func TestUpdate_ValidationFailureAborts(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "One"})

	proposed := &flowline.Workflow{Name: "Bad", Nodes: []flowline.Node{{ID: ""}}}
	_, err := e.svc.Update(context.Background(), member(), proposed, "wf-1", nil)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, e.j.all())
}

func TestUpdate_NilTagListLeavesAssociationsAlone(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "One"})
	ctx := context.Background()
	require.NoError(t, e.mem.CreateTag(ctx, &flowline.Tag{ID: "t1", Name: "keep"}))
	require.NoError(t, e.mem.ReplaceLinks(ctx, "wf-1", []string{"t1"}))

	got, err := e.svc.Update(ctx, member(), &flowline.Workflow{Name: "Two"}, "wf-1", nil)
	require.NoError(t, err)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "t1", got.Tags[0].ID)
}

func TestUpdate_EmptyTagListClearsAssociations(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "One"})
	ctx := context.Background()
	require.NoError(t, e.mem.CreateTag(ctx, &flowline.Tag{ID: "t1", Name: "gone"}))
	require.NoError(t, e.mem.ReplaceLinks(ctx, "wf-1", []string{"t1"}))

	got, err := e.svc.Update(ctx, member(), &flowline.Workflow{Name: "Two"}, "wf-1", []string{})
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
}

func TestUpdate_TagsDisabledSkipsSync(t *testing.T) {
	cfg := defaultConfig()
	cfg.TagsDisabled = true
	e := newEnv(t, cfg)
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "One"})
	ctx := context.Background()
	require.NoError(t, e.mem.CreateTag(ctx, &flowline.Tag{ID: "t1", Name: "untouched"}))
	require.NoError(t, e.mem.ReplaceLinks(ctx, "wf-1", []string{"t1"}))

	got, err := e.svc.Update(ctx, member(), &flowline.Workflow{Name: "Two"}, "wf-1", []string{"t9"})
	require.NoError(t, err)
	// Reload skipped tags entirely and the association is untouched.
	assert.Empty(t, got.Tags)
	check, err := e.mem.Get(ctx, "wf-1", true)
	require.NoError(t, err)
	require.Len(t, check.Tags, 1)
	assert.Equal(t, "t1", check.Tags[0].ID)
}

// Full scenario: non-owner with a share updates an active workflow,
// stripping a sentinel setting, replacing tags, and re-registering
// triggers in update mode.
func TestUpdate_Scenario(t *testing.T) {
	e := newEnv(t, defaultConfig())
	ctx := context.Background()
	e.seedWorkflow(t, &flowline.Workflow{
		ID: "wf-1", Name: "Old", Active: true,
		Settings: map[string]any{flowline.SettingTimezone: flowline.SettingDefault},
	})
	require.NoError(t, e.mem.CreateTag(ctx, &flowline.Tag{ID: "t1", Name: "prod"}))
	require.NoError(t, e.mem.CreateTag(ctx, &flowline.Tag{ID: "t2", Name: "old"}))
	require.NoError(t, e.mem.ReplaceLinks(ctx, "wf-1", []string{"t2"}))

	proposed := &flowline.Workflow{
		Name: "Foo", Active: true,
		Settings: map[string]any{flowline.SettingTimezone: flowline.SettingDefault},
	}
	got, err := e.svc.Update(ctx, member(), proposed, "wf-1", []string{"t1"})
	require.NoError(t, err)

	assert.Equal(t, "Foo", got.Name)
	assert.True(t, got.Active)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "t1", got.Tags[0].ID)
	assert.NotContains(t, got.Settings, flowline.SettingTimezone)

	events := e.j.all()
	assert.Equal(t, []string{"runtime.remove", "store.update", "runtime.add:update"}, events)

	persisted, err := e.mem.Get(ctx, "wf-1", true)
	require.NoError(t, err)
	assert.NotContains(t, persisted.Settings, flowline.SettingTimezone)
	require.Len(t, persisted.Tags, 1)
	assert.Equal(t, "t1", persisted.Tags[0].ID)
}

func TestList_SharedScope(t *testing.T) {
	e := newEnv(t, defaultConfig())
	ctx := context.Background()
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "Mine"})
	require.NoError(t, e.mem.Create(ctx, &flowline.Workflow{ID: "wf-2", Name: "NotMine"}))

	got, err := e.svc.List(ctx, member(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wf-1", got[0].ID)
	// Sharing enabled widens the listing with the caller's role.
	assert.Equal(t, "editor", got[0].Role)
}

func TestList_FilterIDOutsideSharedSetIsEmpty(t *testing.T) {
	e := newEnv(t, defaultConfig())
	ctx := context.Background()
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "Mine"})
	require.NoError(t, e.mem.Create(ctx, &flowline.Workflow{ID: "42", Name: "Secret"}))

	got, err := e.svc.List(ctx, member(), []byte(`{"id": "42"}`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_FilterParseErrorIsFatal(t *testing.T) {
	e := newEnv(t, defaultConfig())
	_, err := e.svc.List(context.Background(), member(), []byte(`{`))
	require.ErrorIs(t, err, ErrBadFilter)
}

func TestList_InvalidFilterDegradesToUnfiltered(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "Mine"})

	got, err := e.svc.List(context.Background(), member(), []byte(`{"active": "yes"}`))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestList_ActiveFilter(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "On", Active: true})
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-2", Name: "Off"})

	got, err := e.svc.List(context.Background(), member(), []byte(`{"active": true}`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wf-1", got[0].ID)
}

func TestActivate_RuntimeFailureLeavesFlagInactive(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "One"})
	bootErr := errors.New("no trigger nodes")
	e.runtime.addErr = bootErr

	_, err := e.svc.Activate(context.Background(), member(), "wf-1")
	require.Same(t, bootErr, err)

	wf, gerr := e.mem.Get(context.Background(), "wf-1", false)
	require.NoError(t, gerr)
	assert.False(t, wf.Active)
}

func TestActivateDeactivate_RoundTrip(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.seedWorkflow(t, &flowline.Workflow{ID: "wf-1", Name: "One"})
	ctx := context.Background()

	got, err := e.svc.Activate(ctx, member(), "wf-1")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.True(t, e.runtime.isActive("wf-1"))

	got, err = e.svc.Deactivate(ctx, member(), "wf-1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.False(t, e.runtime.isActive("wf-1"))
}
