package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-manager-go/internal/core"
)

func newTestDir(t *testing.T) string {
	t.Helper()
	base := filepath.Join(".", ".tmp-tests")
	if err := os.MkdirAll(base, 0755); err != nil {
		t.Fatalf("mkdir temp base: %v", err)
	}
	dir, err := os.MkdirTemp(base, "store-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func samplePlan(id string) *core.Plan {
	p := core.NewPlan(id, "Sample "+id)
	s := core.NewStory("auth", "Auth")
	s.Tasks = []*core.Task{core.NewTask("auth", "login", "Login")}
	p.Stories = []*core.Story{s}
	return p
}

func TestRepositoryBootstrapsDefault(t *testing.T) {
	repo := NewRepository(newTestDir(t))

	current, err := repo.CurrentPlanID()
	require.NoError(t, err)
	assert.Equal(t, DefaultPlanID, current)

	p, err := repo.Load(DefaultPlanID)
	require.NoError(t, err)
	assert.Equal(t, DefaultPlanTitle, p.Title)
	assert.Equal(t, core.StatusTodo, p.Status)
}

func TestRepositorySaveLoad(t *testing.T) {
	repo := NewRepository(newTestDir(t))
	p := samplePlan("alpha")
	require.NoError(t, repo.Save(p))

	back, err := repo.Load("alpha")
	require.NoError(t, err)
	require.Len(t, back.Stories, 1)
	task := back.Stories[0].Tasks[0]
	assert.Equal(t, "auth:login", task.ID)
	assert.Equal(t, "login", task.LocalID)

	plans, err := repo.ListPlans()
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	_, err = repo.Load("missing")
	assert.True(t, core.IsKind(err, core.KindNotFound))

	_, err = repo.Load("../escape")
	assert.True(t, core.IsKind(err, core.KindSchemaViolation))
}

func TestRepositorySaveRejectsInvalidGraph(t *testing.T) {
	repo := NewRepository(newTestDir(t))
	p := samplePlan("beta")
	require.NoError(t, repo.Save(p))

	p.Stories[0].Tasks[0].DependsOn = []string{"ghost"}
	err := repo.Save(p)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindDependency))

	back, err := repo.Load("beta")
	require.NoError(t, err)
	assert.Empty(t, back.Stories[0].Tasks[0].DependsOn, "invalid save must not reach disk")
}

func TestRepositoryDeleteCurrent(t *testing.T) {
	repo := NewRepository(newTestDir(t))
	require.NoError(t, repo.Save(samplePlan("alpha")))
	require.NoError(t, repo.SetCurrentPlanID("alpha"))

	current, err := repo.Delete("alpha")
	require.NoError(t, err)
	assert.Equal(t, DefaultPlanID, current)
	_, err = os.Stat(repo.PlanDir("alpha"))
	assert.True(t, os.IsNotExist(err))

	current, err = repo.Delete(DefaultPlanID)
	require.NoError(t, err)
	assert.Equal(t, DefaultPlanID, current, "a fresh default plan replaces the last one")
	ids, err := repo.PlanIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultPlanID}, ids)

	_, err = repo.Delete("nope")
	assert.True(t, core.IsKind(err, core.KindNotFound))
	assert.Error(t, repo.SetCurrentPlanID("nope"))
}

func TestStateStore(t *testing.T) {
	dir := newTestDir(t)
	st := NewStateStore(dir)

	got, err := st.Get("p")
	require.NoError(t, err)
	assert.Equal(t, State{}, got)

	require.NoError(t, st.SetCurrentTask("p", "s1:t1"))
	got, _ = st.Get("p")
	assert.Equal(t, State{CurrentStoryID: "s1", CurrentTaskID: "s1:t1"}, got)

	require.NoError(t, st.SetCurrentStory("p", "s2"))
	got, _ = st.Get("p")
	assert.Equal(t, State{CurrentStoryID: "s2"}, got)

	require.NoError(t, st.SetCurrentTask("p", ""))
	got, _ = st.Get("p")
	assert.Equal(t, "s2", got.CurrentStoryID)
	assert.Empty(t, got.CurrentTaskID)
}

func TestActivityLog(t *testing.T) {
	t.Cleanup(closeAll)
	db, err := GetDBForDataDir(newTestDir(t))
	require.NoError(t, err)
	again, err := GetDBForDataDir(filepath.Dir(db.Path()))
	require.NoError(t, err)
	assert.Same(t, db, again)

	log := NewActivityLog(db)
	ctx := context.Background()

	_, err = log.Append(ctx, Event{PlanID: "p", Type: EventTaskCreated, Scope: EventScope{StoryID: "s", TaskID: "s:a"}})
	require.NoError(t, err)
	e2, err := log.Append(ctx, Event{PlanID: "p", Type: EventTaskStatusChanged,
		Scope: EventScope{StoryID: "s", TaskID: "s:a"},
		Data:  map[string]interface{}{"from": "TODO", "to": "IN_PROGRESS"}})
	require.NoError(t, err)
	assert.NotEmpty(t, e2.ID)
	_, err = log.Append(ctx, Event{PlanID: "other", Type: EventPlanCreated})
	require.NoError(t, err)

	events, err := log.List(ctx, "p", ListOptions{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTaskStatusChanged, events[0].Type, "newest first")
	assert.Equal(t, "IN_PROGRESS", events[0].Data["to"])
	assert.Equal(t, "s:a", events[0].Scope.TaskID)

	events, err = log.List(ctx, "p", ListOptions{Types: []string{EventTaskCreated}})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = log.List(ctx, "p", ListOptions{TaskID: "s:zzz"})
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, log.DeletePlan(ctx, "p"))
	events, err = log.List(ctx, "p", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = log.Append(ctx, Event{Type: EventPlanCreated})
	assert.Error(t, err)
}
