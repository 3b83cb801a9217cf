package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/metrics"
	"plan-manager-go/internal/mirror"
	"plan-manager-go/internal/store"
)

func newTestDir(t *testing.T) string {
	t.Helper()
	base := filepath.Join(".", ".tmp-tests")
	if err := os.MkdirAll(base, 0755); err != nil {
		t.Fatalf("mkdir temp base: %v", err)
	}
	dir, err := os.MkdirTemp(base, "services-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

type fixture struct {
	svc     *Service
	todoDir string
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := newTestDir(t)
	todoDir := filepath.Join(dir, "todo")

	db, err := store.NewDatabaseManager(filepath.Join(dir, store.DatabaseFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, m := metrics.NewRegistry()
	svc := New(Options{
		Repository:  store.NewRepository(todoDir),
		Activity:    store.NewActivityLog(db),
		Mirror:      mirror.NewFileMirror(todoDir, nil),
		Metrics:     m,
		ProjectRoot: dir,
	})
	return &fixture{svc: svc, todoDir: todoDir, metrics: m}
}

// seedT1T2 Story "Feature" 下 t1、t2，t2 依赖 t1
func seedT1T2(t *testing.T, f *fixture) *core.Story {
	t.Helper()
	ctx := context.Background()
	story, err := f.svc.CreateStory(ctx, StoryInput{Title: "Feature"})
	require.NoError(t, err)
	_, err = f.svc.SetCurrentStory(ctx, story.ID)
	require.NoError(t, err)

	one, two := 1, 2
	_, err = f.svc.CreateTask(ctx, TaskInput{Title: "T1", Priority: &one})
	require.NoError(t, err)
	_, err = f.svc.CreateTask(ctx, TaskInput{Title: "T2", Priority: &two, DependsOn: []string{"t1"}})
	require.NoError(t, err)
	return story
}

func TestCreateHierarchy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	story := seedT1T2(t, f)
	assert.Equal(t, "feature", story.ID)

	dup, err := f.svc.CreateStory(ctx, StoryInput{Title: "Feature"})
	require.NoError(t, err)
	assert.Equal(t, "feature-2", dup.ID)

	task, err := f.svc.GetTask(ctx, TaskRef{TaskID: "feature:t2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, task.DependsOn)
	assert.Equal(t, core.StatusTodo, task.Status)

	_, err = f.svc.CreateTask(ctx, TaskInput{Title: "Bad", DependsOn: []string{"nope"}})
	assert.True(t, core.IsKind(err, core.KindDependency), "got %v", err)

	_, err = f.svc.CreateStory(ctx, StoryInput{Title: "Orphan", DependsOn: []string{"missing"}})
	assert.True(t, core.IsKind(err, core.KindDependency), "got %v", err)

	_, err = os.Stat(filepath.Join(f.todoDir, "default", "feature", "tasks", "t1.md"))
	assert.NoError(t, err, "task mirrored")
}

func TestTwoTaskScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedT1T2(t, f)

	_, err := f.svc.ApproveTask(ctx, TaskRef{TaskID: "t2"})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindBlocked))
	blockers := core.BlockersOf(err)
	require.Len(t, blockers, 1)
	assert.Equal(t, "feature:t1", blockers[0].ID)

	t2, err := f.svc.GetTask(ctx, TaskRef{TaskID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusTodo, t2.Status, "refused approve leaves status")

	res, err := f.svc.ApproveTask(ctx, TaskRef{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, core.ActionFastTracked, res.Action)
	assert.Equal(t, core.GateExecuting, res.Gate)
	require.Len(t, res.Task.Steps, 1)
	assert.Equal(t, core.FastTrackStepTitle, res.Task.Steps[0].Title)

	story, err := f.svc.GetStory(ctx, "feature")
	require.NoError(t, err)
	assert.Equal(t, core.StatusInProgress, story.Status)
	plan, err := f.svc.GetPlan(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, core.StatusInProgress, plan.Status)

	res, err = f.svc.SubmitForReview(ctx, TaskRef{TaskID: "t1"}, "implemented", []string{"Add login"})
	require.NoError(t, err)
	assert.Equal(t, core.GateAwaitingReview, res.Gate)

	_, err = f.svc.SetCurrentTask(ctx, TaskRef{TaskID: "t1"})
	require.NoError(t, err)
	res, err = f.svc.ApproveTask(ctx, TaskRef{})
	require.NoError(t, err)
	assert.Equal(t, core.ActionCompleted, res.Action)
	assert.NotNil(t, res.Task.CompletionTime)

	story, err = f.svc.GetStory(ctx, "feature")
	require.NoError(t, err)
	assert.Equal(t, core.StatusInProgress, story.Status, "one task DONE and one TODO keeps the story in progress")
	plan, err = f.svc.GetPlan(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, core.StatusInProgress, plan.Status)

	cur, err := f.svc.GetCurrentContext(ctx)
	require.NoError(t, err)
	assert.Empty(t, cur.CurrentTaskID, "approving to DONE clears the selection")

	status, err := f.svc.WorkflowStatus(ctx, TaskRef{TaskID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, core.GateReadyToStart, status.Gate)
	assert.Empty(t, status.Blockers)

	res, err = f.svc.ApproveTask(ctx, TaskRef{TaskID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusInProgress, res.Task.Status)

	events, err := f.svc.ListActivity(ctx, "", store.ListOptions{Types: []string{store.EventTaskStatusChanged}})
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestRequestChangesRepeatedly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedT1T2(t, f)

	_, err := f.svc.CreateTaskSteps(ctx, TaskRef{TaskID: "t1"}, StepsInput{Steps: []core.Step{{Title: "write code"}}})
	require.NoError(t, err)
	res, err := f.svc.ApproveTask(ctx, TaskRef{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, core.ActionStarted, res.Action)

	for i := 1; i <= 3; i++ {
		_, err = f.svc.SubmitForReview(ctx, TaskRef{TaskID: "t1"}, "attempt", nil)
		require.NoError(t, err)
		res, err = f.svc.RequestChanges(ctx, TaskRef{TaskID: "t1"}, "needs work", "reviewer")
		require.NoError(t, err)
		assert.Contains(t, res.Message, "Moved to IN_PROGRESS")
		assert.Equal(t, i, res.Task.ReworkCount)
	}
	assert.Len(t, res.Task.ReviewFeedback, 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.ReworkTotal))

	_, err = f.svc.RequestChanges(ctx, TaskRef{TaskID: "t1"}, "again", "")
	assert.True(t, core.IsKind(err, core.KindInvalidState))
}

func TestCreateTaskStepsFromTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedT1T2(t, f)

	res, err := f.svc.CreateTaskSteps(ctx, TaskRef{TaskID: "t1"}, StepsInput{Template: "debug"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Task.Steps)
	assert.Equal(t, []string{"approve_task feature:t1"}, res.NextActions)

	_, err = f.svc.CreateTaskSteps(ctx, TaskRef{TaskID: "t1"}, StepsInput{Template: "nope"})
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestUpdateTaskManualStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedT1T2(t, f)

	blocked := "BLOCKED"
	task, err := f.svc.UpdateTask(ctx, TaskRef{TaskID: "t1"}, TaskUpdate{Status: &blocked})
	require.NoError(t, err)
	assert.Equal(t, core.StatusBlocked, task.Status)

	_, err = f.svc.ApproveTask(ctx, TaskRef{TaskID: "t1"})
	assert.True(t, core.IsKind(err, core.KindInvalidState))

	done := "DONE"
	_, err = f.svc.UpdateTask(ctx, TaskRef{TaskID: "t1"}, TaskUpdate{Status: &done})
	assert.True(t, core.IsKind(err, core.KindInvalidState), "no TODO/BLOCKED to DONE shortcut")

	todo := "todo"
	title := "T1 renamed"
	task, err = f.svc.UpdateTask(ctx, TaskRef{TaskID: "t1"}, TaskUpdate{Status: &todo, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, core.StatusTodo, task.Status)
	assert.Equal(t, "T1 renamed", task.Title)
	assert.Equal(t, "feature:t1", task.ID, "rename keeps id")
}

func TestDeleteRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedT1T2(t, f)

	_, err := f.svc.DeleteTask(ctx, TaskRef{TaskID: "t1"})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindDependency))
	assert.Contains(t, err.Error(), "feature:t2")

	three := 3
	_, err = f.svc.CreateTask(ctx, TaskInput{Title: "T3", Priority: &three})
	require.NoError(t, err)
	_, err = f.svc.SetCurrentTask(ctx, TaskRef{TaskID: "t2"})
	require.NoError(t, err)

	res, err := f.svc.DeleteTask(ctx, TaskRef{TaskID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully deleted task 'feature:t2'.", res.Message)

	cur, err := f.svc.GetCurrentContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feature:t1", cur.CurrentTaskID, "next workable task selected")

	_, err = os.Stat(filepath.Join(f.todoDir, "default", "feature", "tasks", "t2.md"))
	assert.True(t, os.IsNotExist(err))

	other, err := f.svc.CreateStory(ctx, StoryInput{Title: "Docs", DependsOn: []string{"feature"}})
	require.NoError(t, err)
	_, err = f.svc.DeleteStory(ctx, "feature")
	assert.True(t, core.IsKind(err, core.KindDependency))

	_, err = f.svc.DeleteStory(ctx, other.ID)
	require.NoError(t, err)
	_, err = f.svc.DeleteStory(ctx, "feature")
	require.NoError(t, err)

	cur, err = f.svc.GetCurrentContext(ctx)
	require.NoError(t, err)
	assert.Empty(t, cur.CurrentStoryID)
	assert.Empty(t, cur.CurrentTaskID)
}

func TestListStoriesTopological(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	one := 1
	_, err := f.svc.CreateStory(ctx, StoryInput{Title: "Base"})
	require.NoError(t, err)
	_, err = f.svc.CreateStory(ctx, StoryInput{Title: "Top", Priority: &one, DependsOn: []string{"base"}})
	require.NoError(t, err)

	stories, err := f.svc.ListStories(ctx, StoryListOptions{})
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, "base", stories[0].ID)
	assert.Equal(t, "top", stories[1].ID)

	stories, err = f.svc.ListStories(ctx, StoryListOptions{Unblocked: true})
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, "base", stories[0].ID)
}

func TestSelectAndAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SelectFirstUnblockedTask(ctx)
	assert.True(t, core.IsKind(err, core.KindInvalidState))

	story, err := f.svc.CreateStory(ctx, StoryInput{Title: "Empty"})
	require.NoError(t, err)
	_, err = f.svc.SetCurrentStory(ctx, story.ID)
	require.NoError(t, err)

	starter, err := f.svc.SelectFirstUnblockedTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Starter task", starter.Title)
	assert.Equal(t, "empty:starter_task", starter.ID)

	_, err = f.svc.AdvanceToNextTask(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Already at last task")

	_, err = f.svc.CreateTask(ctx, TaskInput{Title: "Second"})
	require.NoError(t, err)
	next, err := f.svc.AdvanceToNextTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, "empty:second", next.ID, "unset priority sorts after the starter task")

	_, err = f.svc.AdvanceToNextTask(ctx)
	require.Error(t, err)
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Report(ctx, "plan")
	require.NoError(t, err)
	assert.Equal(t, "Plan 'Default Plan' is active but contains no stories.", out)

	seedT1T2(t, f)
	out, err = f.svc.Report(ctx, "plan")
	require.NoError(t, err)
	assert.Equal(t, "Plan Summary: Default Plan (TODO)\n"+reportRule+"\n[TODO         ] Feature (0/2 tasks done)", out)

	_, err = f.svc.SetCurrentTask(ctx, TaskRef{TaskID: "t2"})
	require.NoError(t, err)
	out, err = f.svc.Report(ctx, "story")
	require.NoError(t, err)
	assert.Contains(t, out, "Current Story: Feature (TODO)")
	assert.Contains(t, out, "Tasks (0/2 done):")
	assert.Contains(t, out, "   [TODO         ] t1 - T1")
	assert.Contains(t, out, ">> [TODO         ] t2 - T2")
	assert.Contains(t, out, "ATTENTION: Current task 'T2' is BLOCKED.")
	assert.Contains(t, out, "- Task 'T1' is not DONE (status: TODO)")

	_, err = f.svc.SetCurrentStory(ctx, "feature")
	require.NoError(t, err)
	_, err = f.svc.SetCurrentTask(ctx, TaskRef{TaskID: "t1"})
	require.NoError(t, err)
	out, err = f.svc.Report(ctx, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "\nNext Action: `create_task_steps` for Task 't1', or `approve_task feature:t1` to fast-track."), out)

	_, err = f.svc.Report(ctx, "galaxy")
	assert.True(t, core.IsKind(err, core.KindSchemaViolation))
}

func TestPlanLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePlan(ctx, PlanInput{Title: "Release 2"})
	require.NoError(t, err)
	assert.Equal(t, "release_2", p.ID)

	_, err = f.svc.SetCurrentPlan(ctx, p.ID)
	require.NoError(t, err)
	cur, err := f.svc.GetCurrentContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "release_2", cur.PlanID)

	desc := "second release"
	updated, err := f.svc.UpdatePlan(ctx, p.ID, PlanUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	plans, err := f.svc.ListPlans(ctx, []core.Status{core.StatusTodo})
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	done := string(core.StatusDone)
	_, err = f.svc.UpdatePlan(ctx, p.ID, PlanUpdate{Status: &done})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindInvalidState))
	got, err := f.svc.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusTodo, got.Status)

	deferred := string(core.StatusDeferred)
	updated, err = f.svc.UpdatePlan(ctx, p.ID, PlanUpdate{Status: &deferred})
	require.NoError(t, err)
	assert.Equal(t, core.StatusDeferred, updated.Status)

	res, err := f.svc.DeletePlan(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	cur, err = f.svc.GetCurrentContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultPlanID, cur.PlanID)

	_, err = f.svc.GetPlan(ctx, p.ID)
	assert.True(t, core.IsKind(err, core.KindNotFound))
}
