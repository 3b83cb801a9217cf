package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoTaskPlan s 下 t1、t2，t2 依赖 t1
func twoTaskPlan() (*Plan, *Task, *Task) {
	p := NewPlan("p", "P")
	s := NewStory("s", "S")
	t1 := NewTask("s", "t1", "T1")
	t2 := NewTask("s", "t2", "T2")
	t2.DependsOn = []string{"t1"}
	s.Tasks = []*Task{t1, t2}
	p.Stories = []*Story{s}
	return p, t1, t2
}

func TestFullLifecycleWithDependency(t *testing.T) {
	p, t1, t2 := twoTaskPlan()

	_, err := Approve(p, t2)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBlocked))
	assert.Contains(t, err.Error(), "BLOCKED")
	blockers := BlockersOf(err)
	require.Len(t, blockers, 1)
	assert.Equal(t, "s:t1", blockers[0].ID)
	assert.Equal(t, StatusTodo, t2.Status)

	require.NoError(t, AttachSteps(t1, []Step{{Title: "write code"}}))
	action, err := Approve(p, t1)
	require.NoError(t, err)
	assert.Equal(t, ActionStarted, action)
	assert.Equal(t, StatusInProgress, t1.Status)
	assert.Equal(t, StatusInProgress, p.Stories[0].Status)
	assert.Equal(t, StatusInProgress, p.Status)

	require.NoError(t, SubmitForReview(p, t1, "did it", []string{"Added: thing"}))
	assert.Equal(t, StatusPendingReview, t1.Status)

	action, err = Approve(p, t1)
	require.NoError(t, err)
	assert.Equal(t, ActionCompleted, action)
	assert.Equal(t, StatusDone, t1.Status)
	assert.NotNil(t, t1.CompletionTime)

	action, err = Approve(p, t2)
	require.NoError(t, err)
	assert.Equal(t, ActionFastTracked, action)
	require.Len(t, t2.Steps, 1)
	assert.Equal(t, FastTrackStepTitle, t2.Steps[0].Title)

	require.NoError(t, SubmitForReview(p, t2, "done", nil))
	_, err = Approve(p, t2)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, p.Stories[0].Status)
	assert.Equal(t, StatusDone, p.Status)
}

func TestRequestChangesRepeated(t *testing.T) {
	p, t1, _ := twoTaskPlan()
	_, err := Approve(p, t1)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, SubmitForReview(p, t1, "attempt", nil))
		require.NoError(t, RequestChanges(p, t1, "needs work", "reviewer"))
		assert.Equal(t, StatusInProgress, t1.Status)
		assert.Equal(t, i, t1.ReworkCount)
		assert.Len(t, t1.ReviewFeedback, i)
	}
	assert.Equal(t, "reviewer", t1.ReviewFeedback[0].Author)
}

func TestWorkflowRejectsWrongStates(t *testing.T) {
	p, t1, _ := twoTaskPlan()

	err := SubmitForReview(p, t1, "x", nil)
	assert.True(t, IsKind(err, KindInvalidState))

	err = RequestChanges(p, t1, "x", "")
	assert.True(t, IsKind(err, KindInvalidState))

	_, err = Approve(p, t1)
	require.NoError(t, err)
	err = SubmitForReview(p, t1, "   ", nil)
	assert.True(t, IsKind(err, KindSchemaViolation))
	assert.Equal(t, StatusInProgress, t1.Status)

	_, err = Approve(p, t1)
	assert.True(t, IsKind(err, KindInvalidState))

	require.NoError(t, SubmitForReview(p, t1, "ok", nil))
	err = AttachSteps(t1, []Step{{Title: "late"}})
	assert.True(t, IsKind(err, KindInvalidState))

	err = RequestChanges(p, t1, "  ", "")
	assert.True(t, IsKind(err, KindSchemaViolation))
	assert.Equal(t, StatusPendingReview, t1.Status)
}

func TestAttachStepsValidation(t *testing.T) {
	_, t1, _ := twoTaskPlan()
	assert.True(t, IsKind(AttachSteps(t1, nil), KindSchemaViolation))
	assert.True(t, IsKind(AttachSteps(t1, []Step{{Title: " "}}), KindSchemaViolation))

	require.NoError(t, AttachSteps(t1, []Step{{Title: " a "}, {Title: "b", Description: "d"}}))
	assert.Equal(t, "a", t1.Steps[0].Title)
	require.NoError(t, AttachSteps(t1, []Step{{Title: "c"}}))
	assert.Len(t, t1.Steps, 1)
}

func TestSetManualStatus(t *testing.T) {
	p, t1, _ := twoTaskPlan()

	changed, err := SetManualStatus(p, t1, StatusTodo)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = SetManualStatus(p, t1, StatusDone)
	assert.True(t, IsKind(err, KindInvalidState))
	_, err = SetManualStatus(p, t1, StatusPendingReview)
	assert.True(t, IsKind(err, KindInvalidState))

	changed, err = SetManualStatus(p, t1, StatusBlocked)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, GateBlocked, TaskGate(t1, p))

	_, err = Approve(p, t1)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidState))
	assert.Contains(t, err.Error(), "BLOCKED")

	_, err = SetManualStatus(p, t1, StatusDeferred)
	assert.True(t, IsKind(err, KindInvalidState))

	_, err = SetManualStatus(p, t1, StatusTodo)
	require.NoError(t, err)
	assert.Equal(t, GateReadyToStart, TaskGate(t1, p))
}

func TestTaskGate(t *testing.T) {
	p, t1, t2 := twoTaskPlan()
	assert.Equal(t, GateReadyToStart, TaskGate(t1, p))
	assert.Equal(t, GateBlocked, TaskGate(t2, p))

	_, err := Approve(p, t1)
	require.NoError(t, err)
	assert.Equal(t, GateExecuting, TaskGate(t1, p))
	require.NoError(t, SubmitForReview(p, t1, "s", nil))
	assert.Equal(t, GateAwaitingReview, TaskGate(t1, p))
	_, err = Approve(p, t1)
	require.NoError(t, err)
	assert.Equal(t, GateDone, TaskGate(t1, p))
	assert.Equal(t, GateReadyToStart, TaskGate(t2, p))
}

func TestWorkflowRefusesTaskOutsideItsStory(t *testing.T) {
	p, t1, _ := twoTaskPlan()
	t1.StoryID = "other"

	_, err := Approve(p, t1)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInconsistency))
	assert.Equal(t, StatusTodo, t1.Status)
	assert.Empty(t, t1.Steps)

	_, err = SetManualStatus(p, t1, StatusBlocked)
	assert.True(t, IsKind(err, KindInconsistency))
	assert.Equal(t, StatusTodo, t1.Status)

	// 所属 Story 已不在计划中
	t1.StoryID = "s"
	orphan := NewTask("gone", "t9", "T9")
	orphan.Status = StatusInProgress
	err = SubmitForReview(p, orphan, "done", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInconsistency))
	assert.Contains(t, err.Error(), "unknown story 'gone'")
	assert.Equal(t, StatusInProgress, orphan.Status)
	assert.Empty(t, orphan.ExecutionSummary)

	orphan.Status = StatusPendingReview
	err = RequestChanges(p, orphan, "again", "")
	assert.True(t, IsKind(err, KindInconsistency))
	assert.Zero(t, orphan.ReworkCount)
	assert.Empty(t, orphan.ReviewFeedback)
}
