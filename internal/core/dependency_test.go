package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depPlan() *Plan {
	p := NewPlan("p", "P")
	a := NewStory("a", "A")
	b := NewStory("b", "B")
	b.DependsOn = []string{"a"}
	a1 := NewTask("a", "x", "X")
	b1 := NewTask("b", "y", "Y")
	b2 := NewTask("b", "z", "Z")
	b1.DependsOn = []string{"a:x"}
	b2.DependsOn = []string{"y", "a"}
	a.Tasks = []*Task{a1}
	b.Tasks = []*Task{b1, b2}
	p.Stories = []*Story{a, b}
	return p
}

func TestValidateDependenciesOK(t *testing.T) {
	require.NoError(t, ValidateDependencies(depPlan().Stories))
}

func TestValidateDependenciesErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *Plan)
		want   string
	}{
		{"story self", func(p *Plan) { p.Stories[0].DependsOn = []string{"a"} }, "story 'a' cannot depend on itself"},
		{"story unknown", func(p *Plan) { p.Stories[0].DependsOn = []string{"nope"} }, "story 'a' has unmet dependency: 'nope'"},
		{"task self", func(p *Plan) { p.Stories[0].Tasks[0].DependsOn = []string{"x"} }, "task 'a:x' cannot depend on itself"},
		{"task unknown local", func(p *Plan) { p.Stories[0].Tasks[0].DependsOn = []string{"ghost"} }, "task 'a:x' depends on unknown task 'ghost' in story 'a'"},
		{"task unknown qualified", func(p *Plan) { p.Stories[0].Tasks[0].DependsOn = []string{"b:ghost"} }, "task 'a:x' depends on unknown task 'b:ghost'"},
		{"empty entry", func(p *Plan) { p.Stories[0].Tasks[0].DependsOn = []string{" "} }, "invalid dependency entry"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := depPlan()
			tc.mutate(p)
			err := ValidateDependencies(p.Stories)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindDependency))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestResolveTaskDependency(t *testing.T) {
	ids := map[string]struct{}{"a": {}, "b": {}}

	ref, err := ResolveTaskDependency("b", "a", ids)
	require.NoError(t, err)
	assert.Equal(t, RefStory, ref.Kind)

	ref, err = ResolveTaskDependency("b", "a:x", ids)
	require.NoError(t, err)
	assert.Equal(t, RefTask, ref.Kind)
	assert.Equal(t, "a:x", ref.ID())

	ref, err = ResolveTaskDependency("b", "y", ids)
	require.NoError(t, err)
	assert.Equal(t, "b:y", ref.ID())

	_, err = ResolveTaskDependency("b", "a:", ids)
	assert.Error(t, err)
}

func TestTopoSortStories(t *testing.T) {
	p := depPlan()
	c := NewStory("c", "C")
	one := 1
	c.Priority = &one
	p.Stories = append(p.Stories, c)

	sorted, leftover := TopoSortStories(p.Stories)
	assert.Empty(t, leftover)
	ids := []string{}
	for _, s := range sorted {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	p.Stories[0].DependsOn = []string{"b"}
	assert.Equal(t, []string{"a", "b"}, FindStoryCycles(p.Stories))
}

func TestExplainBlockersAndDependents(t *testing.T) {
	p := depPlan()
	b2 := p.Stories[1].Tasks[1]

	report := ExplainBlockers(b2, p)
	assert.False(t, report.Unblocked)
	require.Len(t, report.Blockers, 2)
	assert.Equal(t, Blocker{Kind: RefTask, ID: "b:y", Status: StatusTodo, Reason: ReasonTaskNotDone}, report.Blockers[0])
	assert.Equal(t, Blocker{Kind: RefStory, ID: "a", Status: StatusTodo, Reason: ReasonStoryNotDone}, report.Blockers[1])

	b2.DependsOn = append(b2.DependsOn, "q:missing")
	report = ExplainBlockers(b2, p)
	require.Len(t, report.Blockers, 3)
	assert.Equal(t, StatusUnknown, report.Blockers[2].Status)
	assert.Equal(t, ReasonNotFound, report.Blockers[2].Reason)

	assert.Equal(t, []string{"b", "b:y", "b:z"}, FindDependents(p, "a"))
	assert.Equal(t, []string{"b:y"}, FindDependents(p, "a:x"))
	assert.Equal(t, []string{"b:z"}, FindDependents(p, "b:y"))
	assert.Empty(t, FindDependents(p, "b"))
}

func TestExplainBlockersIsReadOnly(t *testing.T) {
	p := depPlan()
	b1 := p.Stories[1].Tasks[0]
	first := ExplainBlockers(b1, p)
	second := ExplainBlockers(b1, p)
	assert.Equal(t, first, second)
	assert.Equal(t, StatusTodo, b1.Status)

	ApplyStatusChange(&p.Stories[0].Tasks[0].WorkItem, StatusDone)
	assert.True(t, IsTaskUnblocked(b1, p))
	assert.False(t, IsStoryUnblocked(p.Stories[1], p))
}

func TestBlockerReportJSON(t *testing.T) {
	p := depPlan()
	task := p.Stories[0].Tasks[0]
	task.DependsOn = []string{"ghost"}

	raw, err := json.Marshal(ExplainBlockers(task, p))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"task_id": "a:x",
		"blockers": [{"kind": "task", "id": "a:ghost", "status": "UNKNOWN", "reason": "dependency not found"}],
		"unblocked": false
	}`, string(raw))
}
