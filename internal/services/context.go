package services

import (
	"context"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/logging"
)

// CurrentContext "我在哪"
type CurrentContext struct {
	PlanID         string `json:"plan_id"`
	CurrentStoryID string `json:"current_story_id,omitempty"`
	CurrentTaskID  string `json:"current_task_id,omitempty"`
}

// 自动创建的起始任务
const (
	starterTaskTitle       = "Starter task"
	starterTaskDescription = "Bootstrap task created automatically"
	starterTaskPriority    = 5
)

// selectable select/advance 遍历的状态集合
var selectable = []core.Status{core.StatusTodo, core.StatusInProgress, core.StatusBlocked, core.StatusDeferred}

// GetCurrentContext 当前计划、Story、任务
func (s *Service) GetCurrentContext(ctx context.Context) (CurrentContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	planID, err := s.repo.CurrentPlanID()
	if err != nil {
		return CurrentContext{}, err
	}
	st, err := s.state.Get(planID)
	if err != nil {
		return CurrentContext{}, err
	}
	return CurrentContext{PlanID: planID, CurrentStoryID: st.CurrentStoryID, CurrentTaskID: st.CurrentTaskID}, nil
}

// SelectFirstUnblockedTask 选中当前 Story 中第一个可开工的任务；Story 为空时自动创建起始任务
func (s *Service) SelectFirstUnblockedTask(ctx context.Context) (*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return nil, err
	}
	story, err := requireCurrentStory(p, st.CurrentStoryID)
	if err != nil {
		return nil, err
	}

	tasks := storyTasks(story, selectable)
	if len(tasks) == 0 {
		priority := starterTaskPriority
		task, err := s.createTaskLocked(ctx, p, st, TaskInput{
			StoryID:     story.ID,
			Title:       starterTaskTitle,
			Description: starterTaskDescription,
			Priority:    &priority,
		})
		if err != nil {
			return nil, err
		}
		if err := s.state.SetCurrentTask(p.ID, task.ID); err != nil {
			return nil, err
		}
		logging.FromContext(ctx).Info("starter task created", "plan_id", p.ID, "task_id", task.ID)
		return task, nil
	}

	for _, t := range tasks {
		if t.Status == core.StatusInProgress || (t.Status == core.StatusTodo && core.IsTaskUnblocked(t, p)) {
			if err := s.state.SetCurrentTask(p.ID, t.ID); err != nil {
				return nil, err
			}
			return t, nil
		}
	}
	return nil, core.NewError(core.KindInvalidState, "No unblocked tasks found in current story.")
}

// AdvanceToNextTask 按排序移动到下一个未完成任务
func (s *Service) AdvanceToNextTask(ctx context.Context) (*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return nil, err
	}
	story, err := requireCurrentStory(p, st.CurrentStoryID)
	if err != nil {
		return nil, err
	}

	tasks := storyTasks(story, selectable)
	if len(tasks) == 0 {
		return nil, core.NewError(core.KindInvalidState, "Current story has no tasks.")
	}
	next := 0
	for i, t := range tasks {
		if t.ID == st.CurrentTaskID {
			next = i + 1
			break
		}
	}
	if next >= len(tasks) {
		return nil, core.NewError(core.KindInvalidState, "Already at last task; no next task to advance to.")
	}
	if err := s.state.SetCurrentTask(p.ID, tasks[next].ID); err != nil {
		return nil, err
	}
	return tasks[next], nil
}

func requireCurrentStory(p *core.Plan, storyID string) (*core.Story, error) {
	if storyID == "" {
		return nil, core.NewError(core.KindInvalidState, "No current story set. Call set_current_story first.")
	}
	story := p.FindStory(storyID)
	if story == nil {
		return nil, core.ErrStoryNotFound(storyID)
	}
	return story, nil
}

// storyTasks 过滤并排序
func storyTasks(story *core.Story, statuses []core.Status) []*core.Task {
	out := make([]*core.Task, 0, len(story.Tasks))
	for _, t := range story.Tasks {
		if containsStatus(statuses, t.Status) {
			out = append(out, t)
		}
	}
	core.SortTasks(out)
	return out
}
