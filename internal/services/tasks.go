package services

import (
	"context"
	"fmt"
	"strings"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/logging"
	"plan-manager-go/internal/store"
)

// TaskInput create_task；StoryID 为空时使用当前 Story
type TaskInput struct {
	StoryID     string
	Title       string
	Description string
	Priority    *int
	DependsOn   []string
}

// TaskUpdate update_task；Status 只接受手动状态（BLOCKED / DEFERRED / TODO）
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *int
	DependsOn   *[]string
	Status      *string
}

// TaskListOptions list_tasks 过滤条件；StoryID 为空时列出整个计划
type TaskListOptions struct {
	Statuses []core.Status
	StoryID  string
}

// CreateTask 在 Story 下创建任务
func (s *Service) CreateTask(ctx context.Context, in TaskInput) (*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return nil, err
	}
	return s.createTaskLocked(ctx, p, st, in)
}

func (s *Service) createTaskLocked(ctx context.Context, p *core.Plan, st store.State, in TaskInput) (*core.Task, error) {
	storyID := strings.TrimSpace(in.StoryID)
	if storyID == "" {
		storyID = st.CurrentStoryID
	}
	if storyID == "" {
		return nil, core.NewError(core.KindInvalidState, "story_id is required when no current story is set")
	}
	story := p.FindStory(storyID)
	if story == nil {
		return nil, core.ErrStoryNotFound(storyID)
	}

	title, err := core.ValidateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	desc, err := core.ValidateDescription(in.Description)
	if err != nil {
		return nil, err
	}
	if err := core.ValidatePriority(in.Priority); err != nil {
		return nil, err
	}
	base, err := core.Slugify(title)
	if err != nil {
		return nil, err
	}

	task := core.NewTask(story.ID, core.EnsureUniqueID(base, story.LocalTaskIDs()), title)
	task.Description = desc
	task.Priority = in.Priority
	if in.DependsOn != nil {
		task.DependsOn = trimAll(in.DependsOn)
	}

	story.Tasks = append(story.Tasks, task)
	if err := core.ValidateDependencies(p.Stories); err != nil {
		return nil, err
	}
	core.RollupStory(story)
	core.RollupPlan(p)
	if err := s.repo.Save(p); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("task created", "event", "create_task", "plan_id", p.ID, "story_id", story.ID, "task_id", task.ID)
	s.record(ctx, p.ID, store.EventTaskCreated, store.EventScope{StoryID: story.ID, TaskID: task.ID},
		map[string]interface{}{"title": title})
	s.syncTask(p.ID, story, task)
	return task, nil
}

// GetTask 按 TaskRef 取任务
func (s *Service) GetTask(ctx context.Context, ref TaskRef) (*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return nil, err
	}
	_, task, err := s.resolveTask(p, st, ref)
	return task, err
}

// UpdateTask 修改任务元数据，或设置手动状态
func (s *Service) UpdateTask(ctx context.Context, ref TaskRef, upd TaskUpdate) (*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return nil, err
	}
	story, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		title, err := core.ValidateTitle(*upd.Title)
		if err != nil {
			return nil, err
		}
		task.Title = title
	}
	if upd.Description != nil {
		desc, err := core.ValidateDescription(*upd.Description)
		if err != nil {
			return nil, err
		}
		task.Description = desc
	}
	if upd.Priority != nil {
		if err := core.ValidatePriority(upd.Priority); err != nil {
			return nil, err
		}
		task.Priority = upd.Priority
	}
	if upd.DependsOn != nil {
		task.DependsOn = trimAll(*upd.DependsOn)
		if err := core.ValidateDependencies(p.Stories); err != nil {
			return nil, err
		}
	}

	prev := task.Status
	if upd.Status != nil {
		next, err := core.ParseStatus(*upd.Status)
		if err != nil {
			return nil, err
		}
		if _, err := core.SetManualStatus(p, task, next); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(p); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("task updated", "event", "update_task", "plan_id", p.ID, "task_id", task.ID)
	s.afterTaskTransition(ctx, p, story, task, prev, "", nil)
	return task, nil
}

// DeleteTask 被依赖时拒绝；删除当前任务时自动选中同 Story 的下一个可做任务
func (s *Service) DeleteTask(ctx context.Context, ref TaskRef) (OpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return OpResult{}, err
	}
	story, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return OpResult{}, err
	}
	if dependents := core.FindDependents(p, task.ID); len(dependents) > 0 {
		return OpResult{}, core.NewError(core.KindDependency,
			"Cannot delete task '%s' because it is a dependency of: %s", task.ID, strings.Join(dependents, ", "))
	}

	for i, t := range story.Tasks {
		if t.ID == task.ID {
			story.Tasks = append(story.Tasks[:i], story.Tasks[i+1:]...)
			break
		}
	}
	core.RollupStory(story)
	core.RollupPlan(p)
	if err := s.repo.Save(p); err != nil {
		return OpResult{}, err
	}

	if st.CurrentTaskID == task.ID {
		next := ""
		if candidate := nextWorkableTask(story); candidate != nil {
			next = candidate.ID
		}
		if err := s.state.SetCurrentTask(p.ID, next); err != nil {
			logging.FromContext(ctx).Warn("update selection failed", "plan_id", p.ID, "error", err)
		}
	}
	s.mirror.DeleteTask(p.ID, story.ID, task.LocalID)
	s.mirror.SyncStory(p.ID, story)
	s.record(ctx, p.ID, store.EventItemDeleted, store.EventScope{StoryID: story.ID, TaskID: task.ID},
		map[string]interface{}{"kind": "task"})
	logging.FromContext(ctx).Info("task deleted", "event", "delete_task", "plan_id", p.ID, "task_id", task.ID)

	return OpResult{Success: true, Message: fmt.Sprintf("Successfully deleted task '%s'.", task.ID)}, nil
}

// ListTasks 按 优先级 → creation_time → id 排序
func (s *Service) ListTasks(ctx context.Context, opts TaskListOptions) ([]*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.currentPlan()
	if err != nil {
		return nil, err
	}
	var stories []*core.Story
	if opts.StoryID != "" {
		story := p.FindStory(opts.StoryID)
		if story == nil {
			return nil, core.ErrStoryNotFound(opts.StoryID)
		}
		stories = []*core.Story{story}
	} else {
		stories = p.Stories
	}

	out := []*core.Task{}
	for _, st := range stories {
		for _, t := range st.Tasks {
			if len(opts.Statuses) > 0 && !containsStatus(opts.Statuses, t.Status) {
				continue
			}
			out = append(out, t)
		}
	}
	core.SortTasks(out)
	return out, nil
}

// ExplainTaskBlockers 只读
func (s *Service) ExplainTaskBlockers(ctx context.Context, ref TaskRef) (core.BlockerReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return core.BlockerReport{}, err
	}
	_, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return core.BlockerReport{}, err
	}
	return core.ExplainBlockers(task, p), nil
}

// SetCurrentTask 选中任务（同时切换当前 Story）
func (s *Service) SetCurrentTask(ctx context.Context, ref TaskRef) (*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(ref.TaskID) == "" {
		return nil, core.NewError(core.KindSchemaViolation, "task_id: cannot be empty")
	}
	_, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return nil, err
	}
	if err := s.state.SetCurrentTask(p.ID, task.ID); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("current task set", "plan_id", p.ID, "task_id", task.ID)
	return task, nil
}

// nextWorkableTask 排序后第一个 TODO / IN_PROGRESS 任务
func nextWorkableTask(story *core.Story) *core.Task {
	candidates := make([]*core.Task, 0, len(story.Tasks))
	for _, t := range story.Tasks {
		if t.Status == core.StatusTodo || t.Status == core.StatusInProgress {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	core.SortTasks(candidates)
	return candidates[0]
}
