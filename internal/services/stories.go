package services

import (
	"context"
	"fmt"
	"strings"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/logging"
	"plan-manager-go/internal/store"
)

// StoryInput create_story
type StoryInput struct {
	Title              string
	Description        string
	Priority           *int
	DependsOn          []string
	AcceptanceCriteria []string
}

// StoryUpdate update_story；Story 状态由任务汇总得出，不可直接修改
type StoryUpdate struct {
	Title              *string
	Description        *string
	Priority           *int
	DependsOn          *[]string
	AcceptanceCriteria *[]string
}

// StoryListOptions list_stories 过滤条件
type StoryListOptions struct {
	Statuses  []core.Status
	Unblocked bool
}

// CreateStory 在当前计划下创建 Story
func (s *Service) CreateStory(ctx context.Context, in StoryInput) (*core.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.currentPlan()
	if err != nil {
		return nil, err
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
	criteria, err := core.ValidateAcceptanceCriteria(in.AcceptanceCriteria)
	if err != nil {
		return nil, err
	}

	base, err := core.Slugify(title)
	if err != nil {
		return nil, err
	}
	existing := make([]string, 0, len(p.Stories))
	for _, st := range p.Stories {
		existing = append(existing, st.ID)
	}
	story := core.NewStory(core.EnsureUniqueID(base, existing), title)
	story.Description = desc
	story.Priority = in.Priority
	story.AcceptanceCriteria = criteria
	if in.DependsOn != nil {
		story.DependsOn = trimAll(in.DependsOn)
	}

	p.Stories = append(p.Stories, story)
	if err := core.ValidateDependencies(p.Stories); err != nil {
		return nil, err
	}
	core.RollupPlan(p)
	if err := s.repo.Save(p); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("story created", "event", "create_story", "plan_id", p.ID, "story_id", story.ID)
	s.record(ctx, p.ID, store.EventStoryCreated, store.EventScope{StoryID: story.ID}, map[string]interface{}{"title": title})
	s.mirror.SyncStory(p.ID, story)
	return story, nil
}

// GetStory 按 ID 取 Story
func (s *Service) GetStory(ctx context.Context, storyID string) (*core.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.currentPlan()
	if err != nil {
		return nil, err
	}
	story := p.FindStory(strings.TrimSpace(storyID))
	if story == nil {
		return nil, core.ErrStoryNotFound(storyID)
	}
	return story, nil
}

// UpdateStory 修改 Story 元数据
func (s *Service) UpdateStory(ctx context.Context, storyID string, upd StoryUpdate) (*core.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.currentPlan()
	if err != nil {
		return nil, err
	}
	story := p.FindStory(storyID)
	if story == nil {
		return nil, core.ErrStoryNotFound(storyID)
	}

	if upd.Title != nil {
		title, err := core.ValidateTitle(*upd.Title)
		if err != nil {
			return nil, err
		}
		story.Title = title
	}
	if upd.Description != nil {
		desc, err := core.ValidateDescription(*upd.Description)
		if err != nil {
			return nil, err
		}
		story.Description = desc
	}
	if upd.Priority != nil {
		if err := core.ValidatePriority(upd.Priority); err != nil {
			return nil, err
		}
		story.Priority = upd.Priority
	}
	if upd.AcceptanceCriteria != nil {
		criteria, err := core.ValidateAcceptanceCriteria(*upd.AcceptanceCriteria)
		if err != nil {
			return nil, err
		}
		story.AcceptanceCriteria = criteria
	}
	if upd.DependsOn != nil {
		story.DependsOn = trimAll(*upd.DependsOn)
		if err := core.ValidateDependencies(p.Stories); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(p); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("story updated", "event", "update_story", "plan_id", p.ID, "story_id", story.ID)
	s.mirror.SyncStory(p.ID, story)
	return story, nil
}

// DeleteStory 被其他 Story / 任务依赖时拒绝删除
func (s *Service) DeleteStory(ctx context.Context, storyID string) (OpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return OpResult{}, err
	}
	idx := p.FindStoryIndex(storyID)
	if idx < 0 {
		return OpResult{}, core.ErrStoryNotFound(storyID)
	}
	if dependents := core.FindDependents(p, storyID); len(dependents) > 0 {
		return OpResult{}, core.NewError(core.KindDependency,
			"Cannot delete story '%s' because it is a dependency of: %s", storyID, strings.Join(dependents, ", "))
	}

	story := p.Stories[idx]
	p.Stories = append(p.Stories[:idx], p.Stories[idx+1:]...)
	core.RollupPlan(p)
	if err := s.repo.Save(p); err != nil {
		return OpResult{}, err
	}

	if st.CurrentStoryID == storyID {
		if err := s.state.Put(p.ID, store.State{}); err != nil {
			logging.FromContext(ctx).Warn("clear selection failed", "plan_id", p.ID, "error", err)
		}
	}
	s.mirror.DeleteStory(p.ID, storyID)
	s.record(ctx, p.ID, store.EventItemDeleted, store.EventScope{StoryID: storyID},
		map[string]interface{}{"kind": "story", "tasks": len(story.Tasks)})
	logging.FromContext(ctx).Info("story deleted", "event", "delete_story", "plan_id", p.ID, "story_id", storyID)

	return OpResult{Success: true, Message: fmt.Sprintf("Successfully deleted story '%s'.", storyID)}, nil
}

// ListStories 按依赖拓扑序输出；环上的 Story 追加在末尾并记录告警
func (s *Service) ListStories(ctx context.Context, opts StoryListOptions) ([]*core.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.currentPlan()
	if err != nil {
		return nil, err
	}
	sorted, leftover := core.TopoSortStories(p.Stories)
	if len(leftover) > 0 {
		ids := make([]string, 0, len(leftover))
		for _, st := range leftover {
			ids = append(ids, st.ID)
		}
		logging.FromContext(ctx).Warn("story dependency cycle detected", "plan_id", p.ID, "stories", ids)
		sorted = append(sorted, leftover...)
	}

	out := make([]*core.Story, 0, len(sorted))
	for _, st := range sorted {
		if len(opts.Statuses) > 0 && !containsStatus(opts.Statuses, st.Status) {
			continue
		}
		if opts.Unblocked && !core.IsStoryUnblocked(st, p) {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// SetCurrentStory 切换当前 Story
func (s *Service) SetCurrentStory(ctx context.Context, storyID string) (*core.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.currentPlan()
	if err != nil {
		return nil, err
	}
	story := p.FindStory(storyID)
	if story == nil {
		return nil, core.ErrStoryNotFound(storyID)
	}
	if err := s.state.SetCurrentStory(p.ID, storyID); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("current story set", "plan_id", p.ID, "story_id", storyID)
	return story, nil
}
