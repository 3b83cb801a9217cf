package services

import (
	"context"
	"fmt"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/logging"
	"plan-manager-go/internal/store"
)

// PlanInput create_plan
type PlanInput struct {
	Title       string
	Description string
	Priority    *int
}

// PlanUpdate update_plan，nil 字段不修改
type PlanUpdate struct {
	Title       *string
	Description *string
	Priority    *int
	Status      *string
}

// CreatePlan 创建计划（不切换当前计划）
func (s *Service) CreatePlan(ctx context.Context, in PlanInput) (*core.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	existing, err := s.repo.PlanIDs()
	if err != nil {
		return nil, err
	}
	planID := core.EnsureUniqueID(base, existing)

	p := core.NewPlan(planID, title)
	p.Description = desc
	p.Priority = in.Priority
	if err := s.repo.Save(p); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("plan created", "event", "create_plan", "plan_id", planID, "title", title)
	s.record(ctx, planID, store.EventPlanCreated, store.EventScope{}, map[string]interface{}{"title": title})
	return p, nil
}

// GetPlan planID 为空时取当前计划
func (s *Service) GetPlan(ctx context.Context, planID string) (*core.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if planID == "" {
		return s.currentPlan()
	}
	return s.repo.Load(planID)
}

// UpdatePlan 更新标题/描述/优先级/状态。手动状态只允许 TODO/BLOCKED/DEFERRED，
// 其余状态由任务流转汇总得到，且手动设置只保留到下一次汇总。
func (s *Service) UpdatePlan(ctx context.Context, planID string, upd PlanUpdate) (*core.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.repo.Load(planID)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		title, err := core.ValidateTitle(*upd.Title)
		if err != nil {
			return nil, err
		}
		p.Title = title
	}
	if upd.Description != nil {
		desc, err := core.ValidateDescription(*upd.Description)
		if err != nil {
			return nil, err
		}
		p.Description = desc
	}
	if upd.Priority != nil {
		if err := core.ValidatePriority(upd.Priority); err != nil {
			return nil, err
		}
		p.Priority = upd.Priority
	}
	if upd.Status != nil {
		status, err := core.ParseStatus(*upd.Status)
		if err != nil {
			return nil, err
		}
		switch status {
		case core.StatusTodo, core.StatusBlocked, core.StatusDeferred:
		default:
			return nil, core.NewError(core.KindInvalidState,
				"plan status %s is derived from its stories; only TODO, BLOCKED or DEFERRED can be set manually", status)
		}
		core.ApplyStatusChange(&p.WorkItem, status)
	}

	if err := s.repo.Save(p); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("plan updated", "event", "update_plan", "plan_id", planID)
	return p, nil
}

// DeletePlan 删除计划及其活动日志
func (s *Service) DeletePlan(ctx context.Context, planID string) (OpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.Delete(planID)
	if err != nil {
		return OpResult{}, err
	}
	if s.activity != nil {
		if err := s.activity.DeletePlan(ctx, planID); err != nil {
			logging.FromContext(ctx).Warn("activity cleanup failed", "plan_id", planID, "error", err)
		}
	}
	logging.FromContext(ctx).Info("plan deleted", "event", "delete_plan", "plan_id", planID, "current", current)
	return OpResult{
		Success: true,
		Message: fmt.Sprintf("Successfully deleted plan '%s'. Current plan is now '%s'.", planID, current),
	}, nil
}

// ListPlans 可按状态过滤
func (s *Service) ListPlans(ctx context.Context, statuses []core.Status) ([]store.PlanEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.ListPlans()
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return entries, nil
	}
	out := make([]store.PlanEntry, 0, len(entries))
	for _, e := range entries {
		if containsStatus(statuses, e.Status) {
			out = append(out, e)
		}
	}
	return out, nil
}

// SetCurrentPlan 切换当前计划
func (s *Service) SetCurrentPlan(ctx context.Context, planID string) (*core.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.repo.Load(planID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetCurrentPlanID(planID); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("current plan set", "plan_id", planID)
	return p, nil
}

func containsStatus(statuses []core.Status, s core.Status) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}
