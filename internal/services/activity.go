package services

import (
	"context"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/store"
)

// ListActivity 当前计划（或指定计划）的活动事件，最新在前
func (s *Service) ListActivity(ctx context.Context, planID string, opts store.ListOptions) ([]store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activity == nil {
		return []store.Event{}, nil
	}
	if planID == "" {
		id, err := s.repo.CurrentPlanID()
		if err != nil {
			return nil, err
		}
		planID = id
	} else if ok, err := s.repo.Exists(planID); err != nil {
		return nil, err
	} else if !ok {
		return nil, core.ErrPlanNotFound(planID)
	}
	return s.activity.List(ctx, planID, opts)
}
