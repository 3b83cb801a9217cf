package services

import (
	"context"
	"fmt"
	"strings"

	"plan-manager-go/internal/config"
	"plan-manager-go/internal/core"
	"plan-manager-go/internal/logging"
	"plan-manager-go/internal/store"
)

// WorkflowResult 工作流操作的统一返回
type WorkflowResult struct {
	Success     bool           `json:"success"`
	Message     string         `json:"message"`
	Task        *core.Task     `json:"task,omitempty"`
	Gate        core.Gate      `json:"gate,omitempty"`
	Action      core.Action    `json:"action,omitempty"`
	NextActions []string       `json:"next_actions"`
	Blockers    []core.Blocker `json:"blockers,omitempty"`
}

// StepsInput create_task_steps：显式步骤或步骤模板二选一
type StepsInput struct {
	Steps    []core.Step
	Template string
}

// CreateTaskSteps 附加实施步骤（门控一的前置条件）
func (s *Service) CreateTaskSteps(ctx context.Context, ref TaskRef, in StepsInput) (WorkflowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return WorkflowResult{}, err
	}
	story, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return WorkflowResult{}, err
	}

	steps := in.Steps
	templateName := strings.TrimSpace(in.Template)
	if templateName != "" {
		if len(steps) > 0 {
			return WorkflowResult{}, core.NewError(core.KindSchemaViolation, "steps: pass either steps or template, not both")
		}
		templates, loadErr := config.LoadStepTemplates(s.projectRoot)
		if loadErr != nil {
			logging.FromContext(ctx).Warn("step templates fallback to built-ins", "error", loadErr)
		}
		tpl, ok := config.FindStepTemplate(templates, templateName)
		if !ok {
			names := make([]string, 0, len(templates))
			for _, t := range templates {
				names = append(names, t.Name)
			}
			return WorkflowResult{}, core.NewError(core.KindNotFound,
				"step template '%s' not found. Available: %s", templateName, strings.Join(names, ", "))
		}
		steps = append([]core.Step(nil), tpl.Steps...)
	}

	if err := core.AttachSteps(task, steps); err != nil {
		return WorkflowResult{}, err
	}
	if err := s.repo.Save(p); err != nil {
		return WorkflowResult{}, err
	}
	s.afterTaskTransition(ctx, p, story, task, task.Status, store.EventStepsAttached,
		map[string]interface{}{"count": len(task.Steps), "template": templateName})

	return WorkflowResult{
		Success:     true,
		Message:     fmt.Sprintf("Attached %d steps to task '%s'.", len(task.Steps), task.ID),
		Task:        task,
		Gate:        core.TaskGate(task, p),
		Action:      core.ActionStepsAttached,
		NextActions: nextActions(task, p),
	}, nil
}

// ApproveTask 门控一（TODO → IN_PROGRESS）与门控二（PENDING_REVIEW → DONE）共用
func (s *Service) ApproveTask(ctx context.Context, ref TaskRef) (WorkflowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return WorkflowResult{}, err
	}
	story, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return WorkflowResult{}, err
	}

	prev := task.Status
	action, err := core.Approve(p, task)
	if err != nil {
		if core.IsKind(err, core.KindBlocked) {
			logging.FromContext(ctx).Info("approve refused", "plan_id", p.ID, "task_id", task.ID, "blockers", len(core.BlockersOf(err)))
		}
		return WorkflowResult{}, err
	}
	if err := s.repo.Save(p); err != nil {
		return WorkflowResult{}, err
	}
	s.afterTaskTransition(ctx, p, story, task, prev, "", map[string]interface{}{"action": string(action)})

	if task.Status == core.StatusDone && st.CurrentTaskID == task.ID {
		if err := s.state.SetCurrentTask(p.ID, ""); err != nil {
			logging.FromContext(ctx).Warn("clear current task failed", "plan_id", p.ID, "error", err)
		}
	}

	var msg string
	switch action {
	case core.ActionFastTracked:
		msg = fmt.Sprintf("Task '%s' fast-tracked and moved to IN_PROGRESS.", task.ID)
	case core.ActionStarted:
		msg = fmt.Sprintf("Plan for task '%s' approved. Moved to IN_PROGRESS.", task.ID)
	default:
		msg = fmt.Sprintf("Task '%s' approved. Moved to DONE.", task.ID)
	}
	return WorkflowResult{
		Success:     true,
		Message:     msg,
		Task:        task,
		Gate:        core.TaskGate(task, p),
		Action:      action,
		NextActions: nextActions(task, p),
	}, nil
}

// SubmitForReview IN_PROGRESS → PENDING_REVIEW
func (s *Service) SubmitForReview(ctx context.Context, ref TaskRef, summary string, changes []string) (WorkflowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return WorkflowResult{}, err
	}
	story, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return WorkflowResult{}, err
	}

	prev := task.Status
	if err := core.SubmitForReview(p, task, summary, changes); err != nil {
		return WorkflowResult{}, err
	}
	if err := s.repo.Save(p); err != nil {
		return WorkflowResult{}, err
	}
	s.afterTaskTransition(ctx, p, story, task, prev, store.EventReviewSubmitted,
		map[string]interface{}{"changes": len(task.Changes)})

	return WorkflowResult{
		Success:     true,
		Message:     fmt.Sprintf("Task '%s' submitted for review. Moved to PENDING_REVIEW.", task.ID),
		Task:        task,
		Gate:        core.TaskGate(task, p),
		Action:      core.ActionSubmitted,
		NextActions: nextActions(task, p),
	}, nil
}

// RequestChanges PENDING_REVIEW → IN_PROGRESS，rework_count +1
func (s *Service) RequestChanges(ctx context.Context, ref TaskRef, feedback, author string) (WorkflowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return WorkflowResult{}, err
	}
	story, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return WorkflowResult{}, err
	}

	prev := task.Status
	if err := core.RequestChanges(p, task, feedback, author); err != nil {
		return WorkflowResult{}, err
	}
	if err := s.repo.Save(p); err != nil {
		return WorkflowResult{}, err
	}
	s.metrics.RecordRework()
	s.afterTaskTransition(ctx, p, story, task, prev, store.EventChangesRequested,
		map[string]interface{}{"rework_count": task.ReworkCount})

	return WorkflowResult{
		Success:     true,
		Message:     fmt.Sprintf("Changes requested for task '%s'. Moved to IN_PROGRESS (rework #%d).", task.ID, task.ReworkCount),
		Task:        task,
		Gate:        core.TaskGate(task, p),
		Action:      core.ActionChangesRequested,
		NextActions: nextActions(task, p),
	}, nil
}

// WorkflowStatus 只读：任务所处门控及下一步提示
func (s *Service) WorkflowStatus(ctx context.Context, ref TaskRef) (WorkflowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return WorkflowResult{}, err
	}
	_, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return WorkflowResult{}, err
	}

	gate := core.TaskGate(task, p)
	res := WorkflowResult{
		Success:     true,
		Message:     fmt.Sprintf("Task '%s' is %s (gate: %s).", task.ID, task.Status, gate),
		Task:        task,
		Gate:        gate,
		NextActions: nextActions(task, p),
	}
	if task.Status == core.StatusTodo {
		res.Blockers = core.ExplainBlockers(task, p).Blockers
	}
	return res, nil
}

// nextActions 按门控给出可执行的下一步
func nextActions(t *core.Task, p *core.Plan) []string {
	switch core.TaskGate(t, p) {
	case core.GateReadyToStart:
		if len(t.Steps) == 0 {
			return []string{
				fmt.Sprintf("create_task_steps %s", t.ID),
				fmt.Sprintf("approve_task %s (fast-track)", t.ID),
			}
		}
		return []string{fmt.Sprintf("approve_task %s", t.ID)}
	case core.GateExecuting:
		return []string{fmt.Sprintf("submit_for_review %s", t.ID)}
	case core.GateAwaitingReview:
		return []string{
			fmt.Sprintf("approve_task %s", t.ID),
			fmt.Sprintf("request_changes %s", t.ID),
		}
	case core.GateBlocked:
		if t.Status == core.StatusBlocked {
			return []string{fmt.Sprintf("update_task %s status=TODO", t.ID)}
		}
		return []string{fmt.Sprintf("explain_task_blockers %s", t.ID)}
	case core.GateDeferred:
		return []string{fmt.Sprintf("update_task %s status=TODO", t.ID)}
	default:
		return []string{"advance_to_next_task"}
	}
}
