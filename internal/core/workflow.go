package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ========== 任务工作流状态机（双门控） ==========
//
// 门控一：TODO → IN_PROGRESS 需要已附加步骤 + approve，或 fast-track approve。
// 门控二：PENDING_REVIEW → DONE 只能通过 approve；request_changes 退回 IN_PROGRESS。
// BLOCKED / DEFERRED 只能手动设置，状态机本身不会自动进入。

// FastTrackStepTitle fast-track 时自动生成的占位步骤，保证下游“有步骤”的约定成立
const FastTrackStepTitle = "Fast-tracked by user"

// Action 一次工作流操作的结果类型
type Action string

const (
	ActionStepsAttached    Action = "steps_attached"
	ActionStarted          Action = "started"
	ActionFastTracked      Action = "fast_tracked"
	ActionSubmitted        Action = "submitted"
	ActionCompleted        Action = "completed"
	ActionChangesRequested Action = "changes_requested"
)

// Gate 任务当前所处的门控位置
type Gate string

const (
	GateReadyToStart   Gate = "READY_TO_START"
	GateExecuting      Gate = "EXECUTING"
	GateAwaitingReview Gate = "AWAITING_REVIEW"
	GateDone           Gate = "DONE"
	GateBlocked        Gate = "BLOCKED"
	GateDeferred       Gate = "DEFERRED"
)

// AttachSteps 设置实施步骤（TODO / IN_PROGRESS），整体替换
func AttachSteps(t *Task, steps []Step) error {
	if t.Status != StatusTodo && t.Status != StatusInProgress {
		return errTaskWrongStatus(t.ID, t.Status, "attach steps to", StatusTodo, StatusInProgress)
	}
	if len(steps) == 0 {
		return errSchema("steps", "at least one step is required")
	}
	cleaned := make([]Step, 0, len(steps))
	for i, s := range steps {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			return errSchema("steps", "step %d must have a title", i+1)
		}
		if utf8.RuneCountInString(title) > MaxTitleLength {
			return errSchema("steps", "step %d title too long (max %d characters)", i+1, MaxTitleLength)
		}
		desc, err := ValidateDescription(s.Description)
		if err != nil {
			return err
		}
		cleaned = append(cleaned, Step{Title: title, Description: desc})
	}
	t.Steps = cleaned
	return nil
}

// Approve 两个门控共用的 approve：
//   - TODO：依赖全部 DONE 才能进入 IN_PROGRESS，无步骤时走 fast-track
//   - PENDING_REVIEW：进入 DONE
//
// 失败时任务不被修改。
func Approve(p *Plan, t *Task) (Action, error) {
	owner, err := owningStory(p, t)
	if err != nil {
		return "", err
	}
	switch t.Status {
	case StatusTodo:
		report := ExplainBlockers(t, p)
		if !report.Unblocked {
			return "", blockedError(t, report.Blockers)
		}
		action := ActionStarted
		if len(t.Steps) == 0 {
			t.Steps = []Step{{Title: FastTrackStepTitle}}
			action = ActionFastTracked
		}
		ApplyStatusChange(&t.WorkItem, StatusInProgress)
		rollupParents(p, owner)
		return action, nil

	case StatusPendingReview:
		ApplyStatusChange(&t.WorkItem, StatusDone)
		rollupParents(p, owner)
		return ActionCompleted, nil

	case StatusBlocked:
		return "", NewError(KindInvalidState,
			"cannot approve task '%s': it is marked BLOCKED; set it back to TODO first", t.ID)

	default:
		return "", errTaskWrongStatus(t.ID, t.Status, "approve", StatusTodo, StatusPendingReview)
	}
}

// SubmitForReview IN_PROGRESS → PENDING_REVIEW，summary 必填
func SubmitForReview(p *Plan, t *Task, summary string, changes []string) error {
	if t.Status != StatusInProgress {
		return errTaskWrongStatus(t.ID, t.Status, "submit for review", StatusInProgress)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return errSchema("execution_summary", "cannot be empty")
	}
	if utf8.RuneCountInString(summary) > MaxDescriptionLength {
		return errSchema("execution_summary", "too long (max %d characters)", MaxDescriptionLength)
	}
	cleaned, err := ValidateChanges(changes)
	if err != nil {
		return err
	}
	owner, err := owningStory(p, t)
	if err != nil {
		return err
	}

	t.ExecutionSummary = summary
	if len(cleaned) > 0 {
		t.Changes = cleaned
	}
	ApplyStatusChange(&t.WorkItem, StatusPendingReview)
	rollupParents(p, owner)
	return nil
}

// RequestChanges PENDING_REVIEW → IN_PROGRESS，追加评审意见，rework_count +1
func RequestChanges(p *Plan, t *Task, message, author string) error {
	if t.Status != StatusPendingReview {
		return errTaskWrongStatus(t.ID, t.Status, "request changes on", StatusPendingReview)
	}
	msg, err := ValidateFeedback(message)
	if err != nil {
		return err
	}
	owner, err := owningStory(p, t)
	if err != nil {
		return err
	}

	t.ReviewFeedback = append(t.ReviewFeedback, Feedback{
		Message:   msg,
		Timestamp: Now(),
		Author:    strings.TrimSpace(author),
	})
	t.ReworkCount++
	ApplyStatusChange(&t.WorkItem, StatusInProgress)
	rollupParents(p, owner)
	return nil
}

// SetManualStatus update_task 允许的手动状态：
// TODO/IN_PROGRESS → BLOCKED/DEFERRED，BLOCKED/DEFERRED → TODO，相同状态为空操作。
// 其余变化必须通过工作流操作完成。
func SetManualStatus(p *Plan, t *Task, next Status) (bool, error) {
	if !next.Valid() {
		return false, errInvalidStatus("status", string(next))
	}
	prev := t.Status
	if prev == next {
		return false, nil
	}

	allowed := false
	switch next {
	case StatusBlocked, StatusDeferred:
		allowed = prev == StatusTodo || prev == StatusInProgress
	case StatusTodo:
		allowed = prev == StatusBlocked || prev == StatusDeferred
	}
	if !allowed {
		return false, NewError(KindInvalidState,
			"invalid status transition from %s to %s for task '%s'; use create_task_steps / approve_task / submit_for_review / request_changes",
			prev, next, t.ID)
	}
	owner, err := owningStory(p, t)
	if err != nil {
		return false, err
	}

	ApplyStatusChange(&t.WorkItem, next)
	rollupParents(p, owner)
	return true, nil
}

// TaskGate 计算任务所处门控
func TaskGate(t *Task, p *Plan) Gate {
	switch t.Status {
	case StatusInProgress:
		return GateExecuting
	case StatusPendingReview:
		return GateAwaitingReview
	case StatusDone:
		return GateDone
	case StatusBlocked:
		return GateBlocked
	case StatusDeferred:
		return GateDeferred
	}
	if !IsTaskUnblocked(t, p) {
		return GateBlocked
	}
	return GateReadyToStart
}

// owningStory 按任务 ID 前缀定位所属 Story；找不到或 story_id 不一致属于数据不一致，不能跳过汇总
func owningStory(p *Plan, t *Task) (*Story, error) {
	sid, _, ok := SplitTaskID(t.ID)
	if !ok {
		return nil, NewError(KindInconsistency, "task '%s' has an unqualified id", t.ID)
	}
	if t.StoryID != "" && t.StoryID != sid {
		return nil, NewError(KindInconsistency, "task '%s' records story_id '%s' but belongs to story '%s'", t.ID, t.StoryID, sid)
	}
	if p == nil {
		return nil, NewError(KindInconsistency, "task '%s' is not attached to a plan", t.ID)
	}
	s := p.FindStory(sid)
	if s == nil {
		return nil, NewError(KindInconsistency, "task '%s' belongs to unknown story '%s'", t.ID, sid)
	}
	return s, nil
}

// rollupParents 任务状态变化后重新汇总 Story 与 Plan
func rollupParents(p *Plan, s *Story) {
	RollupStory(s)
	RollupPlan(p)
}

func blockedError(t *Task, blockers []Blocker) error {
	parts := make([]string, 0, len(blockers))
	for _, b := range blockers {
		parts = append(parts, fmt.Sprintf("%s '%s' (%s: %s)", b.Kind, b.ID, b.Status, b.Reason))
	}
	return &Error{
		Kind:     KindBlocked,
		Message:  fmt.Sprintf("task '%s' is BLOCKED by unmet dependencies: %s", t.ID, strings.Join(parts, "; ")),
		Blockers: blockers,
	}
}
