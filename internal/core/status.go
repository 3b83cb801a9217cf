package core

import (
	"strings"
)

// Status 工作项状态
type Status string

const (
	StatusTodo          Status = "TODO"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusDone          Status = "DONE"
	StatusBlocked       Status = "BLOCKED"
	StatusDeferred      Status = "DEFERRED"

	// StatusUnknown 仅出现在 blocker 说明里（依赖无法解析），不是合法的实体状态
	StatusUnknown Status = "UNKNOWN"
)

// AllStatuses 合法状态（有序，用于错误提示）
var AllStatuses = []Status{
	StatusTodo,
	StatusInProgress,
	StatusPendingReview,
	StatusDone,
	StatusBlocked,
	StatusDeferred,
}

// Valid 是否为六个合法状态之一
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus 大小写不敏感解析
func ParseStatus(value string) (Status, error) {
	token := Status(strings.ToUpper(strings.TrimSpace(value)))
	if !token.Valid() {
		return "", errInvalidStatus("status", value)
	}
	return token, nil
}

// ParseStatuses 解析状态列表，空列表返回 nil（表示不过滤）
func ParseStatuses(values []string) ([]Status, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]Status, 0, len(values))
	for _, v := range values {
		s, err := ParseStatus(v)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func allowedStatusNames() string {
	names := make([]string, 0, len(AllStatuses))
	for _, s := range AllStatuses {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// ========== 状态变更（唯一入口） ==========

// ApplyStatusChange 所有状态修改都必须走这里，保证 completion_time 不变式：
// 进入 DONE 时设置，离开 DONE 时清空。
func ApplyStatusChange(item *WorkItem, next Status) {
	prev := item.Status
	item.Status = next
	switch {
	case next == StatusDone && prev != StatusDone:
		now := Now()
		item.CompletionTime = &now
	case next != StatusDone && prev == StatusDone:
		item.CompletionTime = nil
	}
}

// ========== 状态汇总 ==========

// Rollup 由子项状态推导父项状态（task→story, story→plan 共用）
func Rollup(children []Status) Status {
	if len(children) == 0 {
		return StatusTodo
	}

	var done, active, idle int
	for _, s := range children {
		switch s {
		case StatusDone:
			done++
		case StatusInProgress, StatusPendingReview:
			active++
		default:
			idle++
		}
	}

	switch {
	case done == len(children):
		return StatusDone
	case active > 0:
		return StatusInProgress
	case done > 0 && idle > 0:
		return StatusInProgress
	default:
		return StatusTodo
	}
}

// RollupStory 重新计算 Story 状态，返回是否发生变化
func RollupStory(s *Story) bool {
	next := Rollup(s.TaskStatuses())
	if next == s.Status {
		return false
	}
	ApplyStatusChange(&s.WorkItem, next)
	return true
}

// RollupPlan 重新计算 Plan 状态，返回是否发生变化
func RollupPlan(p *Plan) bool {
	next := Rollup(p.StoryStatuses())
	if next == p.Status {
		return false
	}
	ApplyStatusChange(&p.WorkItem, next)
	return true
}
