package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind 错误分类
type ErrorKind string

const (
	KindSchemaViolation ErrorKind = "SchemaViolation"
	KindDependency      ErrorKind = "DependencyError"
	KindNotFound        ErrorKind = "NotFound"
	KindInvalidState    ErrorKind = "InvalidStateError"
	KindBlocked         ErrorKind = "BlockedError"
	KindInconsistency   ErrorKind = "Inconsistency"
)

// Error 领域错误，Blockers 仅在 KindBlocked 时填充
type Error struct {
	Kind     ErrorKind
	Message  string
	Blockers []Blocker
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError 创建领域错误
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError 带 cause 的领域错误
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf 取错误分类，非领域错误返回空串
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind 判断错误分类
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// BlockersOf 取出 BlockedError 附带的 blocker 列表
func BlockersOf(err error) []Blocker {
	var e *Error
	if errors.As(err, &e) {
		return e.Blockers
	}
	return nil
}

// ========== 错误辅助函数 ==========

func errInvalidStatus(field, value string) error {
	return NewError(KindSchemaViolation, "invalid %s '%s'. Allowed: %s", field, value, allowedStatusNames())
}

func errSchema(field, format string, args ...interface{}) error {
	return NewError(KindSchemaViolation, "%s: %s", field, fmt.Sprintf(format, args...))
}

func errTaskWrongStatus(taskID string, current Status, action string, expected ...Status) error {
	names := make([]string, 0, len(expected))
	for _, s := range expected {
		names = append(names, string(s))
	}
	return NewError(KindInvalidState,
		"cannot %s task '%s': current status is %s, expected %s",
		action, taskID, current, strings.Join(names, " or "))
}

// ErrPlanNotFound 计划不存在
func ErrPlanNotFound(planID string) error {
	return NewError(KindNotFound, "plan '%s' not found", planID)
}

// ErrStoryNotFound Story 不存在
func ErrStoryNotFound(storyID string) error {
	return NewError(KindNotFound, "story with ID '%s' not found", storyID)
}

// ErrTaskNotFound 任务不存在
func ErrTaskNotFound(taskID, storyID string) error {
	return NewError(KindNotFound, "task with ID '%s' not found under story '%s'", taskID, storyID)
}
