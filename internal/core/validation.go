package core

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// 输入长度限制
const (
	MaxTitleLength              = 200
	MaxDescriptionLength        = 2000
	MaxCriterionLength          = 500
	MaxAcceptanceCriteriaLength = 5000
	MaxChangelogEntryLength     = 500
	MaxFeedbackLength           = 2000
	MinPriority                 = 0
	MaxPriority                 = 5
)

// 除换行/制表符外的控制字符
var unsafeTextPattern = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")

// ValidateTitle 非空、长度、控制字符、禁止 ':'（ID 分隔符）
func ValidateTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", errSchema("title", "cannot be empty")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", errSchema("title", "too long (max %d characters)", MaxTitleLength)
	}
	if unsafeTextPattern.MatchString(title) {
		return "", errSchema("title", "contains invalid characters")
	}
	if strings.Contains(title, TaskIDSeparator) {
		return "", errSchema("title", "cannot contain ':' (reserved as ID separator)")
	}
	return trimmed, nil
}

// ValidateDescription 可为空
func ValidateDescription(description string) (string, error) {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", errSchema("description", "too long (max %d characters)", MaxDescriptionLength)
	}
	if unsafeTextPattern.MatchString(description) {
		return "", errSchema("description", "contains invalid characters")
	}
	return strings.TrimSpace(description), nil
}

// ValidatePriority nil 表示未设置
func ValidatePriority(priority *int) error {
	if priority == nil {
		return nil
	}
	if *priority < MinPriority || *priority > MaxPriority {
		return errSchema("priority", "must be between %d and %d (inclusive), got %d", MinPriority, MaxPriority, *priority)
	}
	return nil
}

// ValidateAcceptanceCriteria 每条非空且有长度上限
func ValidateAcceptanceCriteria(criteria []string) ([]string, error) {
	if criteria == nil {
		return nil, nil
	}
	out := make([]string, 0, len(criteria))
	total := 0
	for i, c := range criteria {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, errSchema("acceptance_criteria", "criterion %d cannot be empty", i+1)
		}
		n := utf8.RuneCountInString(c)
		if n > MaxCriterionLength {
			return nil, errSchema("acceptance_criteria", "criterion %d too long (max %d characters)", i+1, MaxCriterionLength)
		}
		if unsafeTextPattern.MatchString(c) {
			return nil, errSchema("acceptance_criteria", "criterion %d contains invalid characters", i+1)
		}
		total += n
		out = append(out, c)
	}
	if total > MaxAcceptanceCriteriaLength {
		return nil, errSchema("acceptance_criteria", "total length exceeds %d characters", MaxAcceptanceCriteriaLength)
	}
	return out, nil
}

// ValidateFeedback 评审意见必填
func ValidateFeedback(feedback string) (string, error) {
	trimmed := strings.TrimSpace(feedback)
	if trimmed == "" {
		return "", errSchema("feedback", "cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxFeedbackLength {
		return "", errSchema("feedback", "too long (max %d characters)", MaxFeedbackLength)
	}
	if unsafeTextPattern.MatchString(trimmed) {
		return "", errSchema("feedback", "contains invalid characters")
	}
	return trimmed, nil
}

// ValidateChanges changelog 条目
func ValidateChanges(changes []string) ([]string, error) {
	out := make([]string, 0, len(changes))
	for i, c := range changes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if utf8.RuneCountInString(c) > MaxChangelogEntryLength {
			return nil, errSchema("changes", "entry %d too long (max %d characters)", i+1, MaxChangelogEntryLength)
		}
		out = append(out, c)
	}
	return out, nil
}

// ========== 实体级校验 ==========

// validateWorkItem 状态枚举、优先级范围、标题规则
func validateWorkItem(kind string, w *WorkItem) error {
	if strings.TrimSpace(w.ID) == "" {
		return errSchema(kind+".id", "cannot be empty")
	}
	if !w.Status.Valid() {
		return errInvalidStatus(kind+" '"+w.ID+"' status", string(w.Status))
	}
	if err := ValidatePriority(w.Priority); err != nil {
		return WrapError(KindSchemaViolation, err, "%s '%s'", kind, w.ID)
	}
	if _, err := ValidateTitle(w.Title); err != nil {
		return WrapError(KindSchemaViolation, err, "%s '%s'", kind, w.ID)
	}
	return nil
}

// Validate 校验整张计划图的 schema（不含依赖，依赖见 ValidateDependencies）
func (p *Plan) Validate() error {
	if err := validateWorkItem("plan", &p.WorkItem); err != nil {
		return err
	}
	if len(p.DependsOn) > 0 {
		return errSchema("plan.depends_on", "plans cannot depend on other plans")
	}
	seenStories := make(map[string]struct{}, len(p.Stories))
	for _, s := range p.Stories {
		if s == nil {
			return NewError(KindInconsistency, "plan '%s' contains a nil story", p.ID)
		}
		if err := validateWorkItem("story", &s.WorkItem); err != nil {
			return err
		}
		if _, dup := seenStories[s.ID]; dup {
			return errSchema("story.id", "duplicate story id '%s'", s.ID)
		}
		seenStories[s.ID] = struct{}{}

		seenTasks := make(map[string]struct{}, len(s.Tasks))
		for _, t := range s.Tasks {
			if t == nil {
				return NewError(KindInconsistency, "story '%s' contains a nil task", s.ID)
			}
			if err := validateWorkItem("task", &t.WorkItem); err != nil {
				return err
			}
			sid, lid, ok := SplitTaskID(t.ID)
			if !ok || sid != s.ID {
				return errSchema("task.id", "task '%s' must be qualified as '%s:<local_id>'", t.ID, s.ID)
			}
			if t.LocalID != "" && t.LocalID != lid {
				return errSchema("task.local_id", "task '%s' has mismatched local_id '%s'", t.ID, t.LocalID)
			}
			if t.StoryID != "" && t.StoryID != s.ID {
				return errSchema("task.story_id", "task '%s' has mismatched story_id '%s' (expected '%s')", t.ID, t.StoryID, s.ID)
			}
			if _, dup := seenTasks[t.ID]; dup {
				return errSchema("task.id", "duplicate task id '%s'", t.ID)
			}
			seenTasks[t.ID] = struct{}{}
			if t.ReworkCount < 0 {
				return errSchema("task.rework_count", "task '%s' has negative rework_count", t.ID)
			}
		}
	}
	return nil
}

// Normalize 补齐从旧文件加载时缺失的派生字段
func (p *Plan) Normalize() {
	if p.Stories == nil {
		p.Stories = []*Story{}
	}
	for _, s := range p.Stories {
		if s == nil {
			continue
		}
		if s.DependsOn == nil {
			s.DependsOn = []string{}
		}
		if s.Tasks == nil {
			s.Tasks = []*Task{}
		}
		for _, t := range s.Tasks {
			if t == nil {
				continue
			}
			if sid, lid, ok := SplitTaskID(t.ID); ok {
				if t.StoryID == "" {
					t.StoryID = sid
				}
				if t.LocalID == "" {
					t.LocalID = lid
				}
			}
			if t.DependsOn == nil {
				t.DependsOn = []string{}
			}
		}
	}
}
