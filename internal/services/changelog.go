package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"plan-manager-go/internal/core"
)

// ChangelogCategories keepachangelog 分类
var ChangelogCategories = []string{"Added", "Changed", "Deprecated", "Removed", "Fixed", "Security"}

// CommitTypes conventional commits 类型
var CommitTypes = []string{"feat", "fix", "docs", "style", "refactor", "perf", "test", "build", "ci", "chore"}

// ChangelogOptions version 为空时不输出版本标题；date 为空时取当天（UTC）
type ChangelogOptions struct {
	Category string
	Version  string
	Date     string
}

// GenerateChangelog 为任务生成 CHANGELOG 片段
func (s *Service) GenerateChangelog(ctx context.Context, ref TaskRef, opts ChangelogOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return "", err
	}
	_, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return "", err
	}
	return FormatChangelog(task, opts)
}

// GenerateCommitMessage 为任务生成 conventional commit 信息
func (s *Service) GenerateCommitMessage(ctx context.Context, ref TaskRef, commitType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return "", err
	}
	_, task, err := s.resolveTask(p, st, ref)
	if err != nil {
		return "", err
	}
	return FormatCommitMessage(task, commitType)
}

// FormatChangelog 分类大小写不敏感，输出时规范化
func FormatChangelog(t *core.Task, opts ChangelogOptions) (string, error) {
	category, ok := matchFold(ChangelogCategories, opts.Category)
	if !ok {
		return "", core.NewError(core.KindSchemaViolation,
			"Invalid category '%s'. Must be one of: %s", opts.Category, strings.Join(ChangelogCategories, ", "))
	}

	var parts []string
	if v := strings.TrimSpace(opts.Version); v != "" {
		date := strings.TrimSpace(opts.Date)
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}
		parts = append(parts, fmt.Sprintf("## [%s] - %s\n", v, date))
	}
	parts = append(parts, fmt.Sprintf("### %s\n", category))

	entries := t.Changes
	if len(entries) == 0 {
		entries = []string{"No entries provided"}
	}
	for _, e := range entries {
		parts = append(parts, "- "+e)
	}
	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n", nil
}

// FormatCommitMessage type(local_id): title + 变更列表 + Refs
func FormatCommitMessage(t *core.Task, commitType string) (string, error) {
	ct, ok := matchFold(CommitTypes, commitType)
	if !ok {
		return "", core.NewError(core.KindSchemaViolation,
			"Invalid commit type '%s'. Must be one of: %s", commitType, strings.Join(CommitTypes, ", "))
	}
	localID := t.LocalID
	if localID == "" {
		if _, lid, ok := core.SplitTaskID(t.ID); ok {
			localID = lid
		} else {
			localID = t.ID
		}
	}

	parts := []string{fmt.Sprintf("%s(%s): %s", ct, localID, t.Title), ""}
	if len(t.Changes) > 0 {
		for _, c := range t.Changes {
			parts = append(parts, "- "+c)
		}
		parts = append(parts, "")
	}
	if t.StoryID != "" {
		parts = append(parts, "Refs: "+t.StoryID)
	}
	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n", nil
}

func matchFold(allowed []string, value string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return a, true
		}
	}
	return "", false
}
