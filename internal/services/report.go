package services

import (
	"context"
	"fmt"
	"strings"

	"plan-manager-go/internal/core"
)

// 报告范围
const (
	ReportScopeStory = "story"
	ReportScopePlan  = "plan"
)

const (
	reportRule    = "---------------------------------------------------"
	attentionRule = "------------------------------------------------------------------------"
)

// Report 生成当前计划或当前 Story 的文本报告
func (s *Service) Report(ctx context.Context, scope string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, st, err := s.currentPlanAndState()
	if err != nil {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case ReportScopePlan:
		return planReport(p), nil
	case "", ReportScopeStory:
		return storyReport(p, st.CurrentStoryID, st.CurrentTaskID), nil
	default:
		return "", core.NewError(core.KindSchemaViolation, "scope: must be 'story' or 'plan', got '%s'", scope)
	}
}

func planReport(p *core.Plan) string {
	if len(p.Stories) == 0 {
		return fmt.Sprintf("Plan '%s' is active but contains no stories.", p.Title)
	}
	lines := []string{
		fmt.Sprintf("Plan Summary: %s (%s)", p.Title, p.Status),
		reportRule,
	}
	for _, story := range p.Stories {
		progress := "(no tasks)"
		if len(story.Tasks) > 0 {
			progress = fmt.Sprintf("(%d/%d tasks done)", countDone(story.Tasks), len(story.Tasks))
		}
		lines = append(lines, fmt.Sprintf("[%-13s] %s %s", story.Status, story.Title, progress))
	}
	return strings.Join(lines, "\n")
}

func storyReport(p *core.Plan, storyID, taskID string) string {
	if storyID == "" {
		return fmt.Sprintf("Plan '%s' is active, but no story is selected. Use `set_current_story` if you have a specific story in mind, or `list_stories` to see all stories.", p.Title)
	}
	story := p.FindStory(storyID)
	if story == nil {
		return fmt.Sprintf("Error: Active story with ID '%s' not found in plan '%s'.", storyID, p.Title)
	}

	lines := []string{
		fmt.Sprintf("Current Story: %s (%s)", story.Title, story.Status),
		reportRule,
	}
	if len(story.Tasks) == 0 {
		lines = append(lines, "This story has no tasks.", "\nNext Action: Create tasks for this story.")
		return strings.Join(lines, "\n")
	}

	var active *core.Task
	if taskID != "" {
		active = story.FindTask(taskID)
	}

	lines = append(lines, fmt.Sprintf("Tasks (%d/%d done):", countDone(story.Tasks), len(story.Tasks)))
	for _, t := range story.Tasks {
		marker := "  "
		if active != nil && t.ID == active.ID {
			marker = ">>"
		}
		lines = append(lines, fmt.Sprintf("%s [%-13s] %s - %s", marker, t.Status, t.LocalID, t.Title))
	}

	if active != nil {
		report := core.ExplainBlockers(active, p)
		if !report.Unblocked {
			lines = append(lines,
				"\n"+attentionRule,
				fmt.Sprintf("ATTENTION: Current task '%s' is BLOCKED.", active.Title),
				"It cannot be started because of the following dependencies:",
			)
			for _, b := range report.Blockers {
				lines = append(lines, "- "+describeBlocker(p, b))
			}
			lines = append(lines, "\nNext Action: Complete the dependencies to unblock this task.")
			return strings.Join(lines, "\n")
		}

		if active.Status == core.StatusTodo && len(active.Steps) > 0 {
			lines = append(lines, fmt.Sprintf("\nNext Action: The plan for '%s' is ready for review. Run `approve_task` to start work.", active.Title))
			return strings.Join(lines, "\n")
		}

		if active.Status == core.StatusPendingReview {
			lines = append(lines, fmt.Sprintf("\nNext Action: '%s' is ready for code review. Run `approve_task` to mark it as DONE.", active.Title))
			if len(active.Changes) > 0 {
				lines = append(lines, "\nChangelog Entries:")
				for _, c := range active.Changes {
					lines = append(lines, "  - "+c)
				}
			}
			return strings.Join(lines, "\n")
		}
	}

	var next *core.Task
	for _, t := range story.Tasks {
		if t.Status == core.StatusTodo && core.IsTaskUnblocked(t, p) {
			next = t
			break
		}
	}
	switch {
	case next != nil && len(next.Steps) > 0:
		lines = append(lines, fmt.Sprintf("\nNext Action: The plan for '%s' is ready for review. Set it as active (`set_current_task %s`) and run `approve_task`.", next.Title, next.LocalID))
	case next != nil:
		lines = append(lines, fmt.Sprintf("\nNext Action: `create_task_steps` for Task '%s', or `approve_task %s:%s` to fast-track.", next.LocalID, story.ID, next.LocalID))
	case countDone(story.Tasks) == len(story.Tasks):
		lines = append(lines, "\nAll tasks for this story are complete!")
	default:
		lines = append(lines, "\nAll remaining tasks are either in progress, in review, or blocked.")
	}
	return strings.Join(lines, "\n")
}

// describeBlocker 人类可读的 blocker 描述（用标题而不是 ID）
func describeBlocker(p *core.Plan, b core.Blocker) string {
	if b.Status == core.StatusUnknown {
		return fmt.Sprintf("Dependency '%s' not found.", b.ID)
	}
	if b.Kind == core.RefStory {
		title := b.ID
		if story := p.FindStory(b.ID); story != nil {
			title = story.Title
		}
		return fmt.Sprintf("Story '%s' is not DONE (status: %s)", title, b.Status)
	}
	title := b.ID
	if _, t := p.FindTask(b.ID); t != nil {
		title = t.Title
	}
	return fmt.Sprintf("Task '%s' is not DONE (status: %s)", title, b.Status)
}

func countDone(tasks []*core.Task) int {
	n := 0
	for _, t := range tasks {
		if t.Status == core.StatusDone {
			n++
		}
	}
	return n
}
