package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	slugStripPattern = regexp.MustCompile(`[^a-z0-9\s]+`)
	slugSpacePattern = regexp.MustCompile(`\s+`)
)

// Slugify 标题 -> ID：小写，非字母数字替换为空格，空白折叠为下划线。
// 纯非 ASCII 标题（如中文）得到空串时回退为 item_<8位随机>。
func Slugify(title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", errSchema("title", "cannot be empty when generating an id")
	}
	s := strings.ToLower(title)
	s = slugStripPattern.ReplaceAllString(s, " ")
	s = slugSpacePattern.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" {
		s = "item_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	return s, nil
}

// EnsureUniqueID baseID 已占用时依次追加 -2, -3 ...
func EnsureUniqueID(baseID string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		taken[id] = struct{}{}
	}
	if _, ok := taken[baseID]; !ok {
		return baseID
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", baseID, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// QualifyTaskID 拼接完全限定任务 ID
func QualifyTaskID(storyID, localID string) string {
	return storyID + TaskIDSeparator + localID
}

// SplitTaskID 拆分完全限定任务 ID
func SplitTaskID(taskID string) (storyID, localID string, ok bool) {
	storyID, localID, ok = strings.Cut(taskID, TaskIDSeparator)
	if !ok || storyID == "" || localID == "" {
		return "", "", false
	}
	return storyID, localID, true
}

// ResolveTaskID 将任务 ID 解析为 (story_id, local_id)。
// 完全限定 ID 直接拆分（与显式 storyID 冲突时报错）；本地 ID 需要 storyID 或当前 Story。
func ResolveTaskID(taskID, storyID, currentStoryID string) (string, string, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return "", "", errSchema("task_id", "cannot be empty")
	}
	if strings.Contains(taskID, TaskIDSeparator) {
		sid, lid, ok := SplitTaskID(taskID)
		if !ok {
			return "", "", errSchema("task_id", "invalid fully-qualified task ID '%s', expected 'story_id:task_id'", taskID)
		}
		if storyID != "" && storyID != sid {
			return "", "", errSchema("story_id", "mismatched story_id: provided '%s' but task has '%s'", storyID, sid)
		}
		return sid, lid, nil
	}
	sid := storyID
	if sid == "" {
		sid = currentStoryID
	}
	if sid == "" {
		return "", "", NewError(KindInvalidState,
			"cannot use a local task ID without a current story; call set_current_story or provide a fully-qualified ID ('story:task')")
	}
	return sid, taskID, nil
}
