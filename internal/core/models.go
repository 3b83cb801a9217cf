package core

import (
	"strings"
	"time"
)

// ========== 实体模型 ==========

// TimeLayout 所有时间戳统一使用 UTC + Z 后缀
const TimeLayout = "2006-01-02T15:04:05Z"

// TaskIDSeparator 完全限定任务 ID 的分隔符 (story_id:local_id)
const TaskIDSeparator = ":"

// WorkItem Plan/Story/Task 共享的字段
type WorkItem struct {
	ID             string     `json:"id" yaml:"id"`
	Title          string     `json:"title" yaml:"title"`
	Description    string     `json:"description,omitempty" yaml:"description,omitempty"`
	Priority       *int       `json:"priority,omitempty" yaml:"priority,omitempty"`
	Status         Status     `json:"status" yaml:"status"`
	CreationTime   *time.Time `json:"creation_time,omitempty" yaml:"creation_time,omitempty"`
	CompletionTime *time.Time `json:"completion_time,omitempty" yaml:"completion_time,omitempty"`
}

// Plan 顶层计划，按插入顺序持有 Story
type Plan struct {
	WorkItem  `yaml:",inline"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Stories   []*Story `json:"stories" yaml:"stories"`
}

// Story 用户价值单元，持有 Task
type Story struct {
	WorkItem           `yaml:",inline"`
	DependsOn          []string `json:"depends_on" yaml:"depends_on"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`
	Tasks              []*Task  `json:"tasks" yaml:"tasks"`
}

// Step 实施步骤
type Step struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Feedback 评审意见（只追加）
type Feedback struct {
	Message   string    `json:"message" yaml:"message"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Author    string    `json:"author,omitempty" yaml:"author,omitempty"`
}

// Task 最小可追踪工作单元，ID 形如 story_id:local_id
type Task struct {
	WorkItem         `yaml:",inline"`
	StoryID          string     `json:"story_id" yaml:"story_id"`
	LocalID          string     `json:"local_id" yaml:"local_id"`
	DependsOn        []string   `json:"depends_on" yaml:"depends_on"`
	Steps            []Step     `json:"steps,omitempty" yaml:"steps,omitempty"`
	ReviewFeedback   []Feedback `json:"review_feedback,omitempty" yaml:"review_feedback,omitempty"`
	ReworkCount      int        `json:"rework_count" yaml:"rework_count"`
	ExecutionSummary string     `json:"execution_summary,omitempty" yaml:"execution_summary,omitempty"`
	Changes          []string   `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// nowFunc 测试可替换
var nowFunc = func() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Now 返回秒级精度的 UTC 当前时间
func Now() time.Time {
	return nowFunc()
}

// NewWorkItem 新实体一律 TODO + creation_time=now
func NewWorkItem(id, title string) WorkItem {
	now := Now()
	return WorkItem{
		ID:           id,
		Title:        title,
		Status:       StatusTodo,
		CreationTime: &now,
	}
}

// NewPlan 创建计划
func NewPlan(id, title string) *Plan {
	return &Plan{WorkItem: NewWorkItem(id, title), Stories: []*Story{}}
}

// NewStory 创建 Story
func NewStory(id, title string) *Story {
	return &Story{WorkItem: NewWorkItem(id, title), DependsOn: []string{}, Tasks: []*Task{}}
}

// NewTask 创建 Task，ID 由 storyID 与 localID 拼接
func NewTask(storyID, localID, title string) *Task {
	return &Task{
		WorkItem:  NewWorkItem(QualifyTaskID(storyID, localID), title),
		StoryID:   storyID,
		LocalID:   localID,
		DependsOn: []string{},
	}
}

// FindStory 按 ID 查找 Story
func (p *Plan) FindStory(storyID string) *Story {
	for _, s := range p.Stories {
		if s.ID == storyID {
			return s
		}
	}
	return nil
}

// FindStoryIndex 按 ID 查找 Story 下标
func (p *Plan) FindStoryIndex(storyID string) int {
	for i, s := range p.Stories {
		if s.ID == storyID {
			return i
		}
	}
	return -1
}

// FindTask 按完全限定 ID 查找任务
func (p *Plan) FindTask(taskID string) (*Story, *Task) {
	storyID, _, ok := SplitTaskID(taskID)
	if !ok {
		return nil, nil
	}
	s := p.FindStory(storyID)
	if s == nil {
		return nil, nil
	}
	return s, s.FindTask(taskID)
}

// FindTask 按完全限定或本地 ID 查找
func (s *Story) FindTask(taskID string) *Task {
	if !strings.Contains(taskID, TaskIDSeparator) {
		taskID = QualifyTaskID(s.ID, taskID)
	}
	for _, t := range s.Tasks {
		if t.ID == taskID {
			return t
		}
	}
	return nil
}

// LocalTaskIDs Story 内已有的本地任务 ID
func (s *Story) LocalTaskIDs() []string {
	ids := make([]string, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		ids = append(ids, t.LocalID)
	}
	return ids
}

// TaskStatuses 子任务状态列表（用于 rollup）
func (s *Story) TaskStatuses() []Status {
	out := make([]Status, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		out = append(out, t.Status)
	}
	return out
}

// StoryStatuses 子 Story 状态列表（用于 rollup）
func (p *Plan) StoryStatuses() []Status {
	out := make([]Status, 0, len(p.Stories))
	for _, s := range p.Stories {
		out = append(out, s.Status)
	}
	return out
}

// PriorityValue 未设置优先级按 6 处理（最低）
func (w *WorkItem) PriorityValue() int {
	if w.Priority == nil {
		return 6
	}
	return *w.Priority
}

// FormatTime 输出 Z 后缀时间，nil 返回空串
func FormatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}
