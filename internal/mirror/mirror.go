package mirror

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"plan-manager-go/internal/core"
	"plan-manager-go/pkg/utils"
)

// SchemaVersion front matter 版本
const SchemaVersion = 1

// Mirror 计划图的只写 markdown 镜像，失败不影响主流程
type Mirror interface {
	SyncStory(planID string, s *core.Story)
	SyncTask(planID string, t *core.Task)
	DeleteStory(planID, storyID string)
	DeleteTask(planID, storyID, localID string)
}

// NopMirror 关闭镜像时使用
type NopMirror struct{}

func (NopMirror) SyncStory(string, *core.Story) {}
func (NopMirror) SyncTask(string, *core.Task) {}
func (NopMirror) DeleteStory(string, string) {}
func (NopMirror) DeleteTask(string, string, string) {}

// FileMirror 写入 <todo>/<plan>/<story>/story.md 与 tasks/<local>.md
type FileMirror struct {
	root    string
	onError func(op string, err error)
}

// NewFileMirror onError 可为 nil（用于上报失败计数）
func NewFileMirror(todoDir string, onError func(op string, err error)) *FileMirror {
	return &FileMirror{root: todoDir, onError: onError}
}

// StoryPath story.md 路径
func (m *FileMirror) StoryPath(planID, storyID string) string {
	return filepath.Join(m.root, planID, storyID, "story.md")
}

// TaskPath 任务 markdown 路径
func (m *FileMirror) TaskPath(planID, storyID, localID string) string {
	return filepath.Join(m.root, planID, storyID, "tasks", localID+".md")
}

type storyFront struct {
	ID                 string   `yaml:"id"`
	Title              string   `yaml:"title"`
	Description        string   `yaml:"description,omitempty"`
	Priority           *int     `yaml:"priority,omitempty"`
	Status             string   `yaml:"status"`
	CreationTime       string   `yaml:"creation_time,omitempty"`
	CompletionTime     string   `yaml:"completion_time,omitempty"`
	DependsOn          []string `yaml:"depends_on,omitempty"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria,omitempty"`
	Tasks              []string `yaml:"tasks,omitempty"`
}

type taskFront struct {
	ID               string   `yaml:"id"`
	StoryID          string   `yaml:"story_id"`
	LocalID          string   `yaml:"local_id"`
	Title            string   `yaml:"title"`
	Description      string   `yaml:"description,omitempty"`
	Priority         *int     `yaml:"priority,omitempty"`
	Status           string   `yaml:"status"`
	CreationTime     string   `yaml:"creation_time,omitempty"`
	CompletionTime   string   `yaml:"completion_time,omitempty"`
	DependsOn        []string `yaml:"depends_on,omitempty"`
	Steps            []string `yaml:"steps,omitempty"`
	ReworkCount      int      `yaml:"rework_count,omitempty"`
	ExecutionSummary string   `yaml:"execution_summary,omitempty"`
}

var storyKeys = []string{"id", "title", "description", "priority", "status", "creation_time", "completion_time", "depends_on", "acceptance_criteria", "tasks"}

var taskKeys = []string{"id", "story_id", "local_id", "title", "description", "priority", "status", "creation_time", "completion_time", "depends_on", "steps", "rework_count", "execution_summary"}

// SyncStory 写入 Story 镜像
func (m *FileMirror) SyncStory(planID string, s *core.Story) {
	front := storyFront{
		ID:                 s.ID,
		Title:              s.Title,
		Description:        s.Description,
		Priority:           s.Priority,
		Status:             string(s.Status),
		CreationTime:       core.FormatTime(s.CreationTime),
		CompletionTime:     core.FormatTime(s.CompletionTime),
		DependsOn:          s.DependsOn,
		AcceptanceCriteria: s.AcceptanceCriteria,
	}
	for _, t := range s.Tasks {
		front.Tasks = append(front.Tasks, t.ID)
	}
	body := defaultBody(s.Title, s.Description)
	m.report("sync_story", m.write(m.StoryPath(planID, s.ID), front, storyKeys, body))
}

// SyncTask 写入任务镜像
func (m *FileMirror) SyncTask(planID string, t *core.Task) {
	front := taskFront{
		ID:               t.ID,
		StoryID:          t.StoryID,
		LocalID:          t.LocalID,
		Title:            t.Title,
		Description:      t.Description,
		Priority:         t.Priority,
		Status:           string(t.Status),
		CreationTime:     core.FormatTime(t.CreationTime),
		CompletionTime:   core.FormatTime(t.CompletionTime),
		DependsOn:        t.DependsOn,
		ReworkCount:      t.ReworkCount,
		ExecutionSummary: t.ExecutionSummary,
	}
	for _, st := range t.Steps {
		front.Steps = append(front.Steps, st.Title)
	}
	body := defaultBody(t.Title, t.Description)
	m.report("sync_task", m.write(m.TaskPath(planID, t.StoryID, t.LocalID), front, taskKeys, body))
}

// DeleteStory 删除整个 Story 目录（含任务镜像）
func (m *FileMirror) DeleteStory(planID, storyID string) {
	dir := filepath.Dir(m.StoryPath(planID, storyID))
	m.report("delete_story", os.RemoveAll(dir))
}

// DeleteTask 删除任务镜像
func (m *FileMirror) DeleteTask(planID, storyID, localID string) {
	err := os.Remove(m.TaskPath(planID, storyID, localID))
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	m.report("delete_task", err)
}

func (m *FileMirror) report(op string, err error) {
	if err == nil {
		return
	}
	slog.Warn("mirror write failed", "op", op, "error", err)
	if m.onError != nil {
		m.onError(op, err)
	}
}

// write 合并已有 front matter（保留未托管的键与正文），再原子写入
func (m *FileMirror) write(path string, front interface{}, managed []string, newBody string) error {
	fresh, err := toMapping(front)
	if err != nil {
		return err
	}

	merged := fresh
	body := newBody
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		existing, existingBody := SplitFrontMatter(raw)
		if existing != nil {
			merged = mergeMapping(existing, fresh, managed)
		}
		body = existingBody
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("read %s: %w", path, err)
	}
	ensureSchemaVersion(merged)

	out, err := render(merged, body)
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, out, 0644)
}

// SplitFrontMatter 拆分 front matter 与正文；无 front matter 或解析失败时 mapping 为 nil
func SplitFrontMatter(raw []byte) (*yaml.Node, string) {
	text := string(raw)
	if !strings.HasPrefix(text, "---") {
		return nil, text
	}
	lines := strings.Split(text, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, text
	}

	var doc yaml.Node
	block := strings.Join(lines[1:end], "\n")
	body := strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, text
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, body
	}
	return doc.Content[0], body
}

func toMapping(v interface{}) (*yaml.Node, error) {
	var doc yaml.Node
	if err := doc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("front matter must be a mapping")
	}
	return &doc, nil
}

// mergeMapping 新值覆盖旧值；托管键在新值中缺失时从旧值删除；其余旧键原样保留并保持顺序
func mergeMapping(existing, fresh *yaml.Node, managed []string) *yaml.Node {
	freshVals := make(map[string]*yaml.Node, len(fresh.Content)/2)
	var freshOrder []string
	for i := 0; i+1 < len(fresh.Content); i += 2 {
		k := fresh.Content[i].Value
		freshVals[k] = fresh.Content[i+1]
		freshOrder = append(freshOrder, k)
	}
	isManaged := make(map[string]bool, len(managed))
	for _, k := range managed {
		isManaged[k] = true
	}

	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	written := make(map[string]bool)
	for i := 0; i+1 < len(existing.Content); i += 2 {
		keyNode, valNode := existing.Content[i], existing.Content[i+1]
		k := keyNode.Value
		if v, ok := freshVals[k]; ok {
			out.Content = append(out.Content, keyNode, v)
			written[k] = true
			continue
		}
		if isManaged[k] {
			continue
		}
		out.Content = append(out.Content, keyNode, valNode)
	}
	for _, k := range freshOrder {
		if written[k] {
			continue
		}
		out.Content = append(out.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, freshVals[k])
	}
	return out
}

func ensureSchemaVersion(n *yaml.Node) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "schema_version" {
			return
		}
	}
	n.Content = append(n.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "schema_version"},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(SchemaVersion)})
}

func render(front *yaml.Node, body string) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(front); err != nil {
		return nil, fmt.Errorf("render front matter: %w", err)
	}
	enc.Close()

	var out bytes.Buffer
	out.WriteString("---\n")
	out.WriteString(strings.TrimRight(buf.String(), "\n"))
	out.WriteString("\n---\n\n")
	out.WriteString(body)
	return out.Bytes(), nil
}

func defaultBody(title, description string) string {
	var b strings.Builder
	b.WriteString("# " + title + "\n")
	if description != "" {
		b.WriteString("\n" + description + "\n")
	}
	return b.String()
}
