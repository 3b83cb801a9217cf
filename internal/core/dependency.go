package core

import (
	"strings"
)

// ========== 依赖引用 ==========

// RefKind 依赖目标类型
type RefKind string

const (
	RefStory RefKind = "story"
	RefTask  RefKind = "task"
)

// DependencyRef 解析后的依赖：整个 Story，或某个完全限定任务
type DependencyRef struct {
	Kind    RefKind
	StoryID string
	LocalID string // 仅 RefTask
	Raw     string
}

// ID 目标的完全限定 ID
func (r DependencyRef) ID() string {
	if r.Kind == RefTask {
		return QualifyTaskID(r.StoryID, r.LocalID)
	}
	return r.StoryID
}

// ResolveTaskDependency 任务依赖解析规则：
//   - 含 ':' 视为完全限定任务
//   - 否则若是某个 Story ID，视为依赖整个 Story
//   - 否则视为同 Story 内的本地任务
func ResolveTaskDependency(owningStoryID, raw string, storyIDs map[string]struct{}) (DependencyRef, error) {
	dep := strings.TrimSpace(raw)
	if dep == "" {
		return DependencyRef{}, errSchema("depends_on", "dependency entry cannot be empty")
	}
	if strings.Contains(dep, TaskIDSeparator) {
		sid, lid, ok := SplitTaskID(dep)
		if !ok {
			return DependencyRef{}, errSchema("depends_on", "invalid task reference '%s'", dep)
		}
		return DependencyRef{Kind: RefTask, StoryID: sid, LocalID: lid, Raw: raw}, nil
	}
	if _, ok := storyIDs[dep]; ok {
		return DependencyRef{Kind: RefStory, StoryID: dep, Raw: raw}, nil
	}
	return DependencyRef{Kind: RefTask, StoryID: owningStoryID, LocalID: dep, Raw: raw}, nil
}

// ========== 计划图索引 ==========

// Graph 一次快照内的只读索引
type Graph struct {
	plan    *Plan
	stories map[string]*Story
	tasks   map[string]*Task
}

// NewGraph 构建索引
func NewGraph(p *Plan) *Graph {
	g := &Graph{
		plan:    p,
		stories: make(map[string]*Story, len(p.Stories)),
		tasks:   make(map[string]*Task),
	}
	for _, s := range p.Stories {
		g.stories[s.ID] = s
		for _, t := range s.Tasks {
			g.tasks[t.ID] = t
		}
	}
	return g
}

// StoryIDSet Story ID 集合
func (g *Graph) StoryIDSet() map[string]struct{} {
	out := make(map[string]struct{}, len(g.stories))
	for id := range g.stories {
		out[id] = struct{}{}
	}
	return out
}

// Story 按 ID 取 Story
func (g *Graph) Story(id string) *Story { return g.stories[id] }

// Task 按完全限定 ID 取任务
func (g *Graph) Task(id string) *Task { return g.tasks[id] }

// ========== 依赖校验 ==========

// ValidateDependencies 校验所有 Story / Task 的 depends_on：
// 引用必须存在，且不能直接依赖自己。不做更长的环检测。
func ValidateDependencies(stories []*Story) error {
	storyIDs := make(map[string]struct{}, len(stories))
	taskIDs := make(map[string]struct{})
	for _, s := range stories {
		storyIDs[s.ID] = struct{}{}
		for _, t := range s.Tasks {
			taskIDs[t.ID] = struct{}{}
		}
	}

	for _, s := range stories {
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return NewError(KindDependency, "story '%s' cannot depend on itself", s.ID)
			}
			if _, ok := storyIDs[dep]; !ok {
				return NewError(KindDependency, "story '%s' has unmet dependency: '%s'", s.ID, dep)
			}
		}

		for _, t := range s.Tasks {
			for _, raw := range t.DependsOn {
				if strings.TrimSpace(raw) == "" {
					return NewError(KindDependency, "task '%s' in story '%s' has invalid dependency entry: '%s'", t.ID, s.ID, raw)
				}
				ref, err := ResolveTaskDependency(s.ID, raw, storyIDs)
				if err != nil {
					return WrapError(KindDependency, err, "task '%s'", t.ID)
				}
				if ref.Kind == RefStory {
					continue
				}
				target := ref.ID()
				if target == t.ID {
					return NewError(KindDependency, "task '%s' cannot depend on itself", t.ID)
				}
				if _, ok := taskIDs[target]; !ok {
					if strings.Contains(strings.TrimSpace(raw), TaskIDSeparator) {
						return NewError(KindDependency, "task '%s' depends on unknown task '%s'", t.ID, target)
					}
					return NewError(KindDependency, "task '%s' depends on unknown task '%s' in story '%s'", t.ID, strings.TrimSpace(raw), s.ID)
				}
			}
		}
	}
	return nil
}

// FindStoryCycles 返回拓扑排序无法消解的 Story ID（在环上或下游依赖环），供列表展示时告警
func FindStoryCycles(stories []*Story) []string {
	_, leftover := TopoSortStories(stories)
	ids := make([]string, 0, len(leftover))
	for _, s := range leftover {
		ids = append(ids, s.ID)
	}
	return ids
}
