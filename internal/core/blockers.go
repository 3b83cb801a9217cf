package core

import (
	"sort"
	"strings"
)

// Blocker 单个未满足依赖
type Blocker struct {
	Kind   RefKind `json:"kind"`
	ID     string  `json:"id"`
	Status Status  `json:"status"`
	Reason string  `json:"reason"`
}

// BlockerReport explain_task_blockers 的结果
type BlockerReport struct {
	TaskID    string    `json:"task_id,omitempty"`
	Blockers  []Blocker `json:"blockers"`
	Unblocked bool      `json:"unblocked"`
}

const (
	ReasonTaskNotDone  = "Task not DONE"
	ReasonStoryNotDone = "Story not DONE"
	ReasonNotFound     = "dependency not found"
)

// ExplainBlockers 逐项解析任务依赖；无法解析的依赖视为 blocker（status=UNKNOWN），不报错。
// 只读，同一快照输入得到同一输出。
func ExplainBlockers(t *Task, p *Plan) BlockerReport {
	g := NewGraph(p)
	storyIDs := g.StoryIDSet()
	owning, _, ok := SplitTaskID(t.ID)
	if !ok {
		owning = t.StoryID
	}

	report := BlockerReport{TaskID: t.ID, Blockers: []Blocker{}}
	for _, raw := range t.DependsOn {
		ref, err := ResolveTaskDependency(owning, raw, storyIDs)
		if err != nil {
			report.Blockers = append(report.Blockers, Blocker{
				Kind: RefTask, ID: strings.TrimSpace(raw), Status: StatusUnknown, Reason: ReasonNotFound,
			})
			continue
		}
		report.Blockers = append(report.Blockers, resolveBlocker(g, ref)...)
	}
	report.Unblocked = len(report.Blockers) == 0
	return report
}

func resolveBlocker(g *Graph, ref DependencyRef) []Blocker {
	switch ref.Kind {
	case RefStory:
		s := g.Story(ref.StoryID)
		if s == nil {
			return []Blocker{{Kind: RefStory, ID: ref.StoryID, Status: StatusUnknown, Reason: ReasonNotFound}}
		}
		if s.Status != StatusDone {
			return []Blocker{{Kind: RefStory, ID: s.ID, Status: s.Status, Reason: ReasonStoryNotDone}}
		}
	case RefTask:
		t := g.Task(ref.ID())
		if t == nil {
			return []Blocker{{Kind: RefTask, ID: ref.ID(), Status: StatusUnknown, Reason: ReasonNotFound}}
		}
		if t.Status != StatusDone {
			return []Blocker{{Kind: RefTask, ID: t.ID, Status: t.Status, Reason: ReasonTaskNotDone}}
		}
	}
	return nil
}

// IsTaskUnblocked 所有依赖都 DONE
func IsTaskUnblocked(t *Task, p *Plan) bool {
	if len(t.DependsOn) == 0 {
		return true
	}
	return ExplainBlockers(t, p).Unblocked
}

// IsStoryUnblocked Story 依赖的 Story 全部 DONE
func IsStoryUnblocked(s *Story, p *Plan) bool {
	for _, dep := range s.DependsOn {
		target := p.FindStory(dep)
		if target == nil || target.Status != StatusDone {
			return false
		}
	}
	return true
}

// FindDependents 返回依赖 targetID 的 Story / Task ID（去重排序）。
// targetID 为 Story 时，同时统计对该 Story 下任务的外部引用（删除 Story 会连带删除其任务）。
func FindDependents(p *Plan, targetID string) []string {
	seen := make(map[string]struct{})
	g := NewGraph(p)
	storyIDs := g.StoryIDSet()

	targetIsTask := strings.Contains(targetID, TaskIDSeparator)
	ownedTasks := make(map[string]struct{})
	if !targetIsTask {
		if s := g.Story(targetID); s != nil {
			for _, t := range s.Tasks {
				ownedTasks[t.ID] = struct{}{}
			}
		}
		for _, s := range p.Stories {
			for _, dep := range s.DependsOn {
				if dep == targetID {
					seen[s.ID] = struct{}{}
				}
			}
		}
	}

	for _, s := range p.Stories {
		for _, t := range s.Tasks {
			for _, raw := range t.DependsOn {
				ref, err := ResolveTaskDependency(s.ID, raw, storyIDs)
				if err != nil {
					continue
				}
				if ref.ID() == targetID {
					seen[t.ID] = struct{}{}
					continue
				}
				if !targetIsTask && ref.Kind == RefTask && s.ID != targetID {
					if _, owned := ownedTasks[ref.ID()]; owned {
						seen[t.ID] = struct{}{}
					}
				}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
