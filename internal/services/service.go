package services

import (
	"context"
	"strings"
	"sync"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/logging"
	"plan-manager-go/internal/metrics"
	"plan-manager-go/internal/mirror"
	"plan-manager-go/internal/store"
)

// Options Service 依赖
type Options struct {
	Repository  *store.Repository
	State       *store.StateStore
	Activity    *store.ActivityLog // nil 时不记录活动
	Mirror      mirror.Mirror      // nil 时使用 NopMirror
	Metrics     *metrics.Metrics   // nil 时不上报
	ProjectRoot string             // 步骤模板查找位置
}

// Service 所有工具操作的入口。每次调用都完整地 读盘 → 内存修改 → 写盘；
// MCP 可能并发派发请求，用互斥锁串行化。
type Service struct {
	mu          sync.Mutex
	repo        *store.Repository
	state       *store.StateStore
	activity    *store.ActivityLog
	mirror      mirror.Mirror
	metrics     *metrics.Metrics
	projectRoot string
}

// New 创建 Service
func New(opts Options) *Service {
	s := &Service{
		repo:        opts.Repository,
		state:       opts.State,
		activity:    opts.Activity,
		mirror:      opts.Mirror,
		metrics:     opts.Metrics,
		projectRoot: opts.ProjectRoot,
	}
	if s.state == nil {
		s.state = store.NewStateStore(s.repo.Root())
	}
	if s.mirror == nil {
		s.mirror = mirror.NopMirror{}
	}
	return s
}

// Repository 底层仓库（只读浏览使用）
func (s *Service) Repository() *store.Repository {
	return s.repo
}

// TaskRef 任务定位：完全限定 ID，或本地 ID + story（缺省为当前 Story）；TaskID 为空表示当前任务
type TaskRef struct {
	TaskID  string
	StoryID string
}

// OpResult 删除等操作的结果
type OpResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ========== 内部辅助 ==========

func (s *Service) currentPlan() (*core.Plan, error) {
	planID, err := s.repo.CurrentPlanID()
	if err != nil {
		return nil, err
	}
	return s.repo.Load(planID)
}

func (s *Service) currentPlanAndState() (*core.Plan, store.State, error) {
	p, err := s.currentPlan()
	if err != nil {
		return nil, store.State{}, err
	}
	st, err := s.state.Get(p.ID)
	if err != nil {
		return nil, store.State{}, err
	}
	return p, st, nil
}

// resolveTask 按 TaskRef 定位任务
func (s *Service) resolveTask(p *core.Plan, st store.State, ref TaskRef) (*core.Story, *core.Task, error) {
	taskID := ref.TaskID
	if taskID == "" {
		taskID = st.CurrentTaskID
		if taskID == "" {
			return nil, nil, core.NewError(core.KindInvalidState,
				"no current task; pass task_id or call set_current_task / select_first_unblocked_task")
		}
	}
	sid, lid, err := core.ResolveTaskID(taskID, ref.StoryID, st.CurrentStoryID)
	if err != nil {
		return nil, nil, err
	}
	story := p.FindStory(sid)
	if story == nil {
		return nil, nil, core.ErrStoryNotFound(sid)
	}
	task := story.FindTask(lid)
	if task == nil {
		return nil, nil, core.ErrTaskNotFound(core.QualifyTaskID(sid, lid), sid)
	}
	return story, task, nil
}

// record 追加活动事件；失败只记日志，不影响主流程
func (s *Service) record(ctx context.Context, planID, eventType string, scope store.EventScope, data map[string]interface{}) {
	if s.activity == nil {
		return
	}
	_, err := s.activity.Append(ctx, store.Event{PlanID: planID, Type: eventType, Scope: scope, Data: data})
	if err != nil {
		logging.FromContext(ctx).Warn("activity append failed", "type", eventType, "plan_id", planID, "error", err)
		s.metrics.RecordActivityDrop()
	}
}

// syncTask 镜像任务及其 Story（Story 的状态与任务列表可能随之变化）
func (s *Service) syncTask(planID string, story *core.Story, t *core.Task) {
	s.mirror.SyncTask(planID, t)
	s.mirror.SyncStory(planID, story)
}

// afterTaskTransition 记录状态流转的活动、指标与日志
func (s *Service) afterTaskTransition(ctx context.Context, p *core.Plan, story *core.Story, t *core.Task, prev core.Status, eventType string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	scope := store.EventScope{StoryID: story.ID, TaskID: t.ID}
	if eventType != "" {
		s.record(ctx, p.ID, eventType, scope, data)
	}
	if prev != t.Status {
		s.metrics.RecordTransition(string(prev), string(t.Status))
		s.record(ctx, p.ID, store.EventTaskStatusChanged, scope, map[string]interface{}{
			"from": string(prev),
			"to":   string(t.Status),
		})
		logging.FromContext(ctx).Info("task status changed",
			"plan_id", p.ID, "task_id", t.ID, "from", prev, "to", t.Status,
			"story_status", story.Status, "plan_status", p.Status)
	}
	s.syncTask(p.ID, story, t)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
