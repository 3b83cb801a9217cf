package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"plan-manager-go/internal/core"
	"plan-manager-go/pkg/utils"
)

// ========== 文件布局 ==========
//
//   <todo>/plans.yaml             计划索引 + 当前计划
//   <todo>/<plan_id>/plan.yaml    完整计划图
//   <todo>/<plan_id>/state.yaml   当前 Story / Task

const (
	IndexFile = "plans.yaml"
	PlanFile  = "plan.yaml"
	StateFile = "state.yaml"

	DefaultPlanID    = "default"
	DefaultPlanTitle = "Default Plan"
)

var planIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

// PlanEntry 索引中的计划摘要
type PlanEntry struct {
	ID           string      `json:"id" yaml:"id"`
	Title        string      `json:"title" yaml:"title"`
	Status       core.Status `json:"status" yaml:"status"`
	Priority     *int        `json:"priority,omitempty" yaml:"priority,omitempty"`
	CreationTime *time.Time  `json:"creation_time,omitempty" yaml:"creation_time,omitempty"`
}

type planIndex struct {
	Current string      `yaml:"current"`
	Plans   []PlanEntry `yaml:"plans"`
}

func (idx *planIndex) find(planID string) int {
	for i, e := range idx.Plans {
		if e.ID == planID {
			return i
		}
	}
	return -1
}

// Repository 计划图的 YAML 持久化。不做缓存，每次调用都读写磁盘；并发由上层串行化。
type Repository struct {
	root string
}

// NewRepository root 为 todo 目录
func NewRepository(todoDir string) *Repository {
	return &Repository{root: todoDir}
}

// Root todo 目录
func (r *Repository) Root() string {
	return r.root
}

// PlanDir 计划目录
func (r *Repository) PlanDir(planID string) string {
	return filepath.Join(r.root, planID)
}

func (r *Repository) indexPath() string {
	return filepath.Join(r.root, IndexFile)
}

func (r *Repository) planPath(planID string) string {
	return filepath.Join(r.root, planID, PlanFile)
}

func checkPlanID(planID string) error {
	if !planIDPattern.MatchString(planID) {
		return core.NewError(core.KindSchemaViolation, "invalid plan id '%s'", planID)
	}
	return nil
}

// ========== 索引 ==========

func (r *Repository) readIndex() (*planIndex, error) {
	raw, err := os.ReadFile(r.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plan index: %w", err)
	}
	var idx planIndex
	if err := yaml.Unmarshal(raw, &idx); err != nil {
		return nil, core.WrapError(core.KindInconsistency, err, "plan index %s is corrupt", r.indexPath())
	}
	return &idx, nil
}

func (r *Repository) writeIndex(idx *planIndex) error {
	raw, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode plan index: %w", err)
	}
	return utils.WriteFileAtomic(r.indexPath(), raw, 0644)
}

// loadIndex 首次使用时创建 default 计划
func (r *Repository) loadIndex() (*planIndex, error) {
	idx, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	if idx != nil {
		return idx, nil
	}

	idx = &planIndex{}
	if err := r.bootstrapDefault(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (r *Repository) bootstrapDefault(idx *planIndex) error {
	p := core.NewPlan(DefaultPlanID, DefaultPlanTitle)
	if err := r.writePlan(p); err != nil {
		return err
	}
	upsertEntry(idx, p)
	idx.Current = p.ID
	if err := r.writeIndex(idx); err != nil {
		return err
	}
	slog.Info("bootstrapped default plan", "todo_dir", r.root)
	return nil
}

func entryFor(p *core.Plan) PlanEntry {
	return PlanEntry{
		ID:           p.ID,
		Title:        p.Title,
		Status:       p.Status,
		Priority:     p.Priority,
		CreationTime: p.CreationTime,
	}
}

func upsertEntry(idx *planIndex, p *core.Plan) {
	e := entryFor(p)
	if i := idx.find(p.ID); i >= 0 {
		idx.Plans[i] = e
		return
	}
	idx.Plans = append(idx.Plans, e)
}

// ========== 计划 CRUD ==========

// Exists 计划是否在索引中
func (r *Repository) Exists(planID string) (bool, error) {
	idx, err := r.loadIndex()
	if err != nil {
		return false, err
	}
	return idx.find(planID) >= 0, nil
}

// Load 读取并校验计划图（schema + 依赖）
func (r *Repository) Load(planID string) (*core.Plan, error) {
	if err := checkPlanID(planID); err != nil {
		return nil, err
	}
	idx, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	if idx.find(planID) < 0 {
		return nil, core.ErrPlanNotFound(planID)
	}

	raw, err := os.ReadFile(r.planPath(planID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, core.ErrPlanNotFound(planID)
	}
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", planID, err)
	}

	var p core.Plan
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, core.WrapError(core.KindSchemaViolation, err, "plan '%s' cannot be decoded", planID)
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := core.ValidateDependencies(p.Stories); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save 校验后原子写入计划图并更新索引；校验失败时磁盘不变
func (r *Repository) Save(p *core.Plan) error {
	if err := checkPlanID(p.ID); err != nil {
		return err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	if err := core.ValidateDependencies(p.Stories); err != nil {
		return err
	}

	idx, err := r.loadIndex()
	if err != nil {
		return err
	}
	if err := r.writePlan(p); err != nil {
		return err
	}
	upsertEntry(idx, p)
	if idx.Current == "" {
		idx.Current = p.ID
	}
	return r.writeIndex(idx)
}

func (r *Repository) writePlan(p *core.Plan) error {
	raw, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", p.ID, err)
	}
	return utils.WriteFileAtomic(r.planPath(p.ID), raw, 0644)
}

// Delete 删除计划目录与索引条目，返回删除后的当前计划 ID。
// 删除的是当前计划时，切换到剩余的第一个计划；没有剩余时重建 default。
func (r *Repository) Delete(planID string) (string, error) {
	if err := checkPlanID(planID); err != nil {
		return "", err
	}
	idx, err := r.loadIndex()
	if err != nil {
		return "", err
	}
	i := idx.find(planID)
	if i < 0 {
		return "", core.ErrPlanNotFound(planID)
	}

	idx.Plans = append(idx.Plans[:i], idx.Plans[i+1:]...)
	if err := os.RemoveAll(r.PlanDir(planID)); err != nil {
		return "", fmt.Errorf("remove plan dir %s: %w", planID, err)
	}

	if idx.Current == planID {
		idx.Current = ""
		if len(idx.Plans) > 0 {
			idx.Current = idx.Plans[0].ID
		} else {
			if err := r.bootstrapDefault(idx); err != nil {
				return "", err
			}
			return idx.Current, nil
		}
	}
	if err := r.writeIndex(idx); err != nil {
		return "", err
	}
	return idx.Current, nil
}

// ListPlans 按 优先级 → 创建时间 → ID 排序
func (r *Repository) ListPlans() ([]PlanEntry, error) {
	idx, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	out := append([]PlanEntry(nil), idx.Plans...)
	sort.SliceStable(out, func(i, j int) bool {
		a := core.WorkItem{ID: out[i].ID, Priority: out[i].Priority, CreationTime: out[i].CreationTime}
		b := core.WorkItem{ID: out[j].ID, Priority: out[j].Priority, CreationTime: out[j].CreationTime}
		return core.LessWorkItem(&a, &b)
	})
	return out, nil
}

// PlanIDs 索引中的全部计划 ID（索引顺序）
func (r *Repository) PlanIDs() ([]string, error) {
	idx, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(idx.Plans))
	for _, e := range idx.Plans {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// CurrentPlanID 当前计划；索引指向的计划丢失时回退到第一个
func (r *Repository) CurrentPlanID() (string, error) {
	idx, err := r.loadIndex()
	if err != nil {
		return "", err
	}
	if idx.Current != "" && idx.find(idx.Current) >= 0 {
		return idx.Current, nil
	}
	if len(idx.Plans) == 0 {
		if err := r.bootstrapDefault(idx); err != nil {
			return "", err
		}
		return idx.Current, nil
	}
	idx.Current = idx.Plans[0].ID
	if err := r.writeIndex(idx); err != nil {
		return "", err
	}
	return idx.Current, nil
}

// SetCurrentPlanID 切换当前计划
func (r *Repository) SetCurrentPlanID(planID string) error {
	idx, err := r.loadIndex()
	if err != nil {
		return err
	}
	if idx.find(planID) < 0 {
		return core.ErrPlanNotFound(planID)
	}
	idx.Current = planID
	return r.writeIndex(idx)
}
