// Package watch 监听 todo 目录的外部修改（手工编辑 plan.yaml、镜像 markdown），
// 对计划文件做一次加载校验并输出变更事件。
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	changeChannelBuffer  = 256
	defaultDebounceDelay = 300 * time.Millisecond
)

// Op 变更类型
type Op string

const (
	OpWrite  Op = "write"
	OpDelete Op = "delete"
)

// Kind 被修改的文件类别
type Kind string

const (
	KindIndex  Kind = "index"
	KindPlan   Kind = "plan"
	KindState  Kind = "state"
	KindMirror Kind = "mirror"
)

// Change 一次（去抖后的）文件变更
type Change struct {
	Path   string `json:"path"`
	Op     Op     `json:"op"`
	Kind   Kind   `json:"kind"`
	PlanID string `json:"plan_id,omitempty"`
	// Err 计划文件校验失败的原因
	Err error `json:"-"`
}

// Options 监听配置
type Options struct {
	DebounceDelay time.Duration
	// Validate 计划文件变化后调用，返回加载/校验错误
	Validate func(planID string) error
}

// Watcher todo 目录监听器
type Watcher struct {
	root     string
	opts     Options
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	changes  chan Change
	pendingM sync.Mutex
	pending  map[string]fsnotify.Op // 路径 → 合并后的事件位
}

// New 创建监听器，root 不存在时自动创建
func New(root string, opts Options, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = defaultDebounceDelay
	}
	return &Watcher{
		root:    root,
		opts:    opts,
		watcher: fsw,
		logger:  logger,
		changes: make(chan Change, changeChannelBuffer),
		pending: make(map[string]fsnotify.Op),
	}, nil
}

// Changes 变更事件；Start 的 goroutine 退出时关闭
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Start 递归添加目录监听并启动事件循环
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	go w.loop(ctx)
	w.logger.Info("todo watcher started", "root", w.root, "debounce", w.opts.DebounceDelay)
	return nil
}

// Stop 关闭底层 fsnotify
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if base := filepath.Base(path); path != root && strings.HasPrefix(base, ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("watch directory failed", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.changes)
	ticker := time.NewTicker(w.opts.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	// 原子写入的临时文件
	if strings.HasPrefix(base, ".") {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("watch new directory failed", "path", event.Name, "error", err)
			}
			return
		}
	}
	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".yaml" && ext != ".md" {
		return
	}
	w.pendingM.Lock()
	w.pending[event.Name] |= event.Op
	w.pendingM.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingM.Lock()
	if len(w.pending) == 0 {
		w.pendingM.Unlock()
		return
	}
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingM.Unlock()

	for path := range batch {
		change := w.classify(path)
		change.Op = OpWrite
		if _, err := os.Stat(path); err != nil {
			change.Op = OpDelete
		}
		if change.Kind == KindPlan && change.Op == OpWrite && w.opts.Validate != nil {
			change.Err = w.opts.Validate(change.PlanID)
		}

		if change.Err != nil {
			w.logger.Warn("external edit left plan invalid", "plan_id", change.PlanID, "path", change.Path, "error", change.Err)
		} else {
			w.logger.Info("todo file changed", "kind", change.Kind, "op", change.Op, "path", change.Path)
		}

		select {
		case w.changes <- change:
		case <-ctx.Done():
			return
		default:
			w.logger.Warn("change dropped, consumer too slow", "path", change.Path)
		}
	}
}

// classify 按 todo 目录布局归类：plans.yaml / <plan>/plan.yaml / <plan>/state.yaml / 其余 markdown
func (w *Watcher) classify(path string) Change {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")

	change := Change{Path: rel, Kind: KindMirror}
	if len(parts) > 1 {
		change.PlanID = parts[0]
	}
	switch {
	case rel == "plans.yaml":
		change.Kind = KindIndex
	case len(parts) == 2 && parts[1] == "plan.yaml":
		change.Kind = KindPlan
	case len(parts) == 2 && parts[1] == "state.yaml":
		change.Kind = KindState
	}
	return change
}
