package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/logging"
	"plan-manager-go/internal/metrics"
	"plan-manager-go/internal/services"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SessionManager 工具层共享的运行时上下文
type SessionManager struct {
	Service     *services.Service
	Metrics     *metrics.Metrics // nil 时不上报
	ProjectRoot string
}

// NewSessionManager 创建会话
func NewSessionManager(svc *services.Service, m *metrics.Metrics, projectRoot string) *SessionManager {
	return &SessionManager{Service: svc, Metrics: m, ProjectRoot: projectRoot}
}

// RegisterAll 注册全部工具与资源
func RegisterAll(s *server.MCPServer, sm *SessionManager) {
	RegisterPlanTools(s, sm)
	RegisterStoryTools(s, sm)
	RegisterTaskTools(s, sm)
	RegisterWorkflowTools(s, sm)
	RegisterContextTools(s, sm)
	RegisterReportTools(s, sm)
	RegisterResources(s, sm)
}

type toolFunc func(ctx context.Context) (interface{}, error)

// run 每次调用：分配 corr_id → 执行 → 记录指标 → 渲染结果。
// 领域错误渲染为 ToolResultError，从不向传输层返回 Go error。
func (sm *SessionManager) run(ctx context.Context, tool string, fn toolFunc) (*mcp.CallToolResult, error) {
	ctx, _ = logging.WithCorrelationID(ctx)
	log := logging.FromContext(ctx).With("tool", tool)
	started := time.Now()

	out, err := fn(ctx)
	if err != nil {
		kind := core.KindOf(err)
		label := string(kind)
		switch kind {
		case "":
			label = "Internal"
			log.Error("tool failed", "error", err)
		case core.KindInconsistency:
			log.Error("tool failed", "kind", kind, "error", err)
		default:
			log.Info("tool rejected", "kind", kind, "error", err)
		}
		sm.Metrics.ObserveTool(tool, started, label)
		return mcp.NewToolResultError(renderError(err)), nil
	}

	sm.Metrics.ObserveTool(tool, started, "")
	log.Debug("tool ok", "elapsed_ms", time.Since(started).Milliseconds())

	if text, ok := out.(string); ok {
		return mcp.NewToolResultText(text), nil
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("序列化结果失败: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// renderError [Kind] message，BlockedError 追加逐条 blocker
func renderError(err error) string {
	kind := core.KindOf(err)
	if kind == "" {
		return err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", kind, err.Error())
	if blockers := core.BlockersOf(err); len(blockers) > 0 {
		b.WriteString("\nBlockers:")
		for _, bl := range blockers {
			fmt.Fprintf(&b, "\n  - %s '%s' (%s): %s", bl.Kind, bl.ID, bl.Status, bl.Reason)
		}
	}
	return b.String()
}

func argError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("参数错误: %v", err))
}
