package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterContextTools 当前选择相关工具
func RegisterContextTools(s *server.MCPServer, sm *SessionManager) {
	s.AddTool(mcp.NewTool("get_current_context",
		mcp.WithDescription(`get_current_context - 我在哪？

返回：
  plan_id / current_story_id / current_task_id`),
	), wrapNoArgs(sm, "get_current_context", func(ctx context.Context) (interface{}, error) {
		return sm.Service.GetCurrentContext(ctx)
	}))

	s.AddTool(mcp.NewTool("select_first_unblocked_task",
		mcp.WithDescription(`select_first_unblocked_task - 选中当前 Story 中第一个可开工的任务

说明：
  需要先 set_current_story。Story 没有任务时会自动创建 "Starter task" 并选中。`),
	), wrapNoArgs(sm, "select_first_unblocked_task", func(ctx context.Context) (interface{}, error) {
		return sm.Service.SelectFirstUnblockedTask(ctx)
	}))

	s.AddTool(mcp.NewTool("advance_to_next_task",
		mcp.WithDescription(`advance_to_next_task - 移动到当前 Story 的下一个未完成任务`),
	), wrapNoArgs(sm, "advance_to_next_task", func(ctx context.Context) (interface{}, error) {
		return sm.Service.AdvanceToNextTask(ctx)
	}))
}

func wrapNoArgs(sm *SessionManager, tool string, fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return sm.run(ctx, tool, fn)
	}
}
