package tools

import (
	"context"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/services"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// CreatePlanArgs 创建计划参数
type CreatePlanArgs struct {
	Title       string `json:"title" jsonschema:"required,description=计划标题（不能包含 ':'）"`
	Description string `json:"description" jsonschema:"description=计划描述"`
	Priority    *int   `json:"priority" jsonschema:"description=优先级 0-5，0 最高"`
}

// PlanIDArgs 只需要 plan_id 的工具
type PlanIDArgs struct {
	PlanID string `json:"plan_id" jsonschema:"required,description=计划 ID"`
}

// GetPlanArgs plan_id 可选
type GetPlanArgs struct {
	PlanID string `json:"plan_id" jsonschema:"description=计划 ID，留空取当前计划"`
}

// UpdatePlanArgs 更新计划参数
type UpdatePlanArgs struct {
	PlanID      string  `json:"plan_id" jsonschema:"required,description=计划 ID"`
	Title       *string `json:"title" jsonschema:"description=新标题"`
	Description *string `json:"description" jsonschema:"description=新描述"`
	Priority    *int    `json:"priority" jsonschema:"description=优先级 0-5"`
	Status      *string `json:"status" jsonschema:"enum=TODO,enum=BLOCKED,enum=DEFERRED,description=手动状态（后续任务流转会重新汇总）"`
}

// ListPlansArgs 列表过滤
type ListPlansArgs struct {
	Statuses []string `json:"statuses" jsonschema:"description=按状态过滤 (TODO / IN_PROGRESS / ...)"`
}

// RegisterPlanTools 注册计划工具
func RegisterPlanTools(s *server.MCPServer, sm *SessionManager) {
	s.AddTool(mcp.NewTool("create_plan",
		mcp.WithDescription(`create_plan - 创建新计划

用途：
  创建一个顶层计划。ID 由标题生成（小写 + 下划线），重名时追加 -2、-3。
  不会切换当前计划，需要时再调用 set_current_plan。`),
		mcp.WithInputSchema[CreatePlanArgs](),
	), wrapCreatePlan(sm))

	s.AddTool(mcp.NewTool("get_plan",
		mcp.WithDescription(`get_plan - 查看计划完整结构（含 Story 与任务）`),
		mcp.WithInputSchema[GetPlanArgs](),
	), wrapGetPlan(sm))

	s.AddTool(mcp.NewTool("update_plan",
		mcp.WithDescription(`update_plan - 修改计划标题、描述、优先级或状态`),
		mcp.WithInputSchema[UpdatePlanArgs](),
	), wrapUpdatePlan(sm))

	s.AddTool(mcp.NewTool("delete_plan",
		mcp.WithDescription(`delete_plan - 删除计划及其全部 Story / 任务

说明：
  删除当前计划后，当前计划切换到剩余的第一个；没有剩余计划时重新创建 default。`),
		mcp.WithInputSchema[PlanIDArgs](),
	), wrapDeletePlan(sm))

	s.AddTool(mcp.NewTool("list_plans",
		mcp.WithDescription(`list_plans - 列出计划（优先级 → 创建时间 → ID）`),
		mcp.WithInputSchema[ListPlansArgs](),
	), wrapListPlans(sm))

	s.AddTool(mcp.NewTool("set_current_plan",
		mcp.WithDescription(`set_current_plan - 切换当前计划`),
		mcp.WithInputSchema[PlanIDArgs](),
	), wrapSetCurrentPlan(sm))
}

func wrapCreatePlan(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CreatePlanArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "create_plan", func(ctx context.Context) (interface{}, error) {
			return sm.Service.CreatePlan(ctx, services.PlanInput{
				Title:       args.Title,
				Description: args.Description,
				Priority:    args.Priority,
			})
		})
	}
}

func wrapGetPlan(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GetPlanArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "get_plan", func(ctx context.Context) (interface{}, error) {
			return sm.Service.GetPlan(ctx, args.PlanID)
		})
	}
}

func wrapUpdatePlan(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args UpdatePlanArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "update_plan", func(ctx context.Context) (interface{}, error) {
			return sm.Service.UpdatePlan(ctx, args.PlanID, services.PlanUpdate{
				Title:       args.Title,
				Description: args.Description,
				Priority:    args.Priority,
				Status:      args.Status,
			})
		})
	}
}

func wrapDeletePlan(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args PlanIDArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "delete_plan", func(ctx context.Context) (interface{}, error) {
			return sm.Service.DeletePlan(ctx, args.PlanID)
		})
	}
}

func wrapListPlans(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListPlansArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "list_plans", func(ctx context.Context) (interface{}, error) {
			statuses, err := core.ParseStatuses(args.Statuses)
			if err != nil {
				return nil, err
			}
			return sm.Service.ListPlans(ctx, statuses)
		})
	}
}

func wrapSetCurrentPlan(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args PlanIDArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "set_current_plan", func(ctx context.Context) (interface{}, error) {
			return sm.Service.SetCurrentPlan(ctx, args.PlanID)
		})
	}
}
