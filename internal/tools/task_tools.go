package tools

import (
	"context"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/services"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// CreateTaskArgs 创建任务参数
type CreateTaskArgs struct {
	StoryID     string   `json:"story_id" jsonschema:"description=所属 Story，留空使用当前 Story"`
	Title       string   `json:"title" jsonschema:"required,description=任务标题"`
	Description string   `json:"description" jsonschema:"description=描述"`
	Priority    *int     `json:"priority" jsonschema:"description=优先级 0-5"`
	DependsOn   []string `json:"depends_on" jsonschema:"description=依赖：本地任务 ID / story:task / Story ID"`
}

// TaskRefArgs 任务定位：完全限定 ID，或本地 ID + story_id（缺省当前 Story）
type TaskRefArgs struct {
	TaskID  string `json:"task_id" jsonschema:"description=任务 ID (story:task 或本地 ID)，留空使用当前任务"`
	StoryID string `json:"story_id" jsonschema:"description=本地 ID 所属 Story"`
}

func (a TaskRefArgs) ref() services.TaskRef {
	return services.TaskRef{TaskID: a.TaskID, StoryID: a.StoryID}
}

// UpdateTaskArgs 更新任务参数
type UpdateTaskArgs struct {
	TaskRefArgs
	Title       *string   `json:"title" jsonschema:"description=新标题"`
	Description *string   `json:"description" jsonschema:"description=新描述"`
	Priority    *int      `json:"priority" jsonschema:"description=优先级 0-5"`
	DependsOn   *[]string `json:"depends_on" jsonschema:"description=整体替换依赖列表"`
	Status      *string   `json:"status" jsonschema:"enum=TODO,enum=BLOCKED,enum=DEFERRED,description=手动状态"`
}

// ListTasksArgs 列表过滤
type ListTasksArgs struct {
	Statuses []string `json:"statuses" jsonschema:"description=按状态过滤"`
	StoryID  string   `json:"story_id" jsonschema:"description=只列出该 Story 的任务"`
}

// RegisterTaskTools 注册任务工具
func RegisterTaskTools(s *server.MCPServer, sm *SessionManager) {
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription(`create_task - 在 Story 下创建任务

参数：
  story_id (可选)
    留空时使用当前 Story。
  depends_on (可选)
    "t1" 表示同 Story 的任务，"story:t1" 为完全限定任务，"story" 为整个 Story。

说明：
  任务 ID 形如 story_id:local_id，local_id 由标题生成。`),
		mcp.WithInputSchema[CreateTaskArgs](),
	), wrapCreateTask(sm))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription(`get_task - 查看任务详情`),
		mcp.WithInputSchema[TaskRefArgs](),
	), wrapGetTask(sm))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription(`update_task - 修改任务元数据或设置手动状态

说明：
  status 只接受 TODO / BLOCKED / DEFERRED：
  TODO、IN_PROGRESS 可以标记为 BLOCKED 或 DEFERRED，BLOCKED、DEFERRED 可以恢复为 TODO。
  开始、提交、完成必须走 approve_task / submit_for_review。`),
		mcp.WithInputSchema[UpdateTaskArgs](),
	), wrapUpdateTask(sm))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription(`delete_task - 删除任务

说明：
  被其他任务依赖时拒绝删除。删除当前任务后自动选中同 Story 的下一个可做任务。`),
		mcp.WithInputSchema[TaskRefArgs](),
	), wrapDeleteTask(sm))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription(`list_tasks - 列出任务（优先级 → 创建时间 → ID）`),
		mcp.WithInputSchema[ListTasksArgs](),
	), wrapListTasks(sm))

	s.AddTool(mcp.NewTool("explain_task_blockers",
		mcp.WithDescription(`explain_task_blockers - 解释任务为何不能开工

返回：
  blockers 列表（type / id / status / reason）与 unblocked 标记。无法解析的依赖以 UNKNOWN 状态列出。`),
		mcp.WithInputSchema[TaskRefArgs](),
	), wrapExplainTaskBlockers(sm))

	s.AddTool(mcp.NewTool("set_current_task",
		mcp.WithDescription(`set_current_task - 选中任务（同时切换当前 Story）`),
		mcp.WithInputSchema[TaskRefArgs](),
	), wrapSetCurrentTask(sm))
}

func wrapCreateTask(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CreateTaskArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "create_task", func(ctx context.Context) (interface{}, error) {
			return sm.Service.CreateTask(ctx, services.TaskInput{
				StoryID:     args.StoryID,
				Title:       args.Title,
				Description: args.Description,
				Priority:    args.Priority,
				DependsOn:   args.DependsOn,
			})
		})
	}
}

func wrapGetTask(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args TaskRefArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "get_task", func(ctx context.Context) (interface{}, error) {
			return sm.Service.GetTask(ctx, args.ref())
		})
	}
}

func wrapUpdateTask(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args UpdateTaskArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "update_task", func(ctx context.Context) (interface{}, error) {
			return sm.Service.UpdateTask(ctx, args.ref(), services.TaskUpdate{
				Title:       args.Title,
				Description: args.Description,
				Priority:    args.Priority,
				DependsOn:   args.DependsOn,
				Status:      args.Status,
			})
		})
	}
}

func wrapDeleteTask(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args TaskRefArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "delete_task", func(ctx context.Context) (interface{}, error) {
			return sm.Service.DeleteTask(ctx, args.ref())
		})
	}
}

func wrapListTasks(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListTasksArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "list_tasks", func(ctx context.Context) (interface{}, error) {
			statuses, err := core.ParseStatuses(args.Statuses)
			if err != nil {
				return nil, err
			}
			return sm.Service.ListTasks(ctx, services.TaskListOptions{Statuses: statuses, StoryID: args.StoryID})
		})
	}
}

func wrapExplainTaskBlockers(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args TaskRefArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "explain_task_blockers", func(ctx context.Context) (interface{}, error) {
			return sm.Service.ExplainTaskBlockers(ctx, args.ref())
		})
	}
}

func wrapSetCurrentTask(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args TaskRefArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "set_current_task", func(ctx context.Context) (interface{}, error) {
			return sm.Service.SetCurrentTask(ctx, args.ref())
		})
	}
}
