package tools

import (
	"context"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/services"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// CreateStoryArgs 创建 Story 参数
type CreateStoryArgs struct {
	Title              string   `json:"title" jsonschema:"required,description=Story 标题"`
	Description        string   `json:"description" jsonschema:"description=描述"`
	Priority           *int     `json:"priority" jsonschema:"description=优先级 0-5"`
	DependsOn          []string `json:"depends_on" jsonschema:"description=依赖的 Story ID 列表"`
	AcceptanceCriteria []string `json:"acceptance_criteria" jsonschema:"description=验收标准"`
}

// StoryIDArgs 只需要 story_id 的工具
type StoryIDArgs struct {
	StoryID string `json:"story_id" jsonschema:"required,description=Story ID"`
}

// UpdateStoryArgs 更新 Story 参数（状态由任务汇总，不可直接修改）
type UpdateStoryArgs struct {
	StoryID            string    `json:"story_id" jsonschema:"required,description=Story ID"`
	Title              *string   `json:"title" jsonschema:"description=新标题"`
	Description        *string   `json:"description" jsonschema:"description=新描述"`
	Priority           *int      `json:"priority" jsonschema:"description=优先级 0-5"`
	DependsOn          *[]string `json:"depends_on" jsonschema:"description=整体替换依赖列表"`
	AcceptanceCriteria *[]string `json:"acceptance_criteria" jsonschema:"description=整体替换验收标准"`
}

// ListStoriesArgs 列表过滤
type ListStoriesArgs struct {
	Statuses  []string `json:"statuses" jsonschema:"description=按状态过滤"`
	Unblocked bool     `json:"unblocked" jsonschema:"description=只返回依赖全部 DONE 的 Story"`
}

// RegisterStoryTools 注册 Story 工具
func RegisterStoryTools(s *server.MCPServer, sm *SessionManager) {
	s.AddTool(mcp.NewTool("create_story",
		mcp.WithDescription(`create_story - 在当前计划中创建 Story

参数：
  title (必填)
  depends_on (可选)
    依赖的 Story ID。引用必须存在，不能依赖自己。`),
		mcp.WithInputSchema[CreateStoryArgs](),
	), wrapCreateStory(sm))

	s.AddTool(mcp.NewTool("get_story",
		mcp.WithDescription(`get_story - 查看 Story（含任务）`),
		mcp.WithInputSchema[StoryIDArgs](),
	), wrapGetStory(sm))

	s.AddTool(mcp.NewTool("update_story",
		mcp.WithDescription(`update_story - 修改 Story 元数据

说明：
  Story 状态由其任务汇总得出，这里不接受 status。`),
		mcp.WithInputSchema[UpdateStoryArgs](),
	), wrapUpdateStory(sm))

	s.AddTool(mcp.NewTool("delete_story",
		mcp.WithDescription(`delete_story - 删除 Story 及其任务

说明：
  被其他 Story 或任务依赖时拒绝删除。`),
		mcp.WithInputSchema[StoryIDArgs](),
	), wrapDeleteStory(sm))

	s.AddTool(mcp.NewTool("list_stories",
		mcp.WithDescription(`list_stories - 按依赖拓扑顺序列出 Story

参数：
  statuses (可选)  按状态过滤
  unblocked (可选) 只看可开工的 Story`),
		mcp.WithInputSchema[ListStoriesArgs](),
	), wrapListStories(sm))

	s.AddTool(mcp.NewTool("set_current_story",
		mcp.WithDescription(`set_current_story - 切换当前 Story（不属于它的当前任务会被清除）`),
		mcp.WithInputSchema[StoryIDArgs](),
	), wrapSetCurrentStory(sm))
}

func wrapCreateStory(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CreateStoryArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "create_story", func(ctx context.Context) (interface{}, error) {
			return sm.Service.CreateStory(ctx, services.StoryInput{
				Title:              args.Title,
				Description:        args.Description,
				Priority:           args.Priority,
				DependsOn:          args.DependsOn,
				AcceptanceCriteria: args.AcceptanceCriteria,
			})
		})
	}
}

func wrapGetStory(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args StoryIDArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "get_story", func(ctx context.Context) (interface{}, error) {
			return sm.Service.GetStory(ctx, args.StoryID)
		})
	}
}

func wrapUpdateStory(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args UpdateStoryArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "update_story", func(ctx context.Context) (interface{}, error) {
			return sm.Service.UpdateStory(ctx, args.StoryID, services.StoryUpdate{
				Title:              args.Title,
				Description:        args.Description,
				Priority:           args.Priority,
				DependsOn:          args.DependsOn,
				AcceptanceCriteria: args.AcceptanceCriteria,
			})
		})
	}
}

func wrapDeleteStory(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args StoryIDArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "delete_story", func(ctx context.Context) (interface{}, error) {
			return sm.Service.DeleteStory(ctx, args.StoryID)
		})
	}
}

func wrapListStories(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListStoriesArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "list_stories", func(ctx context.Context) (interface{}, error) {
			statuses, err := core.ParseStatuses(args.Statuses)
			if err != nil {
				return nil, err
			}
			return sm.Service.ListStories(ctx, services.StoryListOptions{Statuses: statuses, Unblocked: args.Unblocked})
		})
	}
}

func wrapSetCurrentStory(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args StoryIDArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "set_current_story", func(ctx context.Context) (interface{}, error) {
			return sm.Service.SetCurrentStory(ctx, args.StoryID)
		})
	}
}
