package tools

import (
	"context"

	"plan-manager-go/internal/services"
	"plan-manager-go/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ReportArgs 报告参数
type ReportArgs struct {
	Scope string `json:"scope" jsonschema:"default=story,enum=story,enum=plan,description=报告范围"`
}

// ChangelogArgs changelog 参数
type ChangelogArgs struct {
	TaskRefArgs
	Category string `json:"category" jsonschema:"required,enum=Added,enum=Changed,enum=Deprecated,enum=Removed,enum=Fixed,enum=Security,description=keepachangelog 分类"`
	Version  string `json:"version" jsonschema:"description=版本号，留空不输出版本标题"`
	Date     string `json:"date" jsonschema:"description=日期 YYYY-MM-DD，默认今天"`
}

// CommitMessageArgs commit message 参数
type CommitMessageArgs struct {
	TaskRefArgs
	CommitType string `json:"commit_type" jsonschema:"required,enum=feat,enum=fix,enum=docs,enum=style,enum=refactor,enum=perf,enum=test,enum=build,enum=ci,enum=chore,description=conventional commit 类型"`
}

// ListActivityArgs 活动日志参数
type ListActivityArgs struct {
	PlanID  string   `json:"plan_id" jsonschema:"description=计划 ID，留空取当前计划"`
	Limit   int      `json:"limit" jsonschema:"default=50,description=返回条数"`
	Types   []string `json:"types" jsonschema:"description=事件类型过滤"`
	StoryID string   `json:"story_id" jsonschema:"description=按 Story 过滤"`
	TaskID  string   `json:"task_id" jsonschema:"description=按完全限定任务 ID 过滤"`
}

// RegisterReportTools 报告、changelog 与活动日志
func RegisterReportTools(s *server.MCPServer, sm *SessionManager) {
	s.AddTool(mcp.NewTool("report",
		mcp.WithDescription(`report - 进度报告

参数：
  scope (默认 story)
    story：当前 Story 的任务列表与下一步建议
    plan：所有 Story 的完成度汇总`),
		mcp.WithInputSchema[ReportArgs](),
	), wrapReport(sm))

	s.AddTool(mcp.NewTool("generate_changelog",
		mcp.WithDescription(`generate_changelog - 按 keepachangelog 格式输出任务的 changelog 片段

说明：
  条目来自 submit_for_review 的 changes。`),
		mcp.WithInputSchema[ChangelogArgs](),
	), wrapGenerateChangelog(sm))

	s.AddTool(mcp.NewTool("generate_commit_message",
		mcp.WithDescription(`generate_commit_message - 生成 conventional commit 信息

格式：
  type(local_id): title

  - change

  Refs: story_id`),
		mcp.WithInputSchema[CommitMessageArgs](),
	), wrapGenerateCommitMessage(sm))

	s.AddTool(mcp.NewTool("list_activity",
		mcp.WithDescription(`list_activity - 查看计划的活动日志（最新在前）`),
		mcp.WithInputSchema[ListActivityArgs](),
	), wrapListActivity(sm))
}

func wrapReport(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ReportArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "report", func(ctx context.Context) (interface{}, error) {
			return sm.Service.Report(ctx, args.Scope)
		})
	}
}

func wrapGenerateChangelog(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ChangelogArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "generate_changelog", func(ctx context.Context) (interface{}, error) {
			return sm.Service.GenerateChangelog(ctx, args.ref(), services.ChangelogOptions{
				Category: args.Category,
				Version:  args.Version,
				Date:     args.Date,
			})
		})
	}
}

func wrapGenerateCommitMessage(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CommitMessageArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "generate_commit_message", func(ctx context.Context) (interface{}, error) {
			return sm.Service.GenerateCommitMessage(ctx, args.ref(), args.CommitType)
		})
	}
}

func wrapListActivity(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListActivityArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "list_activity", func(ctx context.Context) (interface{}, error) {
			return sm.Service.ListActivity(ctx, args.PlanID, store.ListOptions{
				Limit:   args.Limit,
				Types:   args.Types,
				StoryID: args.StoryID,
				TaskID:  args.TaskID,
			})
		})
	}
}
