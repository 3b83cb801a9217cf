package tools

import (
	"context"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/services"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StepArg 单个实施步骤
type StepArg struct {
	Title       string `json:"title" jsonschema:"required,description=步骤标题"`
	Description string `json:"description" jsonschema:"description=步骤说明"`
}

// CreateTaskStepsArgs 附加步骤参数
type CreateTaskStepsArgs struct {
	TaskRefArgs
	Steps    []StepArg `json:"steps" jsonschema:"description=步骤列表（与 template 二选一）"`
	Template string    `json:"template" jsonschema:"description=步骤模板名 (develop / debug / refactor 或项目自定义)"`
}

// SubmitForReviewArgs 提交评审参数
type SubmitForReviewArgs struct {
	TaskRefArgs
	ExecutionSummary string   `json:"execution_summary" jsonschema:"required,description=执行总结"`
	Changes          []string `json:"changes" jsonschema:"description=changelog 条目"`
}

// RequestChangesArgs 打回参数
type RequestChangesArgs struct {
	TaskRefArgs
	Feedback string `json:"feedback" jsonschema:"required,description=评审意见"`
	Author   string `json:"author" jsonschema:"description=评审人"`
}

// RegisterWorkflowTools 注册双门控工作流工具
func RegisterWorkflowTools(s *server.MCPServer, sm *SessionManager) {
	s.AddTool(mcp.NewTool("create_task_steps",
		mcp.WithDescription(`create_task_steps - 为任务附加实施步骤（门控一的前置）

参数：
  steps (可选)     显式步骤 [{title, description}]
  template (可选)  步骤模板名，内置 develop / debug / refactor，
                   项目可在 .mcp-config/step_templates.yaml 中扩展

说明：
  只允许 TODO / IN_PROGRESS 任务，整体替换已有步骤。`),
		mcp.WithInputSchema[CreateTaskStepsArgs](),
	), wrapCreateTaskSteps(sm))

	s.AddTool(mcp.NewTool("approve_task",
		mcp.WithDescription(`approve_task - 审批任务（两个门控共用）

用途：
  - TODO：依赖全部 DONE 后进入 IN_PROGRESS；没有步骤时走 fast-track
  - PENDING_REVIEW：评审通过，进入 DONE

说明：
  依赖未满足时返回 BlockedError 并列出 blockers，任务状态不变。
  task_id 留空时审批当前任务。`),
		mcp.WithInputSchema[TaskRefArgs](),
	), wrapApproveTask(sm))

	s.AddTool(mcp.NewTool("submit_for_review",
		mcp.WithDescription(`submit_for_review - 提交评审（IN_PROGRESS → PENDING_REVIEW）

参数：
  execution_summary (必填)
  changes (可选)  changelog 条目，供 generate_changelog 使用`),
		mcp.WithInputSchema[SubmitForReviewArgs](),
	), wrapSubmitForReview(sm))

	s.AddTool(mcp.NewTool("request_changes",
		mcp.WithDescription(`request_changes - 打回修改（PENDING_REVIEW → IN_PROGRESS）

说明：
  评审意见只追加不覆盖，rework_count +1。`),
		mcp.WithInputSchema[RequestChangesArgs](),
	), wrapRequestChanges(sm))

	s.AddTool(mcp.NewTool("workflow_status",
		mcp.WithDescription(`workflow_status - 查看任务所处门控与下一步操作`),
		mcp.WithInputSchema[TaskRefArgs](),
	), wrapWorkflowStatus(sm))
}

func wrapCreateTaskSteps(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CreateTaskStepsArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		steps := make([]core.Step, 0, len(args.Steps))
		for _, st := range args.Steps {
			steps = append(steps, core.Step{Title: st.Title, Description: st.Description})
		}
		return sm.run(ctx, "create_task_steps", func(ctx context.Context) (interface{}, error) {
			return sm.Service.CreateTaskSteps(ctx, args.ref(), services.StepsInput{Steps: steps, Template: args.Template})
		})
	}
}

func wrapApproveTask(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args TaskRefArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "approve_task", func(ctx context.Context) (interface{}, error) {
			return sm.Service.ApproveTask(ctx, args.ref())
		})
	}
}

func wrapSubmitForReview(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SubmitForReviewArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "submit_for_review", func(ctx context.Context) (interface{}, error) {
			return sm.Service.SubmitForReview(ctx, args.ref(), args.ExecutionSummary, args.Changes)
		})
	}
}

func wrapRequestChanges(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args RequestChangesArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "request_changes", func(ctx context.Context) (interface{}, error) {
			return sm.Service.RequestChanges(ctx, args.ref(), args.Feedback, args.Author)
		})
	}
}

func wrapWorkflowStatus(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args TaskRefArgs
		if err := request.BindArguments(&args); err != nil {
			return argError(err), nil
		}
		return sm.run(ctx, "workflow_status", func(ctx context.Context) (interface{}, error) {
			return sm.Service.WorkflowStatus(ctx, args.ref())
		})
	}
}
