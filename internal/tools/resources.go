package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"
)

// 只读资源 URI
const (
	ResourceCurrentPlan   = "plan://current"
	ResourceCurrentReport = "plan://current/report"
)

// RegisterResources 当前计划的只读视图，供客户端直接挂载上下文
func RegisterResources(s *server.MCPServer, sm *SessionManager) {
	s.AddResource(mcp.NewResource(ResourceCurrentPlan, "Current plan",
		mcp.WithResourceDescription("当前计划完整结构（YAML）"),
		mcp.WithMIMEType("application/yaml"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := sm.Service.GetPlan(ctx, "")
		if err != nil {
			return nil, err
		}
		raw, err := yaml.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode plan: %w", err)
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/yaml",
			Text:     string(raw),
		}}, nil
	})

	s.AddResource(mcp.NewResource(ResourceCurrentReport, "Current story report",
		mcp.WithResourceDescription("当前 Story 的进度报告"),
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text, err := sm.Service.Report(ctx, "story")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/plain",
			Text:     text,
		}}, nil
	})
}
