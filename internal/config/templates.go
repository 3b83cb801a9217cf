package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"plan-manager-go/internal/core"
)

// StepTemplate create_task_steps 可引用的步骤模板
type StepTemplate struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Steps       []core.Step `json:"steps" yaml:"steps"`
}

type stepTemplateFile struct {
	Templates []StepTemplate `json:"templates" yaml:"templates"`
}

func normalizeTemplateName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// BuiltInStepTemplates 内置模板
func BuiltInStepTemplates() []StepTemplate {
	return []StepTemplate{
		{
			Name:        "develop",
			Description: "功能开发（定位→影响→实现→验证）",
			Steps: []core.Step{
				{Title: "Confirm scope against the acceptance criteria"},
				{Title: "Locate the entry points and affected code"},
				{Title: "Assess impact on callers and dependents"},
				{Title: "Implement the change in small steps"},
				{Title: "Add or update tests and run the suite"},
			},
		},
		{
			Name:        "debug",
			Description: "问题排查（复现→定位→修复→回归）",
			Steps: []core.Step{
				{Title: "Reproduce the failure and collect evidence"},
				{Title: "Narrow down the faulty code path"},
				{Title: "Fix the root cause"},
				{Title: "Add a regression test"},
				{Title: "Run the related and full test suites"},
			},
		},
		{
			Name:        "refactor",
			Description: "重构（基线→安全网→小步替换→验证）",
			Steps: []core.Step{
				{Title: "Record the current behaviour as a baseline"},
				{Title: "Add a safety net of tests"},
				{Title: "Refactor in reversible steps"},
				{Title: "Verify behaviour is unchanged"},
			},
		},
	}
}

func stepTemplateFileCandidates(projectRoot string) []string {
	if strings.TrimSpace(projectRoot) == "" {
		return nil
	}
	base := filepath.Join(projectRoot, ".mcp-config")
	return []string{
		filepath.Join(base, "step_templates.yaml"),
		filepath.Join(base, "step_templates.yml"),
		filepath.Join(base, "step_templates.json"),
	}
}

func resolveStepTemplateFile(projectRoot string) (string, bool) {
	for _, p := range stepTemplateFileCandidates(projectRoot) {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// parseStepTemplates 支持 {templates: [...]} 与顶层列表两种写法（JSON 是 YAML 子集）
func parseStepTemplates(data []byte) ([]StepTemplate, error) {
	var wrapper stepTemplateFile
	if err := yaml.Unmarshal(data, &wrapper); err == nil && len(wrapper.Templates) > 0 {
		return wrapper.Templates, nil
	}

	var list []StepTemplate
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("template file is empty")
	}
	return list, nil
}

func validateStepTemplates(templates []StepTemplate) error {
	for i, t := range templates {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("template[%d].name cannot be empty", i)
		}
		if len(t.Steps) == 0 {
			return fmt.Errorf("template[%s].steps cannot be empty", t.Name)
		}
		for j, s := range t.Steps {
			if strings.TrimSpace(s.Title) == "" {
				return fmt.Errorf("template[%s].steps[%d].title cannot be empty", t.Name, j)
			}
		}
	}
	return nil
}

// LoadStepTemplates 内置模板 + 项目覆盖（按名称合并）。每次调用都重新读盘，编辑后立即生效。
// 自定义文件有误时仍返回内置模板，同时返回错误供调用方提示。
func LoadStepTemplates(projectRoot string) ([]StepTemplate, error) {
	builtins := BuiltInStepTemplates()
	filePath, ok := resolveStepTemplateFile(projectRoot)
	if !ok {
		return builtins, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return builtins, fmt.Errorf("%s: %w", filePath, err)
	}
	custom, err := parseStepTemplates(data)
	if err == nil {
		err = validateStepTemplates(custom)
	}
	if err != nil {
		return builtins, fmt.Errorf("%s: %w", filePath, err)
	}

	merged := make(map[string]StepTemplate, len(builtins)+len(custom))
	for _, t := range builtins {
		merged[normalizeTemplateName(t.Name)] = t
	}
	for _, t := range custom {
		merged[normalizeTemplateName(t.Name)] = t
	}
	out := make([]StepTemplate, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return normalizeTemplateName(out[i].Name) < normalizeTemplateName(out[j].Name)
	})
	return out, nil
}

// FindStepTemplate 名称大小写不敏感
func FindStepTemplate(templates []StepTemplate, name string) (StepTemplate, bool) {
	needle := normalizeTemplateName(name)
	for _, t := range templates {
		if normalizeTemplateName(t.Name) == needle {
			return t, true
		}
	}
	return StepTemplate{}, false
}
