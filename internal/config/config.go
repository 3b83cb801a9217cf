// Package config 加载运行配置：默认值 → 全局文件 → 项目文件 → PLAN_MANAGER_* 环境变量
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "PLAN_MANAGER"

// Config 运行配置
type Config struct {
	ProjectRoot string          `mapstructure:"project_root"`
	TodoDir     string          `mapstructure:"todo_dir"`
	DataDir     string          `mapstructure:"data_dir"`
	Log         LogConfig       `mapstructure:"log"`
	Mirror      MirrorConfig    `mapstructure:"mirror"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Browser     BrowserConfig   `mapstructure:"browser"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
	File   bool   `mapstructure:"file"`
}

// MirrorConfig markdown 镜像
type MirrorConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TelemetryConfig prometheus 指标
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// BrowserConfig 只读 HTTP 浏览器
type BrowserConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogFilePath 文件日志路径
func (c *Config) LogFilePath() string {
	return filepath.Join(c.DataDir, "logs", "plan_manager.log")
}

// StepTemplatesHint 自定义步骤模板的推荐位置
func (c *Config) StepTemplatesHint() string {
	return filepath.Join(c.ProjectRoot, ".mcp-config", "step_templates.yaml")
}

// GlobalConfigPath ~/.plan-manager/config.yaml
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".plan-manager", "config.yaml")
}

// ProjectConfigPath <project>/.mcp-config/plan-manager.yaml
func ProjectConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".mcp-config", "plan-manager.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("todo_dir", "todo")
	v.SetDefault("data_dir", ".mcp-data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", false)
	v.SetDefault("mirror.enabled", true)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.addr", "127.0.0.1:8765")
}

// Load 加载配置。projectRoot 为空时自动探测（环境变量 → 工作目录）。
// 相对路径的 todo_dir / data_dir 以项目根为基准。
func Load(projectRoot string) (*Config, error) {
	if strings.TrimSpace(projectRoot) == "" {
		projectRoot = DetectProjectRoot()
	}
	if projectRoot == "" {
		return nil, fmt.Errorf("cannot detect project root; set %s_PROJECT_ROOT", EnvPrefix)
	}
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	for _, path := range []string{GlobalConfigPath(), ProjectConfigPath(absRoot)} {
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ProjectRoot = absRoot
	cfg.TodoDir = resolveDir(absRoot, cfg.TodoDir)
	cfg.DataDir = resolveDir(absRoot, cfg.DataDir)

	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return nil, fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return &cfg, nil
}

// mergeFile 文件不存在时跳过
func mergeFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func resolveDir(root, dir string) string {
	if strings.HasPrefix(dir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[1:])
		}
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(root, dir)
}
