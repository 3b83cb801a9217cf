package config

import (
	"os"
	"path/filepath"
	"strings"

	"plan-manager-go/pkg/utils"
)

// DetectProjectRoot 探测项目根路径
func DetectProjectRoot() string {
	// 1. 优先信任显式提供的环境变量（IDE 可能传 file:// URI）
	envKeys := []string{EnvPrefix + "_PROJECT_ROOT", "WORKSPACE_FOLDER", "INIT_CWD"}
	for _, k := range envKeys {
		val := strings.TrimSpace(os.Getenv(k))
		if val == "" {
			continue
		}
		abs := utils.URIToPath(val)
		if ValidateProjectPath(abs) {
			return abs
		}
	}

	// 2. 其次使用当前工作目录
	cwd, err := os.Getwd()
	if err == nil {
		abs, err := filepath.Abs(cwd)
		if err == nil && ValidateProjectPath(abs) {
			return abs
		}
	}
	return ""
}

// ValidateProjectPath 路径必须是已存在的目录，且不能是文件系统根或系统目录
func ValidateProjectPath(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return false
	}

	// 拒绝盘符根 / 文件系统根
	if abs == filepath.VolumeName(abs)+string(filepath.Separator) {
		return false
	}

	pLow := strings.ToLower(filepath.ToSlash(abs))
	systemTraps := []string{"c:/windows", "c:/program files", "c:/programdata", "/proc/", "/sys/"}
	for _, trap := range systemTraps {
		if strings.HasPrefix(pLow+"/", trap) {
			return false
		}
	}
	return true
}
