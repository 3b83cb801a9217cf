package utils

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// URIToPath 将 file:/// URI（MCP roots、IDE 环境变量）转换为本地绝对路径，普通路径原样转绝对
func URIToPath(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return ""
	}
	path := uri
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return uri
		}
		path = u.Path
		// Windows: /C:/foo -> C:/foo
		if os.PathSeparator == '\\' && len(path) > 2 && path[0] == '/' && path[2] == ':' {
			path = path[1:]
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// ConfinedPath 将相对路径拼接到 root 下，拒绝逃逸出 root 的路径（../、绝对路径、符号链接外跳）
func ConfinedPath(root, rel string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	rel = strings.TrimPrefix(filepath.FromSlash(rel), string(filepath.Separator))
	joined := filepath.Join(absRoot, rel)
	if !within(absRoot, joined) {
		return "", false
	}

	// 已存在的路径再按真实路径检查一次
	if resolved, err := filepath.EvalSymlinks(joined); err == nil {
		realRoot, rerr := filepath.EvalSymlinks(absRoot)
		if rerr != nil || !within(realRoot, resolved) {
			return "", false
		}
	}
	return joined, true
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
