package web

import (
	"net/http"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"plan-manager-go/internal/core"
	"plan-manager-go/internal/store"
	"plan-manager-go/pkg/utils"
)

const listingTemplate = `<html>
<head>
<title>Browse: /{{.Path}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #1e1e1e; color: #d4d4d4; padding: 2rem; }
.container { background: #252526; border: 1px solid #333; border-radius: 8px; padding: 2rem; }
ul { list-style-type: none; padding: 0; }
li { margin: 0.5rem 0; }
a { text-decoration: none; color: #3794ff; }
</style>
</head>
<body>
<div class="container">
<h2>Directory: /{{.Path}}</h2>
<ul>
{{if .Parent}}<li><a href="{{.Parent}}">.. (Parent Directory)</a></li>{{end}}
{{range .Entries}}<li><a href="{{.Link}}">{{.Name}}</a></li>
{{end}}</ul>
</div>
</body>
</html>`

type listingEntry struct {
	Name  string
	Link  string
	isDir bool
}

// handleBrowse 目录列表或文件内容；路径必须落在 todo 目录内
func (s *Server) handleBrowse(c *gin.Context) {
	rel := strings.Trim(c.Param("path"), "/")

	if err := os.MkdirAll(s.todoDir, 0755); err != nil {
		c.String(http.StatusInternalServerError, "Server Error")
		return
	}
	target, ok := utils.ConfinedPath(s.todoDir, rel)
	if !ok {
		c.String(http.StatusForbidden, "Forbidden")
		return
	}
	info, err := os.Stat(target)
	if err != nil {
		c.String(http.StatusNotFound, "Not Found")
		return
	}
	if !info.IsDir() {
		c.File(target)
		return
	}

	dirEntries, err := os.ReadDir(target)
	if err != nil {
		c.String(http.StatusInternalServerError, "Server Error")
		return
	}
	entries := make([]listingEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		entries = append(entries, listingEntry{
			Name:  name,
			Link:  "/browse/" + path.Join(rel, e.Name()),
			isDir: e.IsDir(),
		})
	}
	// 目录在前，名称不区分大小写
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].isDir != entries[j].isDir {
			return entries[i].isDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	parent := ""
	if rel != "" {
		parent = "/browse/"
		if p := path.Dir(rel); p != "." {
			parent += p
		}
	}
	c.HTML(http.StatusOK, "listing", gin.H{
		"Path":    rel,
		"Parent":  parent,
		"Entries": entries,
	})
}

func (s *Server) handleListPlans(c *gin.Context) {
	statuses, err := core.ParseStatuses(c.QueryArray("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	plans, err := s.svc.ListPlans(c.Request.Context(), statuses)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (s *Server) handleGetPlan(c *gin.Context) {
	id := c.Param("id")
	if id == "current" {
		id = ""
	}
	p, err := s.svc.GetPlan(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleContext(c *gin.Context) {
	cur, err := s.svc.GetCurrentContext(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cur)
}

func (s *Server) handleReport(c *gin.Context) {
	text, err := s.svc.Report(c.Request.Context(), c.DefaultQuery("scope", "story"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, text)
}

func (s *Server) handleActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	events, err := s.svc.ListActivity(c.Request.Context(), c.Query("plan_id"), store.ListOptions{
		Limit:   limit,
		Types:   c.QueryArray("type"),
		StoryID: c.Query("story_id"),
		TaskID:  c.Query("task_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// writeError 领域错误映射为 HTTP 状态码
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindSchemaViolation, core.KindDependency:
		status = http.StatusBadRequest
	case core.KindInvalidState, core.KindBlocked:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": core.KindOf(err)})
}
