// Package web 只读浏览器：浏览 todo 目录、查询计划 JSON、暴露 /metrics。
package web

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"plan-manager-go/internal/metrics"
	"plan-manager-go/internal/services"
)

// Server 浏览器 HTTP 服务
type Server struct {
	svc     *services.Service
	todoDir string
	metrics *metrics.Metrics
	router  *gin.Engine
	httpSrv *http.Server
}

// NewServer 创建服务并注册路由
func NewServer(svc *services.Service, todoDir string, m *metrics.Metrics) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.SetHTMLTemplate(template.Must(template.New("listing").Parse(listingTemplate)))

	s := &Server{
		svc:     svc,
		todoDir: todoDir,
		metrics: m,
		router:  router,
	}

	router.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/browse/") })
	router.GET("/browse/*path", s.handleBrowse)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group("/api")
	{
		api.GET("/plans", s.handleListPlans)
		api.GET("/plans/:id", s.handleGetPlan)
		api.GET("/context", s.handleContext)
		api.GET("/report", s.handleReport)
		api.GET("/activity", s.handleActivity)
	}
	return s
}

// Handler 供测试与嵌入使用
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 阻塞直到 ctx 取消
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("browser listening", "addr", addr, "todo_dir", s.todoDir)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// requestLogger gin 默认 logger 写 stdout，这里改走 slog（stdout 留给 stdio 传输）
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(started).Milliseconds(),
		)
	}
}
