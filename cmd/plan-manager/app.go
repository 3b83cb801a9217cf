package main

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"plan-manager-go/internal/config"
	"plan-manager-go/internal/logging"
	"plan-manager-go/internal/metrics"
	"plan-manager-go/internal/mirror"
	"plan-manager-go/internal/services"
	"plan-manager-go/internal/store"
)

// app 一次进程内共享的依赖
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *store.Repository
	db       *store.DatabaseManager
	metrics  *metrics.Metrics
	svc      *services.Service
	closeLog func() error
}

// bootstrap 配置 → 日志 → 存储 → 指标 → Service。
// 活动日志打不开时降级为不记录，不阻止启动。
func bootstrap(projectRoot string) (*app, error) {
	cfg, err := config.Load(projectRoot)
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if cfg.Log.File {
		logOpts.File = cfg.LogFilePath()
	}
	logger, closeLog, err := logging.Setup(logOpts)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	// gin 的调试输出默认写 stdout
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = logWriter{}
	gin.DefaultErrorWriter = logWriter{}

	a := &app{cfg: cfg, logger: logger, closeLog: closeLog}
	if cfg.Telemetry.Enabled {
		_, a.metrics = metrics.NewRegistry()
	}

	a.repo = store.NewRepository(cfg.TodoDir)

	var activity *store.ActivityLog
	db, err := store.GetDBForDataDir(cfg.DataDir)
	if err != nil {
		logger.Warn("activity log disabled", "data_dir", cfg.DataDir, "error", err)
	} else {
		a.db = db
		activity = store.NewActivityLog(db)
	}

	var m mirror.Mirror = mirror.NopMirror{}
	if cfg.Mirror.Enabled {
		m = mirror.NewFileMirror(cfg.TodoDir, func(op string, err error) {
			a.metrics.RecordMirrorError(op)
		})
	}

	a.svc = services.New(services.Options{
		Repository:  a.repo,
		State:       store.NewStateStore(cfg.TodoDir),
		Activity:    activity,
		Mirror:      m,
		Metrics:     a.metrics,
		ProjectRoot: cfg.ProjectRoot,
	})

	logger.Info("plan manager ready",
		"project_root", cfg.ProjectRoot,
		"todo_dir", cfg.TodoDir,
		"mirror", cfg.Mirror.Enabled,
		"telemetry", cfg.Telemetry.Enabled,
	)
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

// logWriter 把 gin 的原始输出转到 slog
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	slog.Debug(string(trimNewline(p)), "source", "gin")
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	for len(p) > 0 && (p[len(p)-1] == '\n' || p[len(p)-1] == '\r') {
		p = p[:len(p)-1]
	}
	return p
}
