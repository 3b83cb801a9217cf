// Package metrics 工具调用与状态流转的 prometheus 指标。
// *Metrics 为 nil 时所有记录方法都是空操作，关闭 telemetry 时无需判断。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
	ToolErrors   *prometheus.CounterVec

	Transitions   *prometheus.CounterVec
	ReworkTotal   prometheus.Counter
	MirrorErrors  *prometheus.CounterVec
	ActivityDrops prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics 注册全部指标
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	m := &Metrics{
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_manager_tool_calls_total",
				Help: "Total number of tool calls",
			},
			[]string{"tool", "success"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plan_manager_tool_duration_seconds",
				Help:    "Tool call duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"tool"},
		),
		ToolErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_manager_tool_errors_total",
				Help: "Tool errors by error kind",
			},
			[]string{"tool", "kind"},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_manager_task_transitions_total",
				Help: "Task status transitions",
			},
			[]string{"from", "to"},
		),
		ReworkTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "plan_manager_rework_total",
			Help: "Number of request_changes round trips",
		}),
		MirrorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_manager_mirror_errors_total",
				Help: "Best-effort mirror write failures",
			},
			[]string{"op"},
		),
		ActivityDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "plan_manager_activity_dropped_total",
			Help: "Activity events that could not be persisted",
		}),
	}
	if g, ok := registry.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// NewRegistry 独立 registry（服务进程与测试使用）
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// Handler /metrics 处理器；nil 或无 gatherer 时返回 404
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveTool 记录一次工具调用；errKind 为空表示成功
func (m *Metrics) ObserveTool(tool string, started time.Time, errKind string) {
	if m == nil {
		return
	}
	success := "true"
	if errKind != "" {
		success = "false"
		m.ToolErrors.WithLabelValues(tool, errKind).Inc()
	}
	m.ToolCalls.WithLabelValues(tool, success).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(time.Since(started).Seconds())
}

// RecordTransition 任务状态流转
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// RecordRework request_changes
func (m *Metrics) RecordRework() {
	if m == nil {
		return
	}
	m.ReworkTotal.Inc()
}

// RecordMirrorError 镜像写入失败
func (m *Metrics) RecordMirrorError(op string) {
	if m == nil {
		return
	}
	m.MirrorErrors.WithLabelValues(op).Inc()
}

// RecordActivityDrop 活动日志写入失败
func (m *Metrics) RecordActivityDrop() {
	if m == nil {
		return
	}
	m.ActivityDrops.Inc()
}
