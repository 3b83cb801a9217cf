package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"plan-manager-go/internal/core"
)

// 活动事件类型
const (
	EventPlanCreated       = "plan_created"
	EventStoryCreated      = "story_created"
	EventTaskCreated       = "task_created"
	EventTaskStatusChanged = "task_status_changed"
	EventStepsAttached     = "steps_attached"
	EventReviewSubmitted   = "review_submitted"
	EventChangesRequested  = "changes_requested"
	EventItemDeleted       = "item_deleted"
)

// EventScope 事件作用范围
type EventScope struct {
	StoryID string `json:"story_id,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
}

// Event 单条活动事件（只追加）
type Event struct {
	ID        string                 `json:"id"`
	PlanID    string                 `json:"plan_id"`
	Timestamp time.Time              `json:"ts"`
	Type      string                 `json:"type"`
	Scope     EventScope             `json:"scope"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// ListOptions 查询条件
type ListOptions struct {
	Limit   int
	Types   []string
	StoryID string
	TaskID  string
}

// ActivityLog 基于 sqlite 的活动日志
type ActivityLog struct {
	db *DatabaseManager
}

// NewActivityLog 创建活动日志
func NewActivityLog(db *DatabaseManager) *ActivityLog {
	return &ActivityLog{db: db}
}

// Append 追加事件；ID 与时间戳缺省时自动生成
func (a *ActivityLog) Append(ctx context.Context, e Event) (Event, error) {
	if e.PlanID == "" || e.Type == "" {
		return e, fmt.Errorf("activity event requires plan_id and type")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = core.Now()
	}

	scopeJSON, err := json.Marshal(e.Scope)
	if err != nil {
		return e, fmt.Errorf("encode scope: %w", err)
	}
	var dataJSON []byte
	if len(e.Data) > 0 {
		if dataJSON, err = json.Marshal(e.Data); err != nil {
			return e, fmt.Errorf("encode data: %w", err)
		}
	}

	_, err = a.db.DB().ExecContext(ctx,
		`INSERT INTO activity_events (id, plan_id, ts, type, scope_json, data_json, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PlanID, e.Timestamp.UTC().Format(core.TimeLayout), e.Type,
		string(scopeJSON), nullString(dataJSON), time.Now().UnixNano())
	if err != nil {
		return e, fmt.Errorf("insert activity event: %w", err)
	}
	return e, nil
}

// List 最新的在前
func (a *ActivityLog) List(ctx context.Context, planID string, opts ListOptions) ([]Event, error) {
	var (
		where = []string{"plan_id = ?"}
		args  = []interface{}{planID}
	)
	if len(opts.Types) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(opts.Types)), ",")
		where = append(where, "type IN ("+ph+")")
		for _, t := range opts.Types {
			args = append(args, t)
		}
	}
	if opts.StoryID != "" {
		where = append(where, "json_extract(scope_json, '$.story_id') = ?")
		args = append(args, opts.StoryID)
	}
	if opts.TaskID != "" {
		where = append(where, "json_extract(scope_json, '$.task_id') = ?")
		args = append(args, opts.TaskID)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := `SELECT id, plan_id, ts, type, scope_json, data_json FROM activity_events
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ts DESC, seq DESC LIMIT ?`

	rows, err := a.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e         Event
			ts        string
			scopeJSON sql.NullString
			dataJSON  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.PlanID, &ts, &e.Type, &scopeJSON, &dataJSON); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if parsed, err := time.Parse(core.TimeLayout, ts); err == nil {
			e.Timestamp = parsed
		}
		if scopeJSON.Valid && scopeJSON.String != "" {
			_ = json.Unmarshal([]byte(scopeJSON.String), &e.Scope)
		}
		if dataJSON.Valid && dataJSON.String != "" {
			_ = json.Unmarshal([]byte(dataJSON.String), &e.Data)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeletePlan 删除计划的全部事件
func (a *ActivityLog) DeletePlan(ctx context.Context, planID string) error {
	_, err := a.db.DB().ExecContext(ctx, "DELETE FROM activity_events WHERE plan_id = ?", planID)
	if err != nil {
		return fmt.Errorf("delete activity for plan %s: %w", planID, err)
	}
	return nil
}

func nullString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
