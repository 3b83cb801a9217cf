package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DatabaseFile 活动日志数据库文件名（位于 data_dir 下）
const DatabaseFile = "plan_manager.db"

// DatabaseManager 数据库连接管理器
type DatabaseManager struct {
	dbPath string
	db     *sql.DB
}

var (
	instances = make(map[string]*DatabaseManager)
	instLock  sync.Mutex
)

// GetDBForDataDir 获取 data_dir 对应的数据库管理器（进程内单例）
func GetDBForDataDir(dataDir string) (*DatabaseManager, error) {
	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, err
	}

	instLock.Lock()
	defer instLock.Unlock()

	if mgr, ok := instances[absDir]; ok {
		return mgr, nil
	}

	mgr, err := NewDatabaseManager(filepath.Join(absDir, DatabaseFile))
	if err != nil {
		return nil, err
	}
	instances[absDir] = mgr
	return mgr, nil
}

// NewDatabaseManager 创建独立实例（测试与 CLI 一次性命令使用）
func NewDatabaseManager(dbPath string) (*DatabaseManager, error) {
	mgr := &DatabaseManager{
		dbPath: dbPath,
	}
	if err := mgr.init(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *DatabaseManager) init() error {
	dir := filepath.Dir(m.dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", m.dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", m.dbPath, err)
	}

	// WAL 模式，允许浏览器/CLI 与 MCP 服务同时读
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	m.db = db

	if err := m.healSchema(); err != nil {
		slog.Warn("activity schema healing failed", "db", m.dbPath, "error", err)
	}
	return nil
}

func (m *DatabaseManager) healSchema() error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS activity_events (
			id TEXT PRIMARY KEY,
			plan_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			type TEXT NOT NULL,
			scope_json TEXT,
			data_json TEXT,
			seq INTEGER
		)`,
	}
	for _, s := range schemas {
		if _, err := m.db.Exec(s); err != nil {
			return err
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_activity_plan_ts ON activity_events(plan_id, ts DESC)",
		"CREATE INDEX IF NOT EXISTS idx_activity_type ON activity_events(type)",
	}
	for _, idx := range indexes {
		if _, err := m.db.Exec(idx); err != nil {
			return err
		}
	}

	// 旧库补列（列已存在时报错，忽略）
	migrations := []string{
		"ALTER TABLE activity_events ADD COLUMN seq INTEGER",
	}
	for _, mig := range migrations {
		m.db.Exec(mig)
	}
	return nil
}

// DB 底层连接
func (m *DatabaseManager) DB() *sql.DB {
	return m.db
}

// Path 数据库文件路径
func (m *DatabaseManager) Path() string {
	return m.dbPath
}

// Close 关闭连接
func (m *DatabaseManager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// closeAll 测试用：关闭并清空单例
func closeAll() {
	instLock.Lock()
	defer instLock.Unlock()
	for k, mgr := range instances {
		mgr.Close()
		delete(instances, k)
	}
}
