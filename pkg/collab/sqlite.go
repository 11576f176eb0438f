package collab

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	coreerrors "github.com/easyops/agentcontext-go/pkg/core/errors"
	"github.com/easyops/agentcontext-go/pkg/relevance"
)

// SQLiteMemory 是 SQLite 持久化的历史记录实现。
//
// 适用于跨进程共享采用历史和协作决策的生产环境。
type SQLiteMemory struct {
	db *sql.DB
}

// NewSQLiteMemory 创建 SQLite 历史记录
func NewSQLiteMemory(dbPath string) (*SQLiteMemory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrMemoryUnavailable, err)
	}

	m := &SQLiteMemory{db: db}
	if err := m.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return m, nil
}

// initSchema 初始化表结构
func (m *SQLiteMemory) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS inclusions (
		role TEXT NOT NULL,
		story_id TEXT NOT NULL,
		path TEXT NOT NULL,
		included_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_inclusions_scope ON inclusions(role, story_id);

	CREATE TABLE IF NOT EXISTS decisions (
		role TEXT NOT NULL,
		story_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		decided_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_story ON decisions(story_id, decided_at);
	`

	_, err := m.db.Exec(query)
	return err
}

// Inclusions 返回角色在某工作项上过去采用过的内容单元。
func (m *SQLiteMemory) Inclusions(ctx context.Context, role, storyID string) ([]relevance.InclusionRecord, error) {
	query := `SELECT path, included_at FROM inclusions WHERE role = ? AND story_id = ? ORDER BY included_at DESC`

	rows, err := m.db.QueryContext(ctx, query, role, storyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrMemoryUnavailable, err)
	}
	defer rows.Close()

	var records []relevance.InclusionRecord
	for rows.Next() {
		var record relevance.InclusionRecord
		var includedAt int64
		if err := rows.Scan(&record.Path, &includedAt); err != nil {
			return nil, err
		}
		record.IncludedAt = time.UnixMilli(includedAt)
		records = append(records, record)
	}
	return records, rows.Err()
}

// RecordInclusion 登记一条采用记录。
func (m *SQLiteMemory) RecordInclusion(ctx context.Context, role, storyID, path string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}

	query := `INSERT INTO inclusions (role, story_id, path, included_at) VALUES (?, ?, ?, ?)`
	_, err := m.db.ExecContext(ctx, query, role, storyID, path, at.UnixMilli())
	return err
}

// RecentDecisions 返回工作项下最近的协作决策，按时间倒序。
func (m *SQLiteMemory) RecentDecisions(ctx context.Context, storyID string, limit int) ([]Decision, error) {
	query := `SELECT role, story_id, summary, decided_at FROM decisions WHERE story_id = ? ORDER BY decided_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrMemoryUnavailable, err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		var d Decision
		var decidedAt int64
		if err := rows.Scan(&d.Role, &d.StoryID, &d.Summary, &decidedAt); err != nil {
			return nil, err
		}
		d.DecidedAt = time.UnixMilli(decidedAt)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// RecordDecision 登记一条协作决策。
func (m *SQLiteMemory) RecordDecision(ctx context.Context, decision Decision) error {
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now()
	}

	query := `INSERT INTO decisions (role, story_id, summary, decided_at) VALUES (?, ?, ?, ?)`
	_, err := m.db.ExecContext(ctx, query,
		decision.Role, decision.StoryID, decision.Summary, decision.DecidedAt.UnixMilli())
	return err
}

// Close 关闭数据库连接。
func (m *SQLiteMemory) Close() error {
	return m.db.Close()
}

// 编译时接口检查
var _ Memory = (*SQLiteMemory)(nil)
