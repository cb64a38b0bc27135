package conversation

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"OpenAgent-Hub/deploy/migrations"
	errs "OpenAgent-Hub/internal/errors"
)

// MySQLRepository 将会话历史写入 chat_messages 表。
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository 创建 MySQL 会话仓库并确保表结构存在。
func NewMySQLRepository(dsn string) (*MySQLRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errs.Wrap(errs.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	// 表结构由 deploy/migrations 下的 SQL 文件统一管理。
	if err := migrations.Apply(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.CodeStorageFailure, err, "执行数据库迁移失败")
	}
	return &MySQLRepository{db: db}, nil
}

// Append 在一个事务内追加消息，保证同一轮的消息要么全部写入要么都不写。
func (r *MySQLRepository) Append(ctx context.Context, userID, sessionID string, messages ...Message) error {
	if _, err := makeKey(userID, sessionID); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.CodeStorageFailure, err, "开启事务失败")
	}

	const stmt = `INSERT INTO chat_messages (user_id, session_id, role, agent_id, content, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`
	for _, msg := range messages {
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, stmt,
			strings.TrimSpace(userID),
			strings.TrimSpace(sessionID),
			msg.Role,
			msg.AgentID,
			msg.Content,
			createdAt.UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return errs.Wrap(errs.CodeStorageFailure, err, "写入会话消息失败")
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.CodeStorageFailure, err, "提交会话消息失败")
	}
	return nil
}

// History 返回最近 limit 条消息，按时间升序。
func (r *MySQLRepository) History(ctx context.Context, userID, sessionID string, limit int) ([]Message, error) {
	if _, err := makeKey(userID, sessionID); err != nil {
		return nil, err
	}

	query := `SELECT role, agent_id, content, created_at FROM chat_messages
        WHERE user_id = ? AND session_id = ? ORDER BY id DESC`
	args := []any{strings.TrimSpace(userID), strings.TrimSpace(sessionID)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStorageFailure, err, "查询会话历史失败")
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var msg Message
		var createdAt int64
		if err := rows.Scan(&msg.Role, &msg.AgentID, &msg.Content, &createdAt); err != nil {
			return nil, errs.Wrap(errs.CodeStorageFailure, err, "解析会话消息失败")
		}
		msg.CreatedAt = time.UnixMilli(createdAt)
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeStorageFailure, err, "遍历会话历史失败")
	}

	// 查询按 id 倒序取最近的消息，返回前翻转为时间升序。
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// Clear 删除指定会话的全部消息。
func (r *MySQLRepository) Clear(ctx context.Context, userID, sessionID string) error {
	if _, err := makeKey(userID, sessionID); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE user_id = ? AND session_id = ?`,
		strings.TrimSpace(userID), strings.TrimSpace(sessionID)); err != nil {
		return errs.Wrap(errs.CodeStorageFailure, err, "清理会话历史失败")
	}
	return nil
}

// Close 释放数据库连接。
func (r *MySQLRepository) Close() error {
	return r.db.Close()
}

var _ Repository = (*MySQLRepository)(nil)
