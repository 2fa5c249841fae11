package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"courtflow/internal/domain"
	"courtflow/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteStore is the durable local store: drafts survive process
// restarts the way the original flow survives page reloads, and the
// payment confirm queue survives a crash between a processor-side
// charge and the backend confirmation.
type SQLiteStore struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewSQLiteStore(path string, logger *zerolog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("local store initialized")
	return &SQLiteStore{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS drafts (
            session_id TEXT PRIMARY KEY,
            version INTEGER NOT NULL,
            payload TEXT NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS payment_confirm_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            payment_id TEXT NOT NULL,
            booking_id TEXT NOT NULL,
            session_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_confirm_queue_status ON payment_confirm_queue(status)`,
		`CREATE INDEX IF NOT EXISTS idx_confirm_queue_payment_id ON payment_confirm_queue(payment_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get implements domain.DraftRepository.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*models.Draft, error) {
	var payload string
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT version, payload FROM drafts WHERE session_id = ?`, sessionID,
	).Scan(&version, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	if version != models.DraftVersion {
		return nil, nil
	}

	var draft models.Draft
	if err := json.Unmarshal([]byte(payload), &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &draft, nil
}

// Save implements domain.DraftRepository.
func (s *SQLiteStore) Save(ctx context.Context, draft *models.Draft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (session_id, version, payload, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(session_id) DO UPDATE SET version = excluded.version,
            payload = excluded.payload, updated_at = excluded.updated_at`,
		draft.SessionID, draft.Version, string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Clear implements domain.DraftRepository.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear draft: %w", err)
	}
	return nil
}

// EnqueueConfirmTask implements domain.ConfirmQueue.
func (s *SQLiteStore) EnqueueConfirmTask(ctx context.Context, task *domain.ConfirmTask) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_confirm_queue
            (payment_id, booking_id, session_id, status, retry_count, last_error, created_at, next_retry_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.PaymentID, task.BookingID, task.SessionID,
		task.Status, task.RetryCount, task.LastError, now, task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue confirm task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

// GetPendingConfirmTasks implements domain.ConfirmQueue.
func (s *SQLiteStore) GetPendingConfirmTasks(ctx context.Context, limit int) ([]domain.ConfirmTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payment_id, booking_id, session_id, status, retry_count, last_error,
                created_at, processed_at, next_retry_at
         FROM payment_confirm_queue
         WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
         ORDER BY created_at ASC LIMIT ?`,
		time.Now(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending confirm tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ConfirmTask
	for rows.Next() {
		var t domain.ConfirmTask
		var lastError sql.NullString
		err := rows.Scan(
			&t.ID, &t.PaymentID, &t.BookingID, &t.SessionID, &t.Status,
			&t.RetryCount, &lastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan confirm task: %w", err)
		}
		t.LastError = lastError.String
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateConfirmTaskStatus implements domain.ConfirmQueue.
func (s *SQLiteStore) UpdateConfirmTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now()

	switch status {
	case "retry":
		query = `UPDATE payment_confirm_queue SET status = ?, last_error = ?, next_retry_at = ?,
                 retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	case "completed", "failed":
		query = `UPDATE payment_confirm_queue SET status = ?, last_error = ?, next_retry_at = ?,
                 processed_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, &now, id}
	default:
		query = `UPDATE payment_confirm_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update confirm task: %w", err)
	}
	return nil
}
