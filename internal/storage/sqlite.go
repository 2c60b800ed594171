package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jitinkakkar/dorthy-ai/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Storage on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema exists.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps writers serialized and the pragmas below in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger.With(zap.String("component", "storage"))}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("SQLite storage initialized", zap.String("path", path))
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS thread_items (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			thread_id TEXT NOT NULL,
			role TEXT NOT NULL,
			stage TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (thread_id) REFERENCES threads(id)
		);

		CREATE INDEX IF NOT EXISTS idx_thread_items_thread_seq
			ON thread_items(thread_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) LoadThread(ctx context.Context, threadID string) (*models.ThreadMetadata, error) {
	var (
		thread               models.ThreadMetadata
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM threads WHERE id = ?`, threadID,
	).Scan(&thread.ID, &thread.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}

	if thread.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if thread.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &thread, nil
}

func (s *SQLiteStore) SaveThread(ctx context.Context, thread *models.ThreadMetadata) error {
	now := time.Now().UTC()
	createdAt := thread.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO threads (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		thread.ID,
		thread.Title,
		createdAt.UTC().Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving thread: %w", err)
	}

	stored, err := s.LoadThread(ctx, thread.ID)
	if err != nil {
		return err
	}
	thread.CreatedAt = stored.CreatedAt
	thread.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *SQLiteStore) AddThreadItem(ctx context.Context, threadID string, item *models.ThreadItem) error {
	content, err := json.Marshal(item.Content)
	if err != nil {
		return fmt.Errorf("encoding item content: %w", err)
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	createdAt := item.CreatedAt.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE threads SET updated_at = ? WHERE id = ?`, createdAt, threadID)
	if err != nil {
		return fmt.Errorf("touching thread: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	result, err = tx.ExecContext(ctx, `
		INSERT INTO thread_items (id, thread_id, role, stage, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.ID, threadID, string(item.Role), item.Stage, string(content), createdAt)
	if err != nil {
		return fmt.Errorf("inserting thread item: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading item sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing thread item: %w", err)
	}

	item.ThreadID = threadID
	item.Seq = seq
	s.logger.Debug("saved thread item",
		zap.String("thread_id", threadID),
		zap.String("item_id", item.ID),
		zap.Int64("seq", seq))
	return nil
}

func (s *SQLiteStore) LoadThreadItems(ctx context.Context, threadID, after string, limit int, order models.Order) (*models.Page, error) {
	limit = normalizeLimit(limit)
	order = normalizeOrder(order)

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM threads WHERE id = ?`, threadID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking thread: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	var cursor int64
	if order == models.OrderDesc {
		cursor = math.MaxInt64
	}
	if after != "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT seq FROM thread_items WHERE thread_id = ? AND id = ?`, threadID, after,
		).Scan(&cursor)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("resolving cursor: %w", err)
		}
	}

	query := `
		SELECT seq, id, thread_id, role, stage, content, created_at
		FROM thread_items
		WHERE thread_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`
	if order == models.OrderDesc {
		query = `
		SELECT seq, id, thread_id, role, stage, content, created_at
		FROM thread_items
		WHERE thread_id = ? AND seq < ?
		ORDER BY seq DESC
		LIMIT ?
	`
	}

	rows, err := s.db.QueryContext(ctx, query, threadID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("querying thread items: %w", err)
	}
	defer rows.Close()

	var items []models.ThreadItem
	for rows.Next() {
		var (
			item              models.ThreadItem
			role, content, ts string
		)
		if err := rows.Scan(&item.Seq, &item.ID, &item.ThreadID, &role, &item.Stage, &content, &ts); err != nil {
			return nil, fmt.Errorf("scanning thread item: %w", err)
		}
		item.Role = models.Role(role)
		if err := json.Unmarshal([]byte(content), &item.Content); err != nil {
			return nil, fmt.Errorf("decoding thread item %s: %w", item.ID, err)
		}
		if item.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing item timestamp: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread items: %w", err)
	}

	return buildPage(items, limit), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
