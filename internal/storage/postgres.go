package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jitinkakkar/dorthy-ai/internal/models"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger.With(zap.String("component", "storage"))}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	storage.logger.Info("PostgreSQL storage initialized",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))
	return storage, nil
}

// ParseDatabaseURL turns a postgres:// URL into a DatabaseConfig.
func ParseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		// Remove leading slash from path to get database name
		DBName:  strings.TrimPrefix(u.Path, "/"),
		SSLMode: sslMode,
	}, nil
}

func (s *PostgresStorage) initializeSchema() error {
	// Read migrations file
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	// Execute migrations
	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) LoadThread(ctx context.Context, threadID string) (*models.ThreadMetadata, error) {
	query := `
		SELECT id, title, created_at, updated_at
		FROM threads
		WHERE id = $1`

	thread := &models.ThreadMetadata{}
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(
		&thread.ID,
		&thread.Title,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading thread: %w", err)
	}
	return thread, nil
}

func (s *PostgresStorage) SaveThread(ctx context.Context, thread *models.ThreadMetadata) error {
	query := `
		INSERT INTO threads (id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`

	createdAt := thread.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	err := s.db.QueryRowContext(ctx, query, thread.ID, thread.Title, createdAt).Scan(
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving thread: %w", err)
	}
	return nil
}

// AddThreadItem serializes appends per thread with a transaction-scoped
// advisory lock, so concurrent writers in other processes queue up too.
func (s *PostgresStorage) AddThreadItem(ctx context.Context, threadID string, item *models.ThreadItem) error {
	content, err := json.Marshal(item.Content)
	if err != nil {
		return fmt.Errorf("error encoding item content: %w", err)
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, threadID); err != nil {
		return fmt.Errorf("error locking thread: %w", err)
	}

	result, err := tx.ExecContext(ctx, `UPDATE threads SET updated_at = $2 WHERE id = $1`, threadID, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("error touching thread: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	query := `
		INSERT INTO thread_items (id, thread_id, role, stage, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq`

	var seq int64
	err = tx.QueryRowContext(ctx, query,
		item.ID,
		threadID,
		string(item.Role),
		item.Stage,
		string(content),
		item.CreatedAt,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("error inserting thread item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing thread item: %w", err)
	}

	item.ThreadID = threadID
	item.Seq = seq
	return nil
}

func (s *PostgresStorage) LoadThreadItems(ctx context.Context, threadID, after string, limit int, order models.Order) (*models.Page, error) {
	limit = normalizeLimit(limit)
	order = normalizeOrder(order)

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM threads WHERE id = $1)`, threadID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("error checking thread: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	var cursor int64
	if order == models.OrderDesc {
		cursor = math.MaxInt64
	}
	if after != "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT seq FROM thread_items WHERE thread_id = $1 AND id = $2`, threadID, after,
		).Scan(&cursor)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("error resolving cursor: %w", err)
		}
	}

	query := `
		SELECT seq, id, thread_id, role, stage, content, created_at
		FROM thread_items
		WHERE thread_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3`
	if order == models.OrderDesc {
		query = `
		SELECT seq, id, thread_id, role, stage, content, created_at
		FROM thread_items
		WHERE thread_id = $1 AND seq < $2
		ORDER BY seq DESC
		LIMIT $3`
	}

	rows, err := s.db.QueryContext(ctx, query, threadID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("error querying thread items: %w", err)
	}
	defer rows.Close()

	var items []models.ThreadItem
	for rows.Next() {
		var (
			item    models.ThreadItem
			role    string
			content []byte
		)
		err := rows.Scan(
			&item.Seq,
			&item.ID,
			&item.ThreadID,
			&role,
			&item.Stage,
			&content,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning thread item: %w", err)
		}
		item.Role = models.Role(role)
		if err := json.Unmarshal(content, &item.Content); err != nil {
			return nil, fmt.Errorf("error decoding thread item %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread items: %w", err)
	}

	return buildPage(items, limit), nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
