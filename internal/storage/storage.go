package storage

import (
	"context"
	"errors"

	"github.com/jitinkakkar/dorthy-ai/internal/models"
)

// ErrNotFound is returned when a thread or cursor item does not exist.
var ErrNotFound = errors.New("not found")

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Storage persists thread metadata and the append-only item log of each thread.
type Storage interface {
	LoadThread(ctx context.Context, threadID string) (*models.ThreadMetadata, error)
	SaveThread(ctx context.Context, thread *models.ThreadMetadata) error
	Close() error

	ItemStorage
}

// ItemStorage is the item log half of Storage.
type ItemStorage interface {
	// LoadThreadItems returns up to limit items ordered by insertion sequence,
	// starting strictly after the item identified by after (if any).
	LoadThreadItems(ctx context.Context, threadID, after string, limit int, order models.Order) (*models.Page, error)
	// AddThreadItem appends item to the end of the thread's log. It assigns
	// ID, ThreadID, Seq and CreatedAt when they are unset.
	AddThreadItem(ctx context.Context, threadID string, item *models.ThreadItem) error
}

// DatabaseConfig selects and configures a Storage backend.
type DatabaseConfig struct {
	// Driver is one of memory, postgres or sqlite.
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func normalizeOrder(order models.Order) models.Order {
	if order == models.OrderDesc {
		return models.OrderDesc
	}
	return models.OrderAsc
}

// buildPage trims a limit+1 result set down to a page.
func buildPage(items []models.ThreadItem, limit int) *models.Page {
	page := &models.Page{Data: items}
	if len(items) > limit {
		page.Data = items[:limit]
		page.HasMore = true
	}
	if page.Data == nil {
		page.Data = []models.ThreadItem{}
	}
	if n := len(page.Data); n > 0 {
		page.After = page.Data[n-1].ID
	}
	return page
}
