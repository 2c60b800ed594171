package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jitinkakkar/dorthy-ai/internal/models"
)

type MemoryStorage struct {
	mu      sync.RWMutex
	threads map[string]*models.ThreadMetadata
	items   map[string][]models.ThreadItem
	seq     int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		threads: make(map[string]*models.ThreadMetadata),
		items:   make(map[string][]models.ThreadItem),
	}
}

// Thread methods
func (s *MemoryStorage) LoadThread(ctx context.Context, threadID string) (*models.ThreadMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, exists := s.threads[threadID]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *thread
	return &copied, nil
}

func (s *MemoryStorage) SaveThread(ctx context.Context, thread *models.ThreadMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	stored := *thread
	if existing, exists := s.threads[thread.ID]; exists {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.threads[thread.ID] = &stored

	thread.CreatedAt = stored.CreatedAt
	thread.UpdatedAt = stored.UpdatedAt
	return nil
}

// Item methods
func (s *MemoryStorage) AddThreadItem(ctx context.Context, threadID string, item *models.ThreadItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[threadID]; !exists {
		return ErrNotFound
	}

	s.seq++
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.ThreadID = threadID
	item.Seq = s.seq

	stored := *item
	stored.Content = append([]models.ContentPart(nil), item.Content...)
	s.items[threadID] = append(s.items[threadID], stored)
	return nil
}

func (s *MemoryStorage) LoadThreadItems(ctx context.Context, threadID, after string, limit int, order models.Order) (*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.threads[threadID]; !exists {
		return nil, ErrNotFound
	}
	limit = normalizeLimit(limit)
	order = normalizeOrder(order)

	log := s.items[threadID]
	ordered := make([]models.ThreadItem, len(log))
	for i, item := range log {
		item.Content = append([]models.ContentPart(nil), item.Content...)
		if order == models.OrderAsc {
			ordered[i] = item
		} else {
			ordered[len(log)-1-i] = item
		}
	}

	start := 0
	if after != "" {
		start = -1
		for i, item := range ordered {
			if item.ID == after {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, ErrNotFound
		}
	}

	end := start + limit + 1
	if end > len(ordered) {
		end = len(ordered)
	}
	return buildPage(ordered[start:end], limit), nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
