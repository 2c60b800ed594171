// Package chat drives a conversation turn: persist the user message, route,
// stream the chosen responder and persist its reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/jitinkakkar/dorthy-ai/internal/agent"
	"github.com/jitinkakkar/dorthy-ai/internal/convert"
	"github.com/jitinkakkar/dorthy-ai/internal/models"
	"github.com/jitinkakkar/dorthy-ai/internal/storage"
	"github.com/jitinkakkar/dorthy-ai/internal/workflow"
)

const (
	DefaultHistoryLimit   = 50
	DefaultTrackedThreads = 10000
	saveTimeout           = 5 * time.Second
)

// Options tunes a Server.
type Options struct {
	// HistoryLimit is how many of the newest items the responder sees.
	// Extraction always sees the whole thread.
	HistoryLimit int
	// TrackedThreads bounds how many threads keep their last completed_info
	// for regression warnings.
	TrackedThreads int
}

// Server is the per-turn orchestrator shared by every frontend.
type Server struct {
	store        storage.Storage
	router       *workflow.Router
	streamer     *agent.Streamer
	historyLimit int
	locks        *threadLocks
	completed    *lru.Cache[string, bool]
	logger       *zap.Logger
}

func NewServer(store storage.Storage, router *workflow.Router, streamer *agent.Streamer, opts Options, logger *zap.Logger) *Server {
	limit := opts.HistoryLimit
	if limit < DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	if limit > storage.MaxPageSize {
		limit = storage.MaxPageSize
	}
	tracked := opts.TrackedThreads
	if tracked <= 0 {
		tracked = DefaultTrackedThreads
	}
	// lru.New only fails on a non-positive size.
	completed, _ := lru.New[string, bool](tracked)
	return &Server{
		store:        store,
		router:       router,
		streamer:     streamer,
		historyLimit: limit,
		locks:        newThreadLocks(),
		completed:    completed,
		logger:       logger.With(zap.String("component", "chat")),
	}
}

// CreateThread starts a new, empty thread.
func (s *Server) CreateThread(ctx context.Context) (*models.ThreadMetadata, error) {
	thread := &models.ThreadMetadata{
		ID:    "thr_" + uuid.New().String(),
		Title: models.DefaultThreadTitle,
	}
	if err := s.store.SaveThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	s.logger.Info("Thread created", zap.String("thread_id", thread.ID))
	return thread, nil
}

// EnsureThread loads the thread with the given ID, creating it if needed.
func (s *Server) EnsureThread(ctx context.Context, threadID string) (*models.ThreadMetadata, error) {
	thread, err := s.store.LoadThread(ctx, threadID)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	thread = &models.ThreadMetadata{ID: threadID, Title: models.DefaultThreadTitle}
	if err := s.store.SaveThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	s.logger.Info("Thread created", zap.String("thread_id", threadID))
	return thread, nil
}

func (s *Server) LoadThread(ctx context.Context, threadID string) (*models.ThreadMetadata, error) {
	return s.store.LoadThread(ctx, threadID)
}

func (s *Server) ListItems(ctx context.Context, threadID, after string, limit int, order models.Order) (*models.Page, error) {
	return s.store.LoadThreadItems(ctx, threadID, after, limit, order)
}

// Respond runs one turn for a new user item. The item is validated before
// anything is stored or any model is called. On success the caller owns the
// Turn and must Close it; the thread stays locked until then.
func (s *Server) Respond(ctx context.Context, threadID string, item *models.ThreadItem) (*Turn, error) {
	if item.Role != models.RoleUser {
		return nil, fmt.Errorf("%w: expected a user message, got %q", convert.ErrUnsupportedContent, item.Role)
	}
	if err := convert.Validate(item); err != nil {
		s.logger.Warn("Rejected user message", zap.String("thread_id", threadID), zap.Error(err))
		return nil, err
	}

	release, err := s.locks.acquire(ctx, threadID)
	if err != nil {
		return nil, err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			release()
		}
	}()

	thread, err := s.store.LoadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddThreadItem(ctx, threadID, item); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	items, err := s.Transcript(ctx, threadID)
	if err != nil {
		return nil, err
	}
	transcript, err := convert.ToAgentInput(items)
	if err != nil {
		return nil, err
	}
	input := transcript
	if n := len(input); n > s.historyLimit {
		input = input[n-s.historyLimit:]
	}

	decision, err := s.router.Route(ctx, transcript)
	if err != nil {
		s.logger.Error("Failed to route turn", zap.String("thread_id", threadID), zap.Error(err))
		return nil, err
	}
	s.trackCompleteness(threadID, decision)

	if thread.HasPlaceholderTitle() {
		thread.Title = models.JourneyThreadTitle
		if err := s.store.SaveThread(ctx, thread); err != nil {
			return nil, fmt.Errorf("failed to update thread title: %w", err)
		}
	}

	stream, err := s.streamer.Stream(ctx, decision.Responder, input)
	if err != nil {
		return nil, err
	}

	handedOff = true
	return &Turn{
		Thread:      thread,
		UserItem:    item,
		AssistantID: uuid.New().String(),
		Decision:    decision,
		server:      s,
		ctx:         ctx,
		stream:      stream,
		release:     release,
	}, nil
}

// Collect drains turn and returns the assistant's full reply. It closes turn.
func (s *Server) Collect(turn *Turn) (string, error) {
	defer turn.Close()
	for {
		ev, err := turn.Recv()
		if err != nil {
			return "", fmt.Errorf("stream ended without a result: %w", err)
		}
		switch ev.Type {
		case agent.EventDone:
			return ev.Text, nil
		case agent.EventError:
			return "", ev.Err
		}
	}
}

// Transcript returns every item of the thread, oldest first.
func (s *Server) Transcript(ctx context.Context, threadID string) ([]models.ThreadItem, error) {
	var items []models.ThreadItem
	after := ""
	for {
		page, err := s.store.LoadThreadItems(ctx, threadID, after, storage.MaxPageSize, models.OrderAsc)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		items = append(items, page.Data...)
		if !page.HasMore {
			return items, nil
		}
		after = page.After
	}
}

// trackCompleteness runs under the thread lock, so Peek then Add is not racy
// for a given thread.
func (s *Server) trackCompleteness(threadID string, decision workflow.Decision) {
	current := decision.Record.CompletedInfo
	prev, seen := s.completed.Peek(threadID)
	s.completed.Add(threadID, current)
	if seen && prev && !current {
		s.logger.Warn("Profile completeness regressed",
			zap.String("thread_id", threadID),
			zap.Strings("missing", decision.Record.Missing()))
	}
}

func (s *Server) saveAssistant(ctx context.Context, threadID string, item *models.ThreadItem) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := s.store.AddThreadItem(saveCtx, threadID, item); err != nil {
		s.logger.Error("Failed to save assistant message",
			zap.Error(err),
			zap.String("thread_id", threadID),
			zap.String("stage", item.Stage))
		return err
	}
	s.logger.Debug("Assistant message saved",
		zap.String("thread_id", threadID),
		zap.String("item_id", item.ID))
	return nil
}

// Turn is one in-flight response. Events pass through Recv unchanged; the
// assistant reply is stored when the Done event is received. If that save
// fails, Recv yields an error event in place of Done.
type Turn struct {
	Thread      *models.ThreadMetadata
	UserItem    *models.ThreadItem
	// AssistantID is the ID the reply is stored under.
	AssistantID string
	Decision    workflow.Decision

	server    *Server
	ctx       context.Context
	stream    *agent.Stream
	release   func()
	assistant *models.ThreadItem
	closeOnce sync.Once
}

func (t *Turn) Recv() (agent.Event, error) {
	ev, err := t.stream.Recv()
	if err != nil {
		return ev, err
	}
	if ev.Type == agent.EventDone && ev.Text != "" {
		item := models.NewAssistantMessage(ev.Text, string(t.Decision.Stage))
		item.ID = t.AssistantID
		if err := t.server.saveAssistant(t.ctx, t.Thread.ID, item); err != nil {
			return agent.Event{
				Type: agent.EventError,
				Err:  fmt.Errorf("failed to save assistant message: %w", err),
			}, nil
		}
		t.assistant = item
	}
	return ev, nil
}

// Assistant returns the stored reply, or nil before a successful Done.
func (t *Turn) Assistant() *models.ThreadItem {
	return t.assistant
}

// Close ends the stream and unlocks the thread.
func (t *Turn) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.stream.Close()
		t.release()
	})
	return err
}
