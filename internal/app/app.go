// Package app wires every collaborator of a running process exactly once.
package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jitinkakkar/dorthy-ai/internal/agent"
	"github.com/jitinkakkar/dorthy-ai/internal/chat"
	"github.com/jitinkakkar/dorthy-ai/internal/completeness"
	"github.com/jitinkakkar/dorthy-ai/internal/llm"
	"github.com/jitinkakkar/dorthy-ai/internal/storage"
	"github.com/jitinkakkar/dorthy-ai/internal/workflow"
	"github.com/jitinkakkar/dorthy-ai/pkg/config"
)

// ErrServiceUnavailable means the chat pipeline could not be built, typically
// because no OpenAI API key is configured.
var ErrServiceUnavailable = errors.New("service unavailable")

// App holds the shared, long-lived components.
type App struct {
	Config *config.Config
	Store  storage.Storage
	Router *workflow.Router
	Chat   *chat.Server
	logger *zap.Logger
}

// Deps lets callers replace the model client and document searcher.
type Deps struct {
	Client   llm.Client
	Searcher agent.DocumentSearcher
	Store    storage.Storage
}

// New builds the App from configuration.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrServiceUnavailable)
	}

	deps := Deps{
		Client: llm.NewOpenAIClient(llm.Options{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Timeout: cfg.OpenAI.Timeout,
		}),
	}
	if cfg.Search.VectorStoreID != "" {
		deps.Searcher = agent.NewOpenAIVectorSearcher(agent.SearchOptions{
			APIKey:        cfg.OpenAI.APIKey,
			BaseURL:       cfg.OpenAI.BaseURL,
			VectorStoreID: cfg.Search.VectorStoreID,
			MaxResults:    cfg.Search.MaxResults,
			Timeout:       cfg.OpenAI.Timeout,
		})
	} else {
		logger.Warn("VECTOR_STORE_ID is not set; program teaser runs without document search")
	}

	return NewWithDeps(cfg, deps, logger)
}

// NewWithDeps builds the App around the given dependencies. A nil Store is
// opened from cfg.Database.
func NewWithDeps(cfg *config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	store := deps.Store
	if store == nil {
		var err error
		if store, err = storage.Open(cfg.Database, logger); err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
	}

	catalog := agent.NewCatalog(
		agent.NewGatheringInfo(cfg.Agents.GatheringInfo.Settings()),
		agent.NewProgramTeaser(cfg.Agents.ProgramTeaser.Settings()),
		agent.NewAskEmail(cfg.Agents.AskEmail.Settings()),
	)
	extractor := completeness.NewGPTExtractor(deps.Client, cfg.Agents.Extraction.Settings(), logger)
	router, err := workflow.NewRouter(extractor, catalog, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	streamer := agent.NewStreamer(deps.Client, deps.Searcher, logger)

	chatServer := chat.NewServer(store, router, streamer, chat.Options{
		HistoryLimit:   cfg.Chat.HistoryLimit,
		TrackedThreads: cfg.Chat.TrackedThreads,
	}, logger)

	return &App{
		Config: cfg,
		Store:  store,
		Router: router,
		Chat:   chatServer,
		logger: logger,
	}, nil
}

// Close releases the storage backend.
func (a *App) Close() error {
	if err := a.Store.Close(); err != nil {
		a.logger.Error("Failed to close storage", zap.Error(err))
		return err
	}
	return nil
}
