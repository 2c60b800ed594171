package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jitinkakkar/dorthy-ai/internal/llm/llmtest"
	"github.com/jitinkakkar/dorthy-ai/internal/models"
	"github.com/jitinkakkar/dorthy-ai/internal/storage"
	"github.com/jitinkakkar/dorthy-ai/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func TestNew_MissingAPIKey(t *testing.T) {
	cfg := testConfig(t)

	_, err := New(cfg, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestNew_WithAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAI.APIKey = "sk-test"

	a, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.Chat)
	assert.IsType(t, &storage.MemoryStorage{}, a.Store)
}

func TestNewWithDeps_UsesConfiguredAgents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.Extraction.Model = "extract-model"
	cfg.Agents.GatheringInfo.Model = "gather-model"

	client := &llmtest.Client{
		Complete: func(openai.ChatCompletionRequest) (string, error) { return `{"city_or_region":"Toronto"}`, nil },
		Stream: func(openai.ChatCompletionRequest) ([]llmtest.Chunk, error) {
			return llmtest.Texts("Hi!"), nil
		},
	}
	a, err := NewWithDeps(cfg, Deps{Client: client}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	thread, err := a.Chat.CreateThread(ctx)
	require.NoError(t, err)
	turn, err := a.Chat.Respond(ctx, thread.ID, models.NewUserMessage("Toronto"))
	require.NoError(t, err)
	text, err := a.Chat.Collect(turn)
	require.NoError(t, err)

	assert.Equal(t, "Hi!", text)
	assert.Equal(t, "extract-model", client.Requests[0].Model)
	assert.Equal(t, "gather-model", client.StreamRequests[0].Model)
}

func TestNewWithDeps_SQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = storage.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "dorthy.db")

	a, err := NewWithDeps(cfg, Deps{Client: &llmtest.Client{}}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &storage.SQLiteStore{}, a.Store)
}

func TestNewWithDeps_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mongo"

	_, err := NewWithDeps(cfg, Deps{Client: &llmtest.Client{}}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
