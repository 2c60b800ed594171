package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jitinkakkar/dorthy-ai/internal/llm"
	"github.com/jitinkakkar/dorthy-ai/internal/storage"
)

type Config struct {
	Server   ServerConfig           `mapstructure:"server"`
	OpenAI   OpenAIConfig           `mapstructure:"openai"`
	Agents   AgentsConfig           `mapstructure:"agents"`
	Search   SearchConfig           `mapstructure:"search"`
	Database storage.DatabaseConfig `mapstructure:"database"`
	Chat     ChatConfig             `mapstructure:"chat"`
	Telegram TelegramConfig         `mapstructure:"telegram"`
	Log      LogConfig              `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AgentConfig holds the model parameters of one agent.
type AgentConfig struct {
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
}

func (a AgentConfig) Settings() llm.Settings {
	return llm.Settings{
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
		TopP:        a.TopP,
	}
}

type AgentsConfig struct {
	Extraction    AgentConfig `mapstructure:"extraction"`
	GatheringInfo AgentConfig `mapstructure:"gathering_info"`
	ProgramTeaser AgentConfig `mapstructure:"program_teaser"`
	AskEmail      AgentConfig `mapstructure:"ask_email"`
}

type SearchConfig struct {
	// VectorStoreID names the program corpus. Empty disables document search.
	VectorStoreID string `mapstructure:"vector_store_id"`
	MaxResults    int    `mapstructure:"max_results"`
}

type ChatConfig struct {
	HistoryLimit   int `mapstructure:"history_limit"`
	TrackedThreads int `mapstructure:"tracked_threads"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.timeout", 2*time.Minute)

	agents := map[string]AgentConfig{
		"extraction":     {Model: "gpt-4o-mini", MaxTokens: 2048, Temperature: 1, TopP: 1},
		"gathering_info": {Model: "gpt-4o", Temperature: 0.7, TopP: 1},
		"program_teaser": {Model: "gpt-4o", MaxTokens: 4096, Temperature: 1, TopP: 1},
		"ask_email":      {Model: "gpt-4o", MaxTokens: 2048, Temperature: 1, TopP: 1},
	}
	for name, a := range agents {
		v.SetDefault("agents."+name+".model", a.Model)
		v.SetDefault("agents."+name+".max_tokens", a.MaxTokens)
		v.SetDefault("agents."+name+".temperature", a.Temperature)
		v.SetDefault("agents."+name+".top_p", a.TopP)
	}

	v.SetDefault("search.vector_store_id", "")
	v.SetDefault("search.max_results", 5)

	v.SetDefault("database.driver", storage.DriverMemory)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "dorthy")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "data/dorthy.db")

	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("chat.tracked_threads", 10000)

	v.SetDefault("telegram.token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads the YAML file at path, if any, over the defaults and then
// applies environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Enable environment variable support: openai.api_key <- OPENAI_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := storage.ParseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.SQLitePath = config.Database.SQLitePath
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if baseURL := v.GetString("OPENAI_BASE_URL"); baseURL != "" {
		config.OpenAI.BaseURL = baseURL
	}
	if storeID := v.GetString("VECTOR_STORE_ID"); storeID != "" {
		config.Search.VectorStoreID = storeID
	}

	return &config, nil
}
