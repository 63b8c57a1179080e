package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type AIConfig struct {
	Provider       string      `json:"provider"`
	Model          string      `json:"model"`
	EmbedProvider  string      `json:"embed_provider"`
	EmbedModel     string      `json:"embed_model"`
	EmbedDimension int         `json:"embed_dimension"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	Data           interface{} `json:"data"`
	EmbedData      interface{} `json:"embed_data"`
	// Fallbacks are tried in order when the primary provider fails.
	Fallbacks []AIFallbackConfig `json:"fallbacks"`
}

// AIFallbackConfig names a secondary provider; model names default to
// the primary's when left empty. A fallback embed provider must return
// the same embed_dimension as the primary.
type AIFallbackConfig struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	EmbedModel string      `json:"embed_model"`
	Data       interface{} `json:"data"`
}

type SearchConfig struct {
	MinRelevance   float64 `json:"min_relevance"`
	DefaultLimit   int     `json:"default_limit"`
	SemanticWeight float64 `json:"semantic_weight"`
	TimeoutMS      int     `json:"timeout_ms"`
	CacheSize      int     `json:"cache_size"`
	CacheTTLMin    int     `json:"cache_ttl_min"`
}

type PromptConfig struct {
	MaxChars     int `json:"max_chars"`
	HistoryTurns int `json:"history_turns"`
	SourceChars  int `json:"source_chars"`
}

type IndexerConfig struct {
	MaxEmbedChars int    `json:"max_embed_chars"`
	CallDelayMS   int    `json:"call_delay_ms"`
	MaxAttempts   int    `json:"max_attempts"`
	DrainBatch    int    `json:"drain_batch"`
	DrainSpec     string `json:"drain_spec"`
}

type KnowledgeConfig struct {
	MaxContextChars int    `json:"max_context_chars"`
	DataPath        string `json:"data_path"`
}

type AuditStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Config struct {
	Port          int              `json:"port"`
	DB            DatabaseConfig   `json:"db"`
	LogConfig     logger.LogConfig `json:"log_config"`
	AI            AIConfig         `json:"ai"`
	Search        SearchConfig     `json:"search"`
	Prompt        PromptConfig     `json:"prompt"`
	Indexer       IndexerConfig    `json:"indexer"`
	Knowledge     KnowledgeConfig  `json:"knowledge"`
	AuditStore    AuditStoreConfig `json:"audit_store"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	// ChatRateWindowMS throttles /chat per caller; zero disables.
	ChatRateWindowMS int `json:"chat_rate_window_ms"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.DB.DSN == "" && cfg.DB.Host == "" {
		return nil, fmt.Errorf("db.dsn or db.host is required")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.EmbedProvider == "" {
		cfg.AI.EmbedProvider = cfg.AI.Provider
	}
	for i, fb := range cfg.AI.Fallbacks {
		if fb.Provider == "" {
			return nil, fmt.Errorf("ai.fallbacks[%d].provider is required", i)
		}
	}
	if cfg.AI.EmbedData == nil {
		cfg.AI.EmbedData = cfg.AI.Data
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gemini-2.0-flash"
	}
	if cfg.AI.EmbedModel == "" {
		cfg.AI.EmbedModel = "gemini-embedding-001"
	}
	if cfg.AI.EmbedDimension == 0 {
		cfg.AI.EmbedDimension = 1536
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	applySearchDefaults(&cfg.Search)
	applyPromptDefaults(&cfg.Prompt)
	applyIndexerDefaults(&cfg.Indexer)
	if cfg.Knowledge.MaxContextChars == 0 {
		cfg.Knowledge.MaxContextChars = 2000
	}
	if cfg.AuditStore.Type == "" {
		cfg.AuditStore.Type = "none"
	}
	return &cfg, nil
}

func applySearchDefaults(cfg *SearchConfig) {
	if cfg.MinRelevance == 0 {
		cfg.MinRelevance = 0.3
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.SemanticWeight == 0 {
		cfg.SemanticWeight = 0.7
	}
	if cfg.TimeoutMS == 0 {
		cfg.TimeoutMS = 8000
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 2048
	}
	if cfg.CacheTTLMin == 0 {
		cfg.CacheTTLMin = 60
	}
}

func applyPromptDefaults(cfg *PromptConfig) {
	if cfg.MaxChars == 0 {
		cfg.MaxChars = 12000
	}
	if cfg.HistoryTurns == 0 {
		cfg.HistoryTurns = 6
	}
	if cfg.SourceChars == 0 {
		cfg.SourceChars = 1200
	}
}

func applyIndexerDefaults(cfg *IndexerConfig) {
	if cfg.MaxEmbedChars == 0 {
		cfg.MaxEmbedChars = 8000
	}
	if cfg.CallDelayMS == 0 {
		cfg.CallDelayMS = 1000
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.DrainBatch == 0 {
		cfg.DrainBatch = 50
	}
	if cfg.DrainSpec == "" {
		cfg.DrainSpec = "*/5 * * * *"
	}
}
