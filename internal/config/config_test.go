package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"db": {"host": "localhost", "user": "ragline", "db_name": "ragline"},
		"ai": {"provider": "gemini", "data": {"key": "test"}}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "gemini", cfg.AI.EmbedProvider)
	require.Equal(t, "gemini-embedding-001", cfg.AI.EmbedModel)
	require.Equal(t, 1536, cfg.AI.EmbedDimension)
	require.Equal(t, 30, cfg.AI.TimeoutSeconds)

	require.Equal(t, 0.3, cfg.Search.MinRelevance)
	require.Equal(t, 5, cfg.Search.DefaultLimit)
	require.Equal(t, 0.7, cfg.Search.SemanticWeight)
	require.Equal(t, 8000, cfg.Search.TimeoutMS)

	require.Equal(t, 12000, cfg.Prompt.MaxChars)
	require.Equal(t, 6, cfg.Prompt.HistoryTurns)
	require.Equal(t, 1200, cfg.Prompt.SourceChars)

	require.Equal(t, 8000, cfg.Indexer.MaxEmbedChars)
	require.Equal(t, 1000, cfg.Indexer.CallDelayMS)
	require.Equal(t, 5, cfg.Indexer.MaxAttempts)
	require.Equal(t, 50, cfg.Indexer.DrainBatch)
	require.Equal(t, "*/5 * * * *", cfg.Indexer.DrainSpec)

	require.Equal(t, 2000, cfg.Knowledge.MaxContextChars)
	require.Equal(t, "none", cfg.AuditStore.Type)
	require.Equal(t, "info", cfg.LogConfig.Level)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"port": 9000,
		"db": {"dsn": "postgres://u:p@h/db"},
		"ai": {"provider": "openai", "embed_provider": "gemini", "model": "gpt-4o-mini"},
		"search": {"min_relevance": 0.5, "default_limit": 3},
		"indexer": {"max_attempts": 2}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "gemini", cfg.AI.EmbedProvider)
	require.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	require.Equal(t, 0.5, cfg.Search.MinRelevance)
	require.Equal(t, 3, cfg.Search.DefaultLimit)
	require.Equal(t, 2, cfg.Indexer.MaxAttempts)
}

func TestLoadParsesProviderFallbacks(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"db": {"host": "localhost"},
		"ai": {
			"provider": "gemini",
			"fallbacks": [{"provider": "openai", "model": "gpt-4o-mini", "data": {"api_key": "k"}}]
		}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.AI.Fallbacks, 1)
	require.Equal(t, "openai", cfg.AI.Fallbacks[0].Provider)
	require.Equal(t, "gpt-4o-mini", cfg.AI.Fallbacks[0].Model)
}

func TestLoadRejectsFallbackWithoutProvider(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"db": {"host": "localhost"},
		"ai": {"provider": "gemini", "fallbacks": [{"model": "gpt-4o-mini"}]}
	}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing port", `{"db": {"host": "h"}, "ai": {"provider": "gemini"}}`},
		{"missing db", `{"port": 8080, "ai": {"provider": "gemini"}}`},
		{"missing provider", `{"port": 8080, "db": {"host": "h"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
