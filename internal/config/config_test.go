package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.True(t, cfg.RAG.SemanticChunking)
	assert.InDelta(t, 95, cfg.RAG.BreakpointPercentile, 1e-9)
	assert.InDelta(t, 0.5, cfg.RAG.SimilarityThreshold, 1e-9)
	assert.Equal(t, 10, cfg.RAG.TopK)
	assert.Equal(t, "snapshot", cfg.RAG.IndexBackend)
	assert.Equal(t, "data/index.snapshot", cfg.RAG.IndexPath)
	assert.Equal(t, 30*time.Second, cfg.RAG.GenerationTimeout)
	assert.Equal(t, 15*time.Second, cfg.WebSearch.Timeout)
	assert.Equal(t, "advanced", cfg.WebSearch.SearchDepth)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RAG_CHUNK_SIZE", "800")
	t.Setenv("RAG_SEMANTIC_CHUNKING", "false")
	t.Setenv("RAG_SIMILARITY_THRESHOLD", "0.7")
	t.Setenv("RAG_GENERATION_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 800, cfg.RAG.ChunkSize)
	assert.False(t, cfg.RAG.SemanticChunking)
	assert.InDelta(t, 0.7, cfg.RAG.SimilarityThreshold, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.RAG.GenerationTimeout)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{URL: "postgres://localhost/chatdocs"},
		Auth:     AuthConfig{JWTSecret: "secret"},
		LLM:      LLMConfig{OpenAIKey: "sk-test"},
		RAG:      RAGConfig{ChunkSize: 500, ChunkOverlap: 200, IndexBackend: "snapshot"},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.Database.URL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	cfg = validConfig()
	cfg.LLM.OpenAIKey = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	cfg = validConfig()
	cfg.RAG.ChunkOverlap = 500
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RAG.IndexBackend = "faiss"
	assert.Error(t, cfg.Validate())
}
