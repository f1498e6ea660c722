package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	LLM       LLMConfig
	RAG       RAGConfig
	WebSearch WebSearchConfig
	Storage   StorageConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	OTPTTL    time.Duration
}

type LLMConfig struct {
	OpenAIKey        string
	OpenAIBaseURL    string // override for OpenAI-compatible endpoints (Groq etc.)
	AnthropicKey     string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	EmbeddingModel   string
	MaxRetries       int
}

type RAGConfig struct {
	ChunkSize            int
	ChunkOverlap         int
	SemanticChunking     bool
	BreakpointPercentile float64
	SimilarityThreshold  float64
	TopK                 int
	IndexBackend         string // "snapshot" or "pgvector"
	IndexPath            string
	GenerationTimeout    time.Duration
}

type WebSearchConfig struct {
	TavilyKey   string
	SearchDepth string
	MaxResults  int
	Timeout     time.Duration
}

type StorageConfig struct {
	UploadDir     string
	MaxUploadSize int64
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	chunkSize, err := getEnvInt("RAG_CHUNK_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_CHUNK_SIZE: %w", err)
	}

	chunkOverlap, err := getEnvInt("RAG_CHUNK_OVERLAP", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_CHUNK_OVERLAP: %w", err)
	}

	percentile, err := getEnvFloat("RAG_BREAKPOINT_PERCENTILE", 95)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_BREAKPOINT_PERCENTILE: %w", err)
	}

	threshold, err := getEnvFloat("RAG_SIMILARITY_THRESHOLD", 0.5)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_SIMILARITY_THRESHOLD: %w", err)
	}

	topK, err := getEnvInt("RAG_TOP_K", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_TOP_K: %w", err)
	}

	genTimeout, err := getEnvDuration("RAG_GENERATION_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_GENERATION_TIMEOUT: %w", err)
	}

	webMaxResults, err := getEnvInt("WEBSEARCH_MAX_RESULTS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBSEARCH_MAX_RESULTS: %w", err)
	}

	webTimeout, err := getEnvDuration("WEBSEARCH_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBSEARCH_TIMEOUT: %w", err)
	}

	tokenTTL, err := getEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_TOKEN_TTL: %w", err)
	}

	otpTTL, err := getEnvDuration("AUTH_OTP_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_OTP_TTL: %w", err)
	}

	maxUpload, err := getEnvInt("STORAGE_MAX_UPLOAD_BYTES", 32<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid STORAGE_MAX_UPLOAD_BYTES: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  tokenTTL,
			OTPTTL:    otpTTL,
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			EmbeddingModel:   getEnv("LLM_EMBEDDING_MODEL", "text-embedding-3-small"),
			MaxRetries:       maxRetries,
		},
		RAG: RAGConfig{
			ChunkSize:            chunkSize,
			ChunkOverlap:         chunkOverlap,
			SemanticChunking:     getEnvBool("RAG_SEMANTIC_CHUNKING", true),
			BreakpointPercentile: percentile,
			SimilarityThreshold:  threshold,
			TopK:                 topK,
			IndexBackend:         getEnv("RAG_INDEX_BACKEND", "snapshot"),
			IndexPath:            getEnv("RAG_INDEX_PATH", "data/index.snapshot"),
			GenerationTimeout:    genTimeout,
		},
		WebSearch: WebSearchConfig{
			TavilyKey:   getEnv("TAVILY_API_KEY", ""),
			SearchDepth: getEnv("WEBSEARCH_DEPTH", "advanced"),
			MaxResults:  webMaxResults,
			Timeout:     webTimeout,
		},
		Storage: StorageConfig{
			UploadDir:     getEnv("STORAGE_UPLOAD_DIR", "data/uploads"),
			MaxUploadSize: int64(maxUpload),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.LLM.OpenAIKey == "" && c.LLM.AnthropicKey == "" {
		missing = append(missing, "OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("RAG_CHUNK_OVERLAP (%d) must be smaller than RAG_CHUNK_SIZE (%d)",
			c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.IndexBackend != "snapshot" && c.RAG.IndexBackend != "pgvector" {
		return fmt.Errorf("RAG_INDEX_BACKEND must be snapshot or pgvector, got %q", c.RAG.IndexBackend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
