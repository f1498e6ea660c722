package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/chatdocs/internal/auth"
	"github.com/nikhilbhutani/chatdocs/internal/cache"
	"github.com/nikhilbhutani/chatdocs/internal/config"
	"github.com/nikhilbhutani/chatdocs/internal/database"
	"github.com/nikhilbhutani/chatdocs/internal/document"
	"github.com/nikhilbhutani/chatdocs/internal/llm"
	"github.com/nikhilbhutani/chatdocs/internal/queue"
	"github.com/nikhilbhutani/chatdocs/internal/queue/workers"
	"github.com/nikhilbhutani/chatdocs/internal/rag"
	"github.com/nikhilbhutani/chatdocs/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	gateway, err := llm.NewGateway(cfg.LLM)
	if err != nil {
		slog.Error("failed to build LLM gateway", "error", err)
		os.Exit(1)
	}

	// The worker owns the index mutations: it builds the same pipeline as
	// the API so both sides agree on chunking and embedding.
	pipeline, err := rag.Build(db, gateway, cfg)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	localStore, err := storage.NewLocalStorage(cfg.Storage.UploadDir)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}

	rdb := cache.NewClient(cfg.Redis)
	defer rdb.Close()
	appCache := cache.NewCache(rdb)
	queueCl := queue.NewClient(cfg.Redis)
	defer queueCl.Close()

	docSvc := document.NewService(db, localStore, appCache, queueCl)
	otpSvc := auth.NewOTPService(db, cfg.Auth.OTPTTL)

	registry := queue.NewHandlersRegistry()
	indexingWorker := workers.NewIndexingWorker(docSvc, pipeline)
	otpWorker := workers.NewOTPWorker(otpSvc, nil)
	registry.Register(queue.TypeDocumentIndex, asynq.HandlerFunc(indexingWorker.ProcessTask))
	registry.Register(queue.TypeOTPDeliver, asynq.HandlerFunc(otpWorker.ProcessTask))

	// Expired OTP sweep, independent of task traffic.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := otpSvc.CleanupExpired(context.Background()); err != nil {
				slog.Error("OTP cleanup failed", "error", err)
			} else if n > 0 {
				slog.Info("expired OTPs removed", "count", n)
			}
		}
	}()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
