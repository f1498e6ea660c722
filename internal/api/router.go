// Package api assembles the HTTP surface: routes, middleware, and the
// service graph behind them.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/chatdocs/internal/api/handlers"
	"github.com/nikhilbhutani/chatdocs/internal/api/middleware"
	"github.com/nikhilbhutani/chatdocs/internal/auth"
	"github.com/nikhilbhutani/chatdocs/internal/cache"
	"github.com/nikhilbhutani/chatdocs/internal/chat"
	"github.com/nikhilbhutani/chatdocs/internal/config"
	"github.com/nikhilbhutani/chatdocs/internal/document"
	"github.com/nikhilbhutani/chatdocs/internal/llm"
	"github.com/nikhilbhutani/chatdocs/internal/queue"
	"github.com/nikhilbhutani/chatdocs/internal/rag"
	"github.com/nikhilbhutani/chatdocs/internal/storage"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config

	authSvc  *auth.Service
	otpSvc   *auth.OTPService
	pipeline *rag.Pipeline
	docSvc   *document.Service
	chatSvc  *chat.Service
	queueCl  *queue.Client
	appCache *cache.Cache
}

// NewRouter builds the full service graph. Misconfiguration fails here,
// at startup, never mid-request.
func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) (*Router, error) {
	authSvc, err := auth.NewService(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	llmGW, err := llm.NewGateway(cfg.LLM)
	if err != nil {
		return nil, err
	}

	pipeline, err := rag.Build(db, llmGW, cfg)
	if err != nil {
		return nil, err
	}

	localStore, err := storage.NewLocalStorage(cfg.Storage.UploadDir)
	if err != nil {
		return nil, err
	}

	appCache := cache.NewCache(rdb)
	queueCl := queue.NewClient(cfg.Redis)

	return &Router{
		mux:      chi.NewRouter(),
		db:       db,
		redis:    rdb,
		cfg:      cfg,
		authSvc:  authSvc,
		otpSvc:   auth.NewOTPService(db, cfg.Auth.OTPTTL),
		pipeline: pipeline,
		docSvc:   document.NewService(db, localStore, appCache, queueCl),
		chatSvc:  chat.NewService(db, appCache, pipeline),
		queueCl:  queueCl,
		appCache: appCache,
	}, nil
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	authH := handlers.NewAuthHandler(rt.authSvc, rt.otpSvc, rt.queueCl, rt.appCache, rt.cfg.Auth.TokenTTL)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", authH.Register)
		r.Post("/login", authH.Login)
		r.Post("/logout", authH.Logout)
		r.Get("/check", authH.Check)
		r.Post("/otp/request", authH.RequestOTP)
		r.Post("/otp/verify", authH.VerifyOTP)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(rt.authSvc))

		chatH := handlers.NewChatHandler(rt.chatSvc)
		r.Route("/chats", func(r chi.Router) {
			r.Post("/", chatH.Create)
			r.Get("/", chatH.List)
			r.Put("/{id}", chatH.Rename)
			r.Delete("/{id}", chatH.Delete)
			r.Get("/{id}/messages", chatH.Messages)
			r.Post("/{id}/messages", chatH.Ask)
		})

		docH := handlers.NewDocumentHandler(rt.docSvc, rt.pipeline.DeleteDocuments, rt.cfg.Storage.MaxUploadSize)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Upload)
			r.Get("/chat/{chatID}", docH.ListByChat)
			r.Get("/{id}", docH.Get)
			r.Get("/{id}/status", docH.Status)
			r.Get("/{id}/download", docH.Download)
			r.Delete("/{id}", docH.Delete)
		})

		accountH := handlers.NewAccountHandler(rt.authSvc, rt.chatSvc)
		r.Route("/account", func(r chi.Router) {
			r.Get("/", accountH.Get)
			r.Put("/", accountH.Update)
			r.Delete("/", accountH.Delete)
		})
	})

	return r
}
