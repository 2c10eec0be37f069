package main

import (
	"context"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mwork/moments-api/internal/config"
	"github.com/mwork/moments-api/internal/domain/connection"
	"github.com/mwork/moments-api/internal/domain/conversation"
	"github.com/mwork/moments-api/internal/domain/moment"
	"github.com/mwork/moments-api/internal/domain/profile"
	"github.com/mwork/moments-api/internal/domain/realtime"
	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/middleware"
	"github.com/mwork/moments-api/internal/pkg/database"
	"github.com/mwork/moments-api/internal/pkg/jwt"
	"github.com/mwork/moments-api/internal/pkg/logger"
	pkgresponse "github.com/mwork/moments-api/internal/pkg/response"
)

// handlers groups the HTTP surface mounted by newRouter.
type handlers struct {
	connections   *connection.Handler
	moments       *moment.Handler
	conversations *conversation.Handler
	profiles      *profile.Handler
	realtime      *realtime.Handler
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Moments API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if cfg.RunMigrations {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(ctx, db.DB)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	// A nil *redis.Client must not end up inside the Cmdable interface.
	var inviteRedis redis.Cmdable
	if rdb != nil {
		inviteRedis = rdb
	}

	table, err := visibility.LoadTable(cfg.TierTableFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.TierTableFile).Msg("Failed to load tier table")
	}
	policy := visibility.NewPolicy(table)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Realtime ----------
	hub := realtime.NewHub(rdb)
	go hub.Run()
	defer hub.Shutdown()

	// ---------- Services ----------
	invites := connection.NewInviteStore(inviteRedis, cfg.InviteTTL)
	conversationService := conversation.NewService(conversation.NewRepository(db), hub)
	connectionService := connection.NewService(
		connection.NewTransactor(db),
		policy,
		invites,
		conversationService,
		hub,
		connection.Options{MutualPreviewLimit: cfg.MutualPreviewLimit},
	)
	momentService := moment.NewService(
		moment.NewTransactor(db),
		connectionService,
		policy,
		moment.Options{DefaultLimit: cfg.FeedDefaultLimit, MaxLimit: cfg.FeedMaxLimit},
	)
	profileService := profile.NewService(connectionService, momentService, hub)

	// ---------- Handlers ----------
	h := handlers{
		connections:   connection.NewHandler(connectionService, invites),
		moments:       moment.NewHandler(momentService),
		conversations: conversation.NewHandler(conversationService),
		profiles:      profile.NewHandler(profileService),
		realtime:      realtime.NewHandler(hub, connectionService, cfg.AllowedOrigins),
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, middleware.Auth(jwtService), h),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server exited properly")
}

func newRouter(cfg *config.Config, authMiddleware func(http.Handler) http.Handler, h handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint; the token may come as ?token=
	r.With(authMiddleware).Get("/ws", h.realtime.WebSocket)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/debug/vars", expvar.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/connections", h.connections.Routes(authMiddleware))
		r.Mount("/conversations", h.conversations.Routes(authMiddleware))
		r.Mount("/profiles", h.profiles.Routes(authMiddleware))
		r.Mount("/", h.moments.Routes(authMiddleware))
	})

	return r
}
