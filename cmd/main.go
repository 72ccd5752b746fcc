package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"socialdm/backend/internal/api/handler"
	"socialdm/backend/internal/auth"
	"socialdm/backend/internal/chathub"
	"socialdm/backend/internal/config"
	"socialdm/backend/internal/localization"
	"socialdm/backend/internal/privacy"
	"socialdm/backend/internal/push"
	"socialdm/backend/internal/storage"
	"socialdm/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := config.NewLogger(cfg)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenPostgres(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	logger.Info().Msg("connected to PostgreSQL")

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = storage.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer rdb.Close()
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set, fan-out is limited to this process")
	}

	store := storage.NewStorageService(db, rdb, storage.DiskFiles{Root: cfg.MediaRoot}, logger)
	if err := store.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	rt := newRealtime(cfg, rdb)

	hub := chathub.NewHub(rt.broker, logger)
	if err := hub.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("fan-out subscription failed")
	}

	var notifier chathub.Notifier
	if cfg.TelegramBotToken != "" {
		loc, err := localization.New()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load locales")
		}
		tg, err := telegram.NewClient(cfg.TelegramBotToken, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram client failed")
		}
		notifier = push.NewDispatcher(store, tg, store, loc, cfg.PushTimeout, logger)
	} else {
		logger.Warn().Msg("TELEGRAM_BOT_TOKEN not set, push notifications disabled")
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	gate := privacy.NewGate(store)
	gw := chathub.NewGateway(chathub.Deps{
		Store:            store,
		Privacy:          gate,
		Hub:              hub,
		Verifier:         verifier,
		Presence:         rt.presence,
		Push:             notifier,
		Limiter:          rt.limiter,
		Logger:           logger,
		RecentRoomsLimit: cfg.RecentRoomsLimit,
	})

	h := handler.NewHandler(store, gate, gw, verifier, logger, handler.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		MessagePageSize:  cfg.MessagePageSize,
		RecentRoomsLimit: cfg.RecentRoomsLimit,
	})
	// The store pings PostgreSQL and, when configured, Redis.
	health := map[string]handler.Pinger{"storage": store}

	// No write timeout: WebSocket connections are long-lived and manage
	// their own deadlines.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Router(health),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server stopped")
}

// realtime holds the fan-out, presence and rate limiting backends.
type realtime struct {
	broker   storage.Broker
	presence storage.Presence
	limiter  storage.RateLimiter
}

// newRealtime picks the Redis backends when a client is configured and the
// in-process ones otherwise. There is no rate limiting without Redis.
func newRealtime(cfg *config.Config, rdb *redis.Client) realtime {
	if rdb == nil {
		return realtime{
			broker:   storage.NewMemoryBroker(),
			presence: storage.NewMemoryPresence(),
		}
	}
	rt := realtime{
		broker:   storage.NewRedisBroker(rdb),
		presence: storage.NewRedisPresence(rdb),
	}
	if cfg.SendRateLimit > 0 {
		rt.limiter = storage.NewRedisRateLimiter(rdb, cfg.SendRateLimit, cfg.SendRateWindow)
	}
	return rt
}
