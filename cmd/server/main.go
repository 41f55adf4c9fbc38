// Command server runs the chatbot message-exchange HTTP API.
//
// Startup order: load .env (best effort), parse configuration, initialize the
// logger, open the store, run migrations, connect the cache, pick a reply
// generator, wire the router, then serve with graceful shutdown.
//
//	@title						Chatbot Message API
//	@version					1.0
//	@description				REST API for exchanging messages with a chatbot: send, edit,
//	@description				delete, paginate, search, and inspect conversation context.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the JWT token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-chatbot-api/docs"
	"github.com/tbourn/go-chatbot-api/internal/cache"
	"github.com/tbourn/go-chatbot-api/internal/chatbot"
	"github.com/tbourn/go-chatbot-api/internal/config"
	httpapi "github.com/tbourn/go-chatbot-api/internal/http"
	"github.com/tbourn/go-chatbot-api/internal/observability"
	"github.com/tbourn/go-chatbot-api/internal/repo"
	"github.com/tbourn/go-chatbot-api/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := sysutil.InitLogger(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing first so the store and HTTP layers pick up the provider.
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("store open failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			logger.Warn().Err(err).Msg("store tracing not enabled")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	c := openCache(cfg)
	if c != nil {
		defer func() { _ = c.Close() }()
	}

	gen := pickGenerator(cfg)

	// Idempotency records expire by TTL but the rows stay behind; sweep
	// them out hourly until shutdown.
	go func() {
		tick := time.NewTicker(time.Hour)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				if n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC()); err != nil {
					logger.Warn().Err(err).Msg("idempotency purge failed")
				} else if n > 0 {
					logger.Debug().Int64("purged", n).Msg("idempotency purge")
				}
			}
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, c, gen, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("otel shutdown failed")
	}
	logger.Info().Msg("bye")
}

// openStore prefers a Postgres DSN when configured, falling back to the
// embedded SQLite file for single-node deployments.
func openStore(cfg config.Config) (*gorm.DB, error) {
	if dsn := cfg.DatabaseDSN; dsn != "" {
		return repo.OpenPostgres(dsn)
	}
	return repo.OpenSQLite(cfg.DBPath)
}

// openCache selects the cache backend. Redis when a URL is configured, an
// in-process cache otherwise; nil (caching off) when disabled entirely. A
// Redis connection failure degrades to the in-process cache rather than
// refusing to start.
func openCache(cfg config.Config) cache.Cache {
	if !cfg.CacheEnabled {
		return nil
	}
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(cfg.RedisURL)
		if err == nil {
			log.Info().Msg("cache: redis")
			return r
		}
		log.Warn().Err(err).Msg("redis unavailable, using in-process cache")
	}
	return cache.NewMemory()
}

// pickGenerator selects the reply generator. Without an API key the service
// still works end to end using the deterministic offline generator.
func pickGenerator(cfg config.Config) chatbot.Generator {
	if cfg.OpenAIAPIKey != "" {
		log.Info().Str("model", cfg.OpenAIModel).Msg("chatbot: openai")
		return chatbot.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	log.Info().Msg("chatbot: static offline generator")
	return chatbot.NewStaticGenerator()
}
