// Command server runs the concierge chat backend: the public guest chat
// endpoint, the staff dashboard API, and the supporting notification queue.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mnordin/go-concierge-backend/internal/config"
	httpapi "github.com/mnordin/go-concierge-backend/internal/http"
	"github.com/mnordin/go-concierge-backend/internal/llm"
	"github.com/mnordin/go-concierge-backend/internal/notify"
	"github.com/mnordin/go-concierge-backend/internal/observability"
	"github.com/mnordin/go-concierge-backend/internal/repo"
	"github.com/mnordin/go-concierge-backend/internal/seed"
	"github.com/mnordin/go-concierge-backend/internal/sysutil"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	version := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("opening database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrating database")
	}

	// Container init jobs run migrations separately from serving traffic.
	if sysutil.IsTruthy(os.Getenv("MIGRATE_ONLY")) {
		log.Info().Msg("migrations applied, exiting (MIGRATE_ONLY)")
		return
	}

	if cfg.SeedPath != "" {
		fixture, err := seed.LoadFile(cfg.SeedPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SeedPath).Msg("loading tenant fixtures")
		}
		if fixture != nil {
			if err := seed.Apply(ctx, db, fixture); err != nil {
				log.Fatal().Err(err).Msg("applying tenant fixtures")
			}
			log.Info().Int("customers", len(fixture.Customers)).Msg("tenant fixtures applied")
		}
	}

	var provider llm.Provider
	if cfg.OpenAI.BaseURL != "" {
		provider = llm.NewOpenAIProviderWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	} else {
		provider = llm.NewOpenAIProvider(cfg.OpenAI.APIKey)
	}

	queue := notify.NewQueue(cfg.Notify.QueueSize, cfg.Notify.SendTimeout)
	defer queue.Close()
	sender := notify.NewWebhookSender(cfg.Notify.PushWebhookURL, cfg.Notify.EmailWebhookURL, queue)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	httpapi.RegisterRoutes(r, db, cfg, provider, sender)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
