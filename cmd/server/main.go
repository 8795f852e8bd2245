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

	"medchat-proxy/internal/config"
	"medchat-proxy/internal/core"
	"medchat-proxy/internal/db"
	httpserver "medchat-proxy/internal/http"
	"medchat-proxy/internal/llm"
	"medchat-proxy/internal/logger"
	"medchat-proxy/internal/metrics"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger(logger.Config{}).Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.NewLogger(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	m := metrics.NewMetrics()
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	conn, err := db.Open(openCtx, cfg.DBDriver, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open database")
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn, cfg.DBDriver); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("database ready")

	repo := db.NewRepository(conn, cfg.DBDriver, log, m)
	notifier := db.NewNotifier(conn, cfg.DBDriver, cfg.NotifyChannel)
	if cfg.DBDriver == db.DriverPostgres {
		followUpdates(ctx, cfg, log, m)
	}

	model := llm.NewOpenAIClient(llm.Options{
		BaseURL:     cfg.ModelBaseURL,
		APIKey:      cfg.ModelAPIKey,
		Model:       cfg.ModelName,
		Timeout:     cfg.ModelTimeout,
		Temperature: cfg.ModelTemperature,
		TopP:        cfg.ModelTopP,
		MaxTokens:   cfg.ModelMaxTokens,
	})
	chat := core.NewChatService(core.ChatDeps{
		Store:        repo,
		LLM:          model,
		Post:         core.NewPostProcessor(core.NewMatcher(core.DefaultRules)),
		Notifier:     notifier,
		Log:          log,
		Metrics:      m,
		HistoryLimit: cfg.HistoryLimit,
	})

	handler := httpserver.NewServer(httpserver.Options{
		Chat:        chat,
		DB:          repo,
		Driver:      cfg.DBDriver,
		Label:       cfg.ServerLabel,
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
		Metrics:     m,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Long enough for a slow model reply.
		WriteTimeout: cfg.ModelTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()
	log.LogServerStart(srv.Addr, cfg.DBDriver, cfg.ModelName)

	<-ctx.Done()
	log.LogServerShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// followUpdates counts every conversation announced on the notify channel.
func followUpdates(ctx context.Context, cfg config.Config, log *logger.Logger, m *metrics.Metrics) {
	updates, err := db.Listen(ctx, cfg.DatabaseURL, cfg.NotifyChannel, log)
	if err != nil {
		log.Warn().Err(err).Str("channel", cfg.NotifyChannel).Msg("conversation updates disabled")
		return
	}
	go consumeUpdates(updates, log.Component("updates"), m)
}

// consumeUpdates drains updates until the channel is closed.
func consumeUpdates(updates <-chan string, log *logger.Logger, m *metrics.Metrics) {
	for id := range updates {
		m.RecordConversationUpdate()
		log.Debug().Str("conversation_id", id).Msg("conversation updated")
	}
}
