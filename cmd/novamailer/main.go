package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mixelka/novamailer/internal/campaign"
	"github.com/mixelka/novamailer/internal/config"
	"github.com/mixelka/novamailer/internal/database"
	"github.com/mixelka/novamailer/internal/httpapi"
	"github.com/mixelka/novamailer/internal/ingest"
	"github.com/mixelka/novamailer/internal/mailer"
	"github.com/mixelka/novamailer/internal/parser"
	"github.com/mixelka/novamailer/pkg/models"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting novamailer", "addr", cfg.HTTPAddr, "auth", cfg.AuthEnabled())

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Create components
	cipher, err := mailer.NewCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to create cipher", "error", err)
		os.Exit(1)
	}
	htmlParser := parser.NewHTMLParser()
	sender := mailer.NewSMTPSender(cfg.SMTPDialTimeout)
	pipeline := ingest.NewPipeline(cfg.Ingest())

	dispatcher := mailer.NewDispatcher(mailer.DispatcherDeps{
		Store:    db,
		Sender:   sender,
		Composer: mailer.NewComposer(htmlParser),
		Cipher:   cipher,
		Logger:   logger,
		Interval: cfg.SendInterval,
	})

	service := campaign.NewService(campaign.ServiceDeps{
		DB:         db,
		Pipeline:   pipeline,
		Dispatcher: dispatcher,
		Sender:     sender,
		Cipher:     cipher,
		HTMLParser: htmlParser,
		Variables:  parser.NewVariableDetector(),
		Logger:     logger,
	})

	// Resume campaigns interrupted by the last shutdown
	sending, err := db.GetCampaignsByStatus(ctx, models.CampaignSending)
	if err != nil {
		logger.Error("failed to get sending campaigns", "error", err)
		os.Exit(1)
	}
	if len(sending) > 0 {
		dispatcher.RestoreAll(ctx, sending)
	}

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Service:       service,
			Health:        db,
			Tokens:        cfg.Tokens,
			CORSOrigins:   cfg.CORSOrigins,
			MaxUploadSize: pipeline.MaxUploadSize(),
			Logger:        logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down http server", "error", err)
		}

		dispatcher.StopAll()
	}()

	logger.Info("http server is running, press Ctrl+C to stop")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		dispatcher.StopAll()
		os.Exit(1)
	}

	<-done
	logger.Info("novamailer stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
