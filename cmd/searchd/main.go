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

	"github.com/velmark/mailsearch/internal/api"
	"github.com/velmark/mailsearch/internal/config"
	"github.com/velmark/mailsearch/internal/database"
	"github.com/velmark/mailsearch/internal/imapsearch"
	"github.com/velmark/mailsearch/internal/mailparse"
	"github.com/velmark/mailsearch/internal/permissions"
	"github.com/velmark/mailsearch/internal/search"
	"github.com/velmark/mailsearch/internal/secret"
	"github.com/velmark/mailsearch/internal/tokenstore"
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
	logger.Info("starting mail search service")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Session token store: Redis when configured, in-memory otherwise
	var sessions tokenstore.Store
	if cfg.RedisAddr != "" {
		sessions, err = tokenstore.NewRedis(ctx, cfg.RedisAddr, cfg.SessionTTL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		logger.Info("session store: redis", "addr", cfg.RedisAddr)
	} else {
		sessions = tokenstore.NewMemory(cfg.SessionTTL)
		logger.Info("session store: in-memory")
	}
	defer sessions.Close()

	// Create pipeline components
	cipher, err := secret.NewCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to create cipher", "error", err)
		os.Exit(1)
	}

	parser := mailparse.NewParser(mailparse.Options{
		ProxyBaseURL:   cfg.LinkProxyBaseURL,
		TrustedSenders: cfg.TrustedLinkSenders,
		Logger:         logger,
	})

	fetcher := imapsearch.NewFetcher(parser, cipher, imapsearch.Options{
		DialTimeout:      cfg.IMAPDialTimeout,
		SearchTimeout:    cfg.SearchTimeout,
		MaxConnections:   cfg.MaxConnections,
		ConnRetries:      cfg.ConnRetries,
		ConnRetryBackoff: cfg.ConnRetryBackoff,
		StrictTimeWindow: cfg.StrictTimeWindow,
	}, logger)

	resolver := permissions.NewResolver(db)
	orchestrator := search.New(db, resolver, fetcher, cfg.RecentWindowDays, logger)

	// HTTP server
	mux := http.NewServeMux()
	api.NewHandler(orchestrator, sessions, db, logger).Register(mux)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SearchTimeout + 15*time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("listening", "addr", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
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
			NoColor:    false,
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
