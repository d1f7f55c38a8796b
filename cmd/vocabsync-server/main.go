package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/conorfennell/vocabsync/internal/config"
	"github.com/conorfennell/vocabsync/internal/storage"
	"github.com/conorfennell/vocabsync/internal/token"
	"github.com/conorfennell/vocabsync/internal/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.LoadServer(args)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	tokens := token.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	srv := web.NewServer(tokens, web.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The listener comes up first; data routes answer 503 until the database is attached.
	dbReady := make(chan *storage.DB, 1)
	go func() {
		db, err := storage.Open(cfg.DB.Driver, cfg.DB.DSN)
		if err != nil {
			logger.Error("database initialization failed", "driver", cfg.DB.Driver, "error", err)
			dbReady <- nil
			return
		}
		srv.Attach(db)
		logger.Info("database ready", "driver", cfg.DB.Driver)
		dbReady <- db
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	closeDB(shutdownCtx, dbReady, logger)
	return nil
}

// closeDB closes the database once it has opened, giving up when ctx ends.
// It reports whether the wait finished before ctx did.
func closeDB(ctx context.Context, ready <-chan *storage.DB, logger *slog.Logger) bool {
	select {
	case db := <-ready:
		if db != nil {
			if err := db.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}
		return true
	case <-ctx.Done():
		logger.Warn("database still connecting, exiting without closing it")
		return false
	}
}
