// Package main provides the entry point for the roomgate server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/roomgate/internal/app"
	"github.com/ericfisherdev/roomgate/internal/config"
	"github.com/ericfisherdev/roomgate/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLogger := logger.SetupDefault(cfg.GetLogFormat(), cfg.GetLogLevel(), os.Stdout)

	if cfg.JWTSecretGenerated() {
		appLogger.Warn("JWT_SECRET not set, using a random secret; sessions will not survive a restart")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	startupCtx, cancelStartup := context.WithTimeout(ctx, 10*time.Second)
	application, err := app.New(startupCtx, cfg, app.Options{
		Version: version,
		Logger:  appLogger,
	})
	cancelStartup()
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer application.Close()

	server := &http.Server{
		Addr:         ":" + cfg.GetServerPort(),
		Handler:      application.Router,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  cfg.GetIdleTimeout(),
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting server", append([]any{"addr", server.Addr, "version", version}, application.Describe()...)...)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	appLogger.Info("Server stopped")
	return nil
}
