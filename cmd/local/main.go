package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boogy/health-journal/pkg/handler"
)

// Settings for the local server
type ServerSettings struct {
	Port       int
	ConfigPath string
	LogLevel   string
}

func main() {
	settings := parseCliFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap, err := handler.NewBootstrap(ctx)
	if err != nil {
		slog.Error("Failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer bootstrap.Cleanup()

	port := bootstrap.Config.Server.Port
	if settings.Port != 0 {
		port = settings.Port
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           bootstrap.Router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()

		slog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("Starting local development server",
		slog.Int("port", port),
		slog.String("tokenEndpoint", fmt.Sprintf("http://localhost:%d%s", port, bootstrap.Config.Server.TokenPath)),
		slog.String("healthEndpoint", fmt.Sprintf("http://localhost:%d%s", port, handler.HealthPath)))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", slog.String("error", err.Error()))
		bootstrap.Cleanup()
		os.Exit(1)
	}

	slog.Info("Server stopped")
}

func parseCliFlags() ServerSettings {
	settings := ServerSettings{}

	flag.IntVar(&settings.Port, "port", 0, "Port to listen on (overrides server.port)")
	flag.StringVar(&settings.ConfigPath, "config", "", "Path to config file directory")
	flag.StringVar(&settings.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	flag.Parse()

	// Flags are passed on through the environment the bootstrap reads
	if settings.ConfigPath != "" {
		if err := os.Setenv("CONFIG_PATH", settings.ConfigPath); err != nil {
			slog.Error("Error setting CONFIG_PATH environment variable", "error", err)
		}
	}
	if settings.LogLevel != "" {
		if err := os.Setenv("LOG_LEVEL", settings.LogLevel); err != nil {
			slog.Error("Error setting LOG_LEVEL environment variable", "error", err)
		}
	}

	return settings
}
