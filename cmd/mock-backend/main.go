package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"sitedash/internal/config"
	"sitedash/internal/mockbackend"
	"sitedash/internal/observability"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.IsProduction() {
		slog.Error("the mock backend must not run in production")
		os.Exit(1)
	}

	backend, err := mockbackend.New(mockbackend.Config{
		JWTSecret:        cfg.MockJWTSecret,
		GoogleClientID:   cfg.GoogleClientID,
		FacebookClientID: cfg.FacebookClientID,
		RedirectBase:     cfg.OAuthRedirectBase,
	})
	if err != nil {
		slog.Error("failed to start mock backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Same layout as the real service: everything under /api.
	r := chi.NewRouter()
	r.Mount("/api", backend.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.MockBackendPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("mock backend listening",
			slog.String("port", cfg.MockBackendPort),
			slog.String("oauth_redirect_base", cfg.OAuthRedirectBase))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}
	slog.Info("mock backend stopped")
}
