package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sitedash/internal/apiclient"
	"sitedash/internal/config"
	"sitedash/internal/credentials"
	"sitedash/internal/domain"
	"sitedash/internal/handler"
	"sitedash/internal/messaging"
	"sitedash/internal/middleware"
	"sitedash/internal/observability"
	"sitedash/internal/repository/memory"
	"sitedash/internal/repository/postgres"
	"sitedash/internal/repository/redis"
	"sitedash/internal/security"
	"sitedash/internal/service"
	"sitedash/internal/websocket"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting dashboard web tier",
		slog.String("environment", cfg.Environment),
		slog.String("backend", cfg.BackendURL),
		slog.String("state_store", cfg.StateStore))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handler.Checker{}

	repo, closeRepo, err := openStateStore(ctx, cfg, checks)
	if err != nil {
		slog.Error("failed to open session state store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeRepo()

	client, err := apiclient.NewClient(cfg.BackendURL, apiclient.WithTimeout(cfg.BackendTimeout))
	if err != nil {
		slog.Error("invalid backend configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	checks["backend"] = handler.CheckBackend(client)

	fp := security.NewFingerprinter(cfg.SessionSecret)
	registry := service.NewSessionRegistry(repo, fp)
	go registry.Run(ctx)

	hub := websocket.NewHub()
	go func() {
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	observers := []service.Observer{registry, hub}

	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		events := messaging.NewEventPublisher(rmq)
		go events.Run(ctx)
		observers = append(observers, events)
		checks["rabbitmq"] = handler.CheckRabbitMQ(rmq)
		slog.Info("session events publishing to rabbitmq")
	}

	cookies := credentials.CookieOptions{Secure: cfg.CookieSecure}
	sessions := handler.NewSessionHandler(handler.SessionHandlerConfig{
		Client:        client,
		Fingerprinter: fp,
		Observers:     observers,
		Cookies:       cookies,
		DeviceName:    cfg.DeviceName,
	})

	proxy, err := handler.NewAPIProxy(client, cookies, "/api")
	if err != nil {
		slog.Error("failed to build api proxy", slog.String("error", err.Error()))
		os.Exit(1)
	}

	authLimiter := middleware.NewRateLimiter(5, 10)
	defer authLimiter.Stop()

	router := handler.NewRouter(handler.RouterConfig{
		Sessions:       sessions,
		Events:         handler.NewEventsHandler(hub, sessions.Snapshot, cfg.AllowedOrigins),
		Resolver:       registry,
		Proxy:          proxy,
		Ready:          handler.Ready(checks),
		Metrics:        promhttp.Handler(),
		AllowedOrigins: cfg.AllowedOrigins,
		CookieSecure:   cfg.CookieSecure,
		CSRF:           security.NewTokenManager(),
		AuthLimiter:    authLimiter,
		OpenAPI:        middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPIValidation),
		Guard:          middleware.DefaultGuardConfig(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("web tier listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

// openStateStore connects the configured session state repository and
// registers its readiness check.
func openStateStore(ctx context.Context, cfg *config.Config, checks map[string]handler.Checker) (domain.SessionStateRepository, func(), error) {
	switch cfg.StateStore {
	case config.StateStorePostgres:
		connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
		defer connCancel()

		db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(connCtx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		repo, err := postgres.NewSessionStateRepository(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		checks["state_store"] = handler.CheckDatabase(db)
		slog.Info("connected to postgresql")
		return repo, closeAll(repo.Close, db), nil

	case config.StateStoreRedis:
		connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
		defer connCancel()

		client, err := redis.Connect(connCtx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, nil, err
		}
		checks["state_store"] = handler.CheckRedis(client)
		slog.Info("connected to redis", slog.String("addr", cfg.RedisAddr))
		return redis.NewSessionStateRepository(client), func() { client.Close() }, nil

	default:
		slog.Warn("session state kept in memory; sessions are lost on restart")
		return memory.NewSessionStateRepository(), func() {}, nil
	}
}

func closeAll(closeRepo func() error, db *sql.DB) func() {
	return func() {
		if err := closeRepo(); err != nil {
			slog.Warn("failed to close statements", slog.String("error", err.Error()))
		}
		db.Close()
	}
}
