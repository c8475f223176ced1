// gatechat - whitelist-gated real-time chat relay
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/nvoronin/gatechat/internal/api"
	"github.com/nvoronin/gatechat/internal/chat"
	"github.com/nvoronin/gatechat/internal/config"
	"github.com/nvoronin/gatechat/internal/middleware"
	"github.com/nvoronin/gatechat/internal/notify"
	"github.com/nvoronin/gatechat/internal/store"
	"github.com/nvoronin/gatechat/internal/whitelist"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	wl := whitelist.New(cfg.WhitelistPath)
	if err := wl.Load(); err != nil {
		slog.Error("Failed to load whitelist", "error", err)
		os.Exit(1)
	}

	ledger, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize usage ledger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			slog.Error("Failed to close usage ledger", "error", closeErr)
		}
	}()

	if err := ledger.Ping(context.Background()); err != nil {
		slog.Error("Usage ledger health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Usage ledger connected")

	var sink notify.Sink = notify.NopSink{}
	var webhookSink *notify.WebhookSink
	if cfg.WebhookLogsURL != "" || cfg.WebhookChatURL != "" {
		webhookSink = notify.NewWebhookSink(cfg.WebhookLogsURL, cfg.WebhookChatURL, cfg.NotifyQueueSize)
		sink = webhookSink
		defer webhookSink.Close()
		slog.Info("Webhook notifications enabled",
			"logs", cfg.WebhookLogsURL != "", "chat", cfg.WebhookChatURL != "")
	} else {
		slog.Info("Webhook notifications disabled")
	}

	// Initialize the chat core.
	table := chat.NewConnectionTable()
	names := chat.NewNameRegistry()
	abuse := chat.NewAbuseGuard(cfg.LockoutThreshold, cfg.LockoutDuration)
	rate := chat.NewRateBudget(cfg.RateLimitMax, cfg.RateLimitWindow)
	history := chat.NewHistoryBuffer(cfg.HistoryLimit)
	gate := chat.NewAdmissionGate(wl, abuse, ledger, sink)
	router := chat.NewMessageRouter(table, rate, history, sink)
	sup := chat.NewSupervisor(table, names, gate, router, rate, history, sink)

	// Initialize handlers.
	wsHandler := chat.NewWebSocketHandler(sup, cfg.AllowedOrigin, cfg.IsDevelopment())
	adminHandler := api.NewHandler(wl, ledger, sup, cfg.WebhookLogsURL != "", cfg.WebhookChatURL != "")

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigin))

	adminHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Create server.
	// Note: WebSocket connections require no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
