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

	"github.com/joho/godotenv"

	httpadapter "github.com/aurawell/companion-backend/internal/adapters/http"
	"github.com/aurawell/companion-backend/internal/bootstrap"
	"github.com/aurawell/companion-backend/internal/config"
	"github.com/aurawell/companion-backend/internal/observability/logging"
	"github.com/aurawell/companion-backend/internal/observability/metrics"
)

const serviceName = "companion-api"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.Knowledge,
		app.Conversation,
		app.QA,
		app.Suggestions,
		app.Queue,
		metrics.NewHTTPServerMetrics(serviceName),
		httpadapter.Config{
			ServiceName:    serviceName,
			RateLimitRPS:   float64(cfg.RateLimitRPS),
			RateLimitBurst: cfg.RateLimitBurst,
			TrustProxy:     cfg.TrustProxy,
		},
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_error", "error", err)
	}
}
