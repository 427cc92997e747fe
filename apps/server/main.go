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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tilsley/s3mirror/apps/server/internal/bootstrap"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror/handler"
	"github.com/tilsley/s3mirror/apps/server/internal/platform/config"
	"github.com/tilsley/s3mirror/apps/server/internal/platform/telemetry"
	"github.com/tilsley/s3mirror/apps/server/internal/platform/validation"
	"github.com/tilsley/s3mirror/pkg/logging"
	"github.com/tilsley/s3mirror/schemas"
)

func main() {
	log := logging.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("MIRROR_CONFIG"))
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	// --- Observability ---

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.OTel.Enabled,
		ServiceName: cfg.OTel.ServiceName,
		Endpoint:    cfg.OTel.Endpoint,
	})
	if err != nil {
		log.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "error", err)
		}
	}()

	// --- Service ---

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Error("bootstrap failed", "error", err)
		os.Exit(1) //nolint:gocritic // nothing to flush before exit
	}
	defer app.Close()

	// --- HTTP ---

	validator, err := validation.New(schemas.OpenAPISpec)
	if err != nil {
		log.Error("openapi validation middleware init failed", "error", err)
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(cfg.OTel.ServiceName), validator)
	handler.RegisterRoutes(router, app.Service, app.Runs, handler.Config{
		WebhookSecret: cfg.GitHub.WebhookSecret,
		RunTimeout:    cfg.Sync.Timeout,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Sync.Timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("starting s3mirror", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
	log.Info("stopped")
}
