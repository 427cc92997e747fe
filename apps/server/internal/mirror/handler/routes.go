package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// DefaultRunTimeout bounds one reconciliation when Config leaves it unset.
const DefaultRunTimeout = 5 * time.Minute

// Config tunes the HTTP surface.
type Config struct {
	// WebhookSecret, when set, is required to sign GitHub webhook deliveries.
	WebhookSecret string
	RunTimeout    time.Duration
}

// Handler translates HTTP requests into calls on the mirror.Service.
type Handler struct {
	svc     *mirror.Service
	runs    mirror.RunStore
	secret  []byte
	timeout time.Duration
	log     *slog.Logger
}

// RegisterRoutes mounts the mirror API onto the given Gin engine.
func RegisterRoutes(r *gin.Engine, svc *mirror.Service, runs mirror.RunStore, cfg Config, log *slog.Logger) {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	h := &Handler{
		svc:     svc,
		runs:    runs,
		secret:  []byte(cfg.WebhookSecret),
		timeout: cfg.RunTimeout,
		log:     log,
	}

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Inbound change notifications
	r.POST("/webhooks/github", h.GitHubWebhook)
	r.POST("/events/sns", h.SNS)

	// Operator API
	r.POST("/reconcile", h.ReconcileCommit)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)
	r.POST("/runs/:id/retry", h.RetryRun)
}
