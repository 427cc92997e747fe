package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	gogithub "github.com/google/go-github/v75/github"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// GitHubWebhook handles POST /webhooks/github.
// The signature is checked only when a webhook secret is configured.
func (h *Handler) GitHubWebhook(c *gin.Context) {
	payload, err := gogithub.ValidatePayload(c.Request, h.secret)
	if err != nil {
		status := http.StatusBadRequest
		if len(h.secret) > 0 {
			status = http.StatusUnauthorized
		}
		h.log.Warn("rejected webhook delivery", "delivery", c.GetHeader(mirror.DeliveryAttr), "error", err)
		c.JSON(status, gin.H{"error": err.Error(), "kind": mirror.KindMalformedEvent})
		return
	}

	attrs := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		attrs[name] = c.Request.Header.Get(name)
	}
	h.reconcile(c, mirror.Event{Attributes: attrs, Body: payload})
}

func (h *Handler) reconcile(c *gin.Context, ev mirror.Event) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	run, err := h.svc.Reconcile(ctx, ev)
	h.writeResult(c, run, err)
}
