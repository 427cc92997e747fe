package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	gogithub "github.com/google/go-github/v75/github"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// SNS message types.
const (
	snsNotification             = "Notification"
	snsSubscriptionConfirmation = "SubscriptionConfirmation"
	snsUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// snsEnvelope is the JSON document SNS posts to an HTTP subscription.
type snsEnvelope struct {
	Type              string                  `json:"Type"`
	MessageID         string                  `json:"MessageId"`
	TopicArn          string                  `json:"TopicArn"`
	Message           string                  `json:"Message"`
	SubscribeURL      string                  `json:"SubscribeURL"`
	MessageAttributes map[string]snsAttribute `json:"MessageAttributes"`
}

type snsAttribute struct {
	Type  string `json:"Type"`
	Value string `json:"Value"`
}

// SNS handles POST /events/sns: a GitHub event relayed through an SNS topic,
// with the GitHub headers carried as message attributes. When a webhook secret
// is configured the relay must forward X-Hub-Signature-256 as an attribute.
// SNS posts with a text/plain content type, so the body is decoded directly.
func (h *Handler) SNS(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": mirror.KindMalformedEvent})
		return
	}
	var env snsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid SNS envelope: " + err.Error(), "kind": mirror.KindMalformedEvent})
		return
	}

	switch env.Type {
	case snsSubscriptionConfirmation, snsUnsubscribeConfirmation:
		// Subscriptions are confirmed manually by visiting SubscribeURL.
		h.log.Info("sns subscription message", "type", env.Type, "topic", env.TopicArn, "subscribeURL", env.SubscribeURL)
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
		return
	case snsNotification:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported SNS message type " + env.Type, "kind": mirror.KindMalformedEvent})
		return
	}

	ev := toEvent(env)
	if err := h.verifyRelayed(ev); err != nil {
		h.log.Warn("rejected sns delivery", "delivery", ev.Attr(mirror.DeliveryAttr), "topic", env.TopicArn, "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "kind": mirror.KindMalformedEvent})
		return
	}
	h.reconcile(c, ev)
}

// verifyRelayed checks the GitHub signature carried as a message attribute
// against the relayed payload. With no webhook secret configured it accepts
// every message.
func (h *Handler) verifyRelayed(ev mirror.Event) error {
	if len(h.secret) == 0 {
		return nil
	}
	sig := ev.Attr(gogithub.SHA256SignatureHeader)
	if sig == "" {
		sig = ev.Attr(gogithub.SHA1SignatureHeader)
	}
	if sig == "" {
		return errors.New("missing signature attribute " + gogithub.SHA256SignatureHeader)
	}
	return gogithub.ValidateSignature(sig, ev.Body, h.secret)
}

func toEvent(env snsEnvelope) mirror.Event {
	attrs := make(map[string]string, len(env.MessageAttributes)+1)
	for name, a := range env.MessageAttributes {
		attrs[name] = a.Value
	}
	ev := mirror.Event{Attributes: attrs, Body: []byte(env.Message)}
	if ev.Attr(mirror.DeliveryAttr) == "" && env.MessageID != "" {
		attrs[mirror.DeliveryAttr] = env.MessageID
	}
	return ev
}
