package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	svix "github.com/svix/svix-webhooks/go"

	"socialdraft/internal/api/middleware"
	"socialdraft/internal/identity"
)

const maxWebhookBodyBytes = 1 << 20

// WebhookHandler receives identity-provider lifecycle events. Payloads are
// only trusted after the svix signature (id/timestamp/signature header
// triplet over the shared secret) checks out.
type WebhookHandler struct {
	identitySvc *identity.Service
	webhook     *svix.Webhook
	logger      *slog.Logger
}

// NewWebhookHandler constructs the handler. An empty secret leaves the
// handler unconfigured; it then rejects every delivery.
func NewWebhookHandler(identitySvc *identity.Service, secret string, logger *slog.Logger) (*WebhookHandler, error) {
	h := &WebhookHandler{identitySvc: identitySvc, logger: logger}
	if secret != "" {
		wh, err := svix.NewWebhook(secret)
		if err != nil {
			return nil, err
		}
		h.webhook = wh
	}
	return h, nil
}

// HandleIdentityEvent verifies and mirrors one lifecycle event.
// Verification failures never mutate state.
func (h *WebhookHandler) HandleIdentityEvent(c *gin.Context) {
	logger := middleware.LoggerFromContext(c)

	if h.webhook == nil {
		Internal(c, "identity webhook secret is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		BadRequest(c, "failed to read body")
		return
	}

	if err := h.webhook.Verify(body, c.Request.Header); err != nil {
		logger.Info("webhook signature verification failed", slog.Any("error", err))
		BadRequest(c, "invalid webhook signature")
		return
	}

	var evt identity.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		BadRequest(c, "invalid event payload")
		return
	}

	if err := h.identitySvc.ApplyEvent(c.Request.Context(), evt); err != nil {
		switch {
		case errors.Is(err, identity.ErrUnhandledEventType):
			BadRequest(c, "unhandled event type")
		case errors.Is(err, identity.ErrMissingEmail):
			BadRequest(c, "no email found")
		default:
			logger.Error("apply identity event failed",
				slog.String("event_type", evt.Type),
				slog.Any("error", err),
			)
			Internal(c, "failed to process event")
		}
		return
	}

	logger.Info("identity event processed", slog.String("event_type", evt.Type))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
