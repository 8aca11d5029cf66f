package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/devlinkhq/marketplace-backend/internal/http/handlers/common"
	"github.com/devlinkhq/marketplace-backend/internal/logger"
	"github.com/devlinkhq/marketplace-backend/internal/service"
)

// Stripe caps event payloads at 64KB; anything larger is not ours.
const maxWebhookBody = 65536

type WebhookHandler struct {
	webhooks      *service.WebhookService
	signingSecret string
}

func NewWebhookHandler(webhooks *service.WebhookService, signingSecret string) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, signingSecret: signingSecret}
}

// HandleStripe POST /webhooks/stripe
//
// Signature verification happens before anything else; an unverifiable
// request is rejected without touching the database. Processing errors
// return 500 so the processor retries the delivery.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		common.RespondBadRequest(c, "could not read request body")
		return
	}

	event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.signingSecret)
	if err != nil {
		logger.Log.WithError(err).Warn("webhook signature verification failed")
		common.RespondError(c, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := h.webhooks.ProcessEvent(c.Request.Context(), event.ID, string(event.Type), event.Data.Raw); err != nil {
		logger.Log.WithError(err).WithField("event_id", event.ID).
			Error("webhook processing failed")
		common.RespondError(c, http.StatusInternalServerError, "processing failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
