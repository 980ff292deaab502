package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/services"
)

const maxWebhookBody = 5 << 20

// WebhookController receives Gitea deliveries
type WebhookController struct {
	webhookService *services.WebhookService
}

func NewWebhookController(webhookService *services.WebhookService) *WebhookController {
	return &WebhookController{webhookService: webhookService}
}

// GiteaPush handles POST /webhooks/gitea. The raw body is needed for the
// signature check, so it is read before any decoding.
func (c *WebhookController) GiteaPush(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBody))
	if err != nil {
		respondBindError(ctx, err)
		return
	}

	result, err := c.webhookService.HandleGiteaPush(
		ctx.Request.Context(),
		ctx.GetHeader("X-Gitea-Event"),
		body,
		ctx.GetHeader("X-Gitea-Signature"),
	)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}
