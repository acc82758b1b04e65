package router

import (
	"github.com/gin-gonic/gin"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http/handler/webhook"
)

func WebhookRouter(router *gin.RouterGroup, handler *webhook.LemonSqueezyWebhookHandler, limit gin.HandlerFunc) {
	router.POST("", limit, handler.HandleEvent)
}
