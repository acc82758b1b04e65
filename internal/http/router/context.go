package router

import (
	"github.com/gin-gonic/gin"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http/handler"
)

func ContextRouter(router *gin.RouterGroup, handler *handler.ContextHandler) {
	router.GET("", handler.Resource)
	router.GET("/events", handler.Events)
}
