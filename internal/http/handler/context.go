package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/paycontext"
)

type ContextHandler struct {
	reader *paycontext.Reader
}

func NewContextHandler(reader *paycontext.Reader) *ContextHandler {
	return &ContextHandler{reader: reader}
}

// Resource returns the payment context resource document.
func (h *ContextHandler) Resource(c *gin.Context) {
	c.JSON(http.StatusOK, h.reader.Resource())
}

// Events returns buffered events filtered by the optional status and limit query parameters.
func (h *ContextHandler) Events(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > model.MaxContextEvents {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(model.MaxContextEvents)})
			return
		}
		limit = n
	}

	events := h.reader.Query(c.Query("status"), limit)
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
