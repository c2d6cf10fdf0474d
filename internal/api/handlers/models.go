package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/VertexProxyAPI/internal/catalog"
)

// Models serves the aggregated model listing in the OpenAI list shape.
func (h *Handler) Models(c *gin.Context) {
	models, err := h.catalog.List(c.Request.Context(), h.cfg())
	if err != nil {
		writeAuthError(c, err)
		return
	}
	if models == nil {
		models = []catalog.Model{}
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": models})
}
