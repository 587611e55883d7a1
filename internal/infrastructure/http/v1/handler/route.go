package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/dto"
)

// SetRoute replaces the route polyline drawn on synthesized tiles. The
// route supplier is an external collaborator; the whole route is sent
// each time.
func (h *Handler) SetRoute(c *gin.Context) {
	var req dto.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "failed to decode request body",
		})
		return
	}

	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	h.tileUseCase.SetRoute(req.Points)

	h.RespondWithJSON(c, http.StatusOK, "route updated", nil)
}

func (h *Handler) ClearRoute(c *gin.Context) {
	h.tileUseCase.ClearRoute()

	h.RespondWithJSON(c, http.StatusOK, "route cleared", nil)
}
