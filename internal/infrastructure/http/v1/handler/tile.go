package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/tileproxy/internal/usecase"
)

// Tile serves GET /tiles/:z/:x/:y(.png). For valid coordinates the
// response is always an image: remote failures fall through to local
// synthesis inside the pipeline, so only a store write failure surfaces
// as 500.
func (h *Handler) Tile(c *gin.Context) {
	strZ := c.Param("z")
	strX := c.Param("x")
	strY := strings.TrimSuffix(c.Param("y"), ".png")

	z, err := strconv.Atoi(strZ)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "z should be integer",
		})
		return
	}

	x, err := strconv.Atoi(strX)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "x should be integer",
		})
		return
	}

	y, err := strconv.Atoi(strY)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "y should be integer",
		})
		return
	}

	data, err := h.tileUseCase.GetTile(c.Request.Context(), z, x, y)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCoordinate) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		h.RespondWithInternalServerError(c)
		return
	}

	// The server-side cache is authoritative. Browser caching would mask
	// cache-clear operations, so it is disabled outright.
	c.Header("Cache-Control", "no-cache, no-store, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Data(http.StatusOK, "image/png", data)
}
