package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/tileproxy/internal/usecase"
)

func (h *Handler) CacheStats(c *gin.Context) {
	stats, err := h.cacheUseCase.Stats()
	if err != nil {
		h.RespondWithInternalServerError(c)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "cache statistics", dto.StatsResponse{Stats: stats})
}

func (h *Handler) ClearCache(c *gin.Context) {
	if err := h.cacheUseCase.Clear(); err != nil {
		h.RespondWithInternalServerError(c)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "cache cleared", nil)
}

func (h *Handler) ClearCacheZoom(c *gin.Context) {
	zoom, err := strconv.Atoi(c.Param("level"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "level should be integer",
		})
		return
	}

	if err := h.cacheUseCase.ClearZoom(zoom); err != nil {
		if errors.Is(err, usecase.ErrInvalidZoom) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		h.RespondWithInternalServerError(c)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "cache zoom level cleared", nil)
}

// Preload starts a background bulk load and acknowledges immediately.
// Completion is observable through the status endpoint, the logs and
// subsequent stats calls.
func (h *Handler) Preload(c *gin.Context) {
	var req dto.PreloadRequest
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

	tiles, err := h.cacheUseCase.StartPreload(req.Bounds.ToSlippy(), req.MinZoom, req.MaxZoom)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrPreloadInProgress):
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
			})
		case errors.Is(err, usecase.ErrInvalidZoom), errors.Is(err, usecase.ErrInvalidBounds):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		default:
			h.RespondWithInternalServerError(c)
		}
		return
	}

	h.RespondWithJSON(c, http.StatusAccepted, "preload started", dto.PreloadResponse{Tiles: tiles})
}

func (h *Handler) PreloadStatus(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "preload status", h.cacheUseCase.Progress())
}
