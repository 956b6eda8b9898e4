package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"cascade-engine/internal/services"
)

type ResolutionHandler struct {
	queue *services.ResolutionQueueService
}

func NewResolutionHandler(queue *services.ResolutionQueueService) *ResolutionHandler {
	return &ResolutionHandler{queue: queue}
}

// GetStatus returns queue counts and whether a sweep is active
func (h *ResolutionHandler) GetStatus(c *gin.Context) {
	status, err := h.queue.Status(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to read queue status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch queue status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    status,
	})
}

// ResolveManually settles an event synchronously (admin only)
func (h *ResolutionHandler) ResolveManually(c *gin.Context) {
	var req struct {
		Event   string `json:"event" binding:"required"`
		Outcome string `json:"outcome" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.queue.ResolveManually(c.Request.Context(), req.Event, req.Outcome)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidOutcome):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found in resolution queue"})
		default:
			log.Error().Err(err).Str("event", req.Event).Msg("manual resolution failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve event"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}
