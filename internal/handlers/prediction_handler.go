package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"cascade-engine/internal/auth"
	"cascade-engine/internal/repository"
	"cascade-engine/internal/services"
)

type PredictionHandler struct {
	predictions *services.PredictionService
	repo        *repository.Repository
}

func NewPredictionHandler(predictions *services.PredictionService, repo *repository.Repository) *PredictionHandler {
	return &PredictionHandler{predictions: predictions, repo: repo}
}

// CreatePrediction records the authenticated user's prediction
func (h *PredictionHandler) CreatePrediction(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req services.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.UserID = userID

	prediction, err := h.predictions.Submit(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Target not found"})
		case errors.Is(err, services.ErrTierLocked):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrEventClosed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrInvalidOutcome), errors.Is(err, services.ErrInvalidPrediction):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Error().Err(err).Str("user_id", userID).Msg("failed to create prediction")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create prediction"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    prediction,
	})
}

// GetProgress returns a user's progression state
func (h *PredictionHandler) GetProgress(c *gin.Context) {
	progress, err := h.repo.GetUserProgress(c.Request.Context(), c.Param("userId"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User progress not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch progress"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    progress,
	})
}
