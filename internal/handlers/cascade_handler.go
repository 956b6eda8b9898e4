package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"cascade-engine/internal/repository"
)

type CascadeHandler struct {
	repo *repository.Repository
}

func NewCascadeHandler(repo *repository.Repository) *CascadeHandler {
	return &CascadeHandler{repo: repo}
}

// GetCascades returns cascades newest first with optional status filter
func (h *CascadeHandler) GetCascades(c *gin.Context) {
	status := strings.ToUpper(c.Query("status"))
	limitInt, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offsetInt, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limitInt <= 0 || limitInt > 100 {
		limitInt = 20
	}
	if offsetInt < 0 {
		offsetInt = 0
	}

	cascades, err := h.repo.ListCascades(c.Request.Context(), status, limitInt, offsetInt)
	if err != nil {
		log.Error().Err(err).Msg("failed to list cascades")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cascades"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cascades,
		"count":   len(cascades),
	})
}

// GetCascadeByID returns one cascade with effects and relationships
func (h *CascadeHandler) GetCascadeByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cascade id"})
		return
	}

	cascade, err := h.repo.GetCascade(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cascade not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cascade"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cascade,
	})
}
