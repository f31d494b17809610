package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"notifyhub/internal/microservices/http-api/dto"
	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"
	"notifyhub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

const sweepTimeout = 2 * time.Minute

// OutboxHandler serves the admin delivery health views. Routes are mounted behind RequireAdmin.
type OutboxHandler struct {
	svc service.OutboxService
}

func NewOutboxHandler(svc service.OutboxService) *OutboxHandler {
	return &OutboxHandler{svc: svc}
}

func (h *OutboxHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/stats", h.Stats)
	rg.POST("/retry", h.Sweep)
	rg.POST("/:id/retry", h.Retry)
}

func (h *OutboxHandler) List(c *gin.Context) {
	filter := repository.OutboxFilter{
		Status:  models.OutboxStatus(c.Query("status")),
		Channel: models.Channel(c.Query("channel")),
		UserID:  c.Query("user_id"),
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	entries, err := h.svc.List(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]dto.OutboxEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewOutboxEntryResponse(&entries[i]))
	}
	c.JSON(http.StatusOK, gin.H{"entries": items})
}

func (h *OutboxHandler) Stats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	stats, err := h.svc.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// Sweep runs one retry pass now instead of waiting for the schedule
func (h *OutboxHandler) Sweep(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sweepTimeout)
	defer cancel()

	result, err := h.svc.Sweep(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *OutboxHandler) Retry(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dispatchTimeout)
	defer cancel()

	entry, err := h.svc.RetryEntry(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOutboxEntryResponse(entry))
}
