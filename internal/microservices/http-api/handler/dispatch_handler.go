package handler

import (
	"context"
	"net/http"
	"time"

	"notifyhub/internal/microservices/http-api/dto"
	"notifyhub/internal/microservices/http-api/middleware"
	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

// delivery is synchronous, so these routes get more time than the default
const (
	dispatchTimeout     = 30 * time.Second
	announcementTimeout = 5 * time.Minute
)

type DispatchHandler struct {
	svc service.Dispatcher
}

func NewDispatchHandler(svc service.Dispatcher) *DispatchHandler {
	return &DispatchHandler{svc: svc}
}

func (h *DispatchHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/dispatch", middleware.RequireRole(models.RoleAdmin, models.RoleService), h.Dispatch)
	rg.POST("/announcements", middleware.RequireAdmin(), h.Announce)
}

// Dispatch sends one notification to one recipient
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	var req dto.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dispatch := req.ToService()
	if dispatch.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dispatchTimeout)
	defer cancel()

	result, err := h.svc.Dispatch(ctx, dispatch)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewDispatchResponse(result))
}

// Announce fans an announcement out to an audience
func (h *DispatchHandler) Announce(c *gin.Context) {
	var req dto.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), announcementTimeout)
	defer cancel()

	result, err := h.svc.DispatchAnnouncement(ctx, req.ToService())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := dto.NewDispatchResponse(result)
	resp.EntryIDs = nil
	c.JSON(http.StatusOK, resp)
}
