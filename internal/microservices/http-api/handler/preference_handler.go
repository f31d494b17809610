package handler

import (
	"context"
	"net/http"

	"notifyhub/internal/microservices/http-api/dto"
	"notifyhub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

type PreferenceHandler struct {
	svc service.PreferenceService
}

func NewPreferenceHandler(svc service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{svc: svc}
}

func (h *PreferenceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/preferences", h.Get)
	rg.PUT("/preferences", h.Update)
}

// Get returns the caller's preferences for ?role=, creating the defaults on first read
func (h *PreferenceHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	pref, err := h.svc.GetOrCreate(ctx, userID, roleParam(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPreferencesResponse(pref))
}

// Update overwrites the provided fields of the caller's preferences
func (h *PreferenceHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	role := roleParam(c)
	current, err := h.svc.GetOrCreate(ctx, userID, role)
	if err != nil {
		respondError(c, err)
		return
	}
	next := *current
	req.ApplyTo(&next)

	updated, err := h.svc.Update(ctx, userID, role, &next)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPreferencesResponse(updated))
}
