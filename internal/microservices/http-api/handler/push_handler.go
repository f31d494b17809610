package handler

import (
	"context"
	"net/http"

	"notifyhub/internal/microservices/http-api/dto"
	"notifyhub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

type PushHandler struct {
	svc service.PushSubscriptionService
}

func NewPushHandler(svc service.PushSubscriptionService) *PushHandler {
	return &PushHandler{svc: svc}
}

func (h *PushHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/vapid-public-key", h.PublicKey)
	rg.GET("/subscriptions", h.List)
	rg.POST("/subscriptions", h.Subscribe)
	rg.DELETE("/subscriptions", h.Unsubscribe)
}

func (h *PushHandler) PublicKey(c *gin.Context) {
	key := h.svc.VAPIDPublicKey()
	if key == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": key})
}

func (h *PushHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	subs, err := h.svc.List(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]dto.PushSubscriptionResponse, 0, len(subs))
	for i := range subs {
		items = append(items, dto.NewPushSubscriptionResponse(&subs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": items})
}

// Subscribe stores the browser's subscription for the caller
func (h *PushHandler) Subscribe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.PushSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	sub, err := h.svc.Register(ctx, userID, req.ToModel(c.Request.UserAgent()))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewPushSubscriptionResponse(sub))
}

func (h *PushHandler) Unsubscribe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.Unregister(ctx, userID, req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
