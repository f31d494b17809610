package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"notifyhub/internal/microservices/http-api/middleware"
	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

const requestTimeout = 5 * time.Second

// respondError maps service sentinels onto status codes. Anything unrecognised is a 500 whose
// detail goes to the log, not the client.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "resource was modified, reload and retry"})
	default:
		slog.Error("request_failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
	_ = c.Error(err)
}

// currentUser returns the authenticated profile id, writing a 401 when it is missing.
func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return "", false
	}
	return userID, true
}

// roleParam reads ?role=, defaulting to the token's role.
func roleParam(c *gin.Context) models.Role {
	if r := c.Query("role"); r != "" {
		return models.Role(r)
	}
	return models.Role(c.GetString(middleware.ContextRole))
}
