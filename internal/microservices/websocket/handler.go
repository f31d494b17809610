package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"notifyhub/internal/metrics"
	"notifyhub/internal/microservices/http-api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// NewUpgrader accepts browser origins from the CORS allow-list. An empty list or "*"
// allows any origin, and requests without an Origin header (non-browser clients) pass.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || slices.Contains(allowedOrigins, origin)
		},
	}
}

// WSHandler upgrades an authenticated request and starts the client pumps.
// The auth middleware must run first.
func WSHandler(mux *Multiplexer, authorizer Authorizer, upgrader *websocket.Upgrader, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		userID := c.GetString(middleware.ContextUserID)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}

		// Upgrade writes its own error response
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket_upgrade_failed", "user_id", userID, "error", err)
			return
		}

		client := NewClient(uuid.NewString(), userID, conn, mux, authorizer, logger)
		metrics.WebsocketConnections.Inc()
		logger.Info("websocket_connected", "client_id", client.ID(), "user_id", userID)

		// the request context ends with the handler, so pumps get their own lifetime
		go client.WritePump()
		go client.ReadPump(context.WithoutCancel(c.Request.Context()))
	}
}
