// Package control is the local HTTP surface of a running client:
// health, per-room subscription stats and prometheus metrics.
package control

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-client/internal/archive"
	"chat-client/internal/middleware"
	"chat-client/internal/observability"
	"chat-client/internal/session"
)

// StatusReporter supplies the current room subscription states.
type StatusReporter interface {
	Snapshot() []session.Status
}

// RoomControl exposes the per-room recovery action.
type RoomControl interface {
	Get(roomID string) (*session.RoomSession, bool)
}

// RecentArchive serves archived message history. Nil when archiving is
// not configured.
type RecentArchive interface {
	Recent(ctx context.Context, roomID string, limit int) ([]archive.Row, error)
}

// NewRouter assembles the control router.
func NewRouter(reporter StatusReporter, rooms RoomControl, recent RecentArchive, token string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware("chat-client"), observability.HTTPMetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guarded := r.Group("/", middleware.TokenAuth(token))
	guarded.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": reporter.Snapshot()})
	})
	guarded.POST("/rooms/:room_id/reconnect", func(c *gin.Context) {
		roomID := c.Param("room_id")
		s, ok := rooms.Get(roomID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not subscribed"})
			return
		}
		s.Reconnect()
		c.JSON(http.StatusOK, gin.H{"room_id": roomID, "state": "reconnecting"})
	})
	guarded.GET("/rooms/:room_id/recent", func(c *gin.Context) {
		if recent == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "archive not configured"})
			return
		}
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = n
		}
		roomID := c.Param("room_id")
		rows, err := recent.Recent(c.Request.Context(), roomID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": rows})
	})

	return r
}
