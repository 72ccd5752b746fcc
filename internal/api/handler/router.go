package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires every route onto a fresh gin engine.
func (h *Handler) Router(health map[string]Pinger) *gin.Engine {
	r := gin.New()
	r.Use(Metrics(), AccessLog(h.log), gin.Recovery())

	r.GET("/health", h.Health(health))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoints authorize after the upgrade.
	r.GET("/ws", h.ServeUnbound)
	r.GET("/ws/rooms/:id", h.ServeRoom)

	api := r.Group("/api", h.RequireAuth())
	{
		api.POST("/conversations", h.StartConversation)
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id/messages", h.ListMessages)
		api.DELETE("/conversations/:id", h.DeleteConversation)
		api.POST("/conversations/:id/read", h.MarkConversationRead)
		api.POST("/messages/read-all", h.MarkAllRead)
		api.POST("/messages/:id/read", h.MarkMessageRead)
		api.GET("/unread-count", h.UnreadCount)
		api.POST("/push-tokens", h.RegisterPushToken)
	}
	return r
}
