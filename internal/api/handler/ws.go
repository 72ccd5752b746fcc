package handler

import (
	"net/http"
	"net/url"
	"strings"

	"socialdm/backend/internal/auth"
	"socialdm/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// newUpgrader accepts any origin when allowed is empty, which is what local
// development and native clients need.
func newUpgrader(allowed []string) websocket.Upgrader {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(set) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return set[strings.ToLower(u.Scheme+"://"+u.Host)]
		},
	}
}

// ServeUnbound is GET /ws: the connection receives personal notifications
// only and names a room per command.
func (h *Handler) ServeUnbound(c *gin.Context) {
	h.serveWS(c, "")
}

// ServeRoom is GET /ws/rooms/:id.
func (h *Handler) ServeRoom(c *gin.Context) {
	h.serveWS(c, c.Param("id"))
}

// serveWS upgrades first and authorizes afterwards, so failures reach the
// client as close codes rather than HTTP statuses.
func (h *Handler) serveWS(c *gin.Context, roomID string) {
	credential := auth.ExtractCredential(c.Request)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	chathub.ServeConn(c.Request.Context(), h.Gateway, conn, credential, roomID)
}
