// Package handler holds the gin handlers for the REST surface and the
// WebSocket upgrade endpoints.
package handler

import (
	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/chathub"
	"socialdm/backend/internal/privacy"
	"socialdm/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler carries the collaborators every route needs.
type Handler struct {
	Store    storage.Storage
	Privacy  privacy.Checker
	Gateway  *chathub.Gateway
	Verifier chathub.TokenVerifier

	log         zerolog.Logger
	upgrader    websocket.Upgrader
	pageSize    int
	recentRooms int
}

// Options tune the handler. Zero values fall back to the store defaults.
type Options struct {
	AllowedOrigins   []string
	MessagePageSize  int
	RecentRoomsLimit int
}

func NewHandler(store storage.Storage, checker privacy.Checker, gw *chathub.Gateway, verifier chathub.TokenVerifier, logger zerolog.Logger, opts Options) *Handler {
	if opts.MessagePageSize <= 0 {
		opts.MessagePageSize = storage.DefaultPageSize
	}
	if opts.RecentRoomsLimit <= 0 {
		opts.RecentRoomsLimit = chathub.DefaultRecentRooms
	}
	return &Handler{
		Store:       store,
		Privacy:     checker,
		Gateway:     gw,
		Verifier:    verifier,
		log:         logger.With().Str("component", "http").Logger(),
		upgrader:    newUpgrader(opts.AllowedOrigins),
		pageSize:    opts.MessagePageSize,
		recentRooms: opts.RecentRoomsLimit,
	}
}

// fail writes the error response for err and aborts the chain.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": apperr.PublicMessage(err),
		"code":  apperr.CodeOf(err),
	})
}
