package handler

import (
	"net/http"
	"strconv"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/chathub"
	"socialdm/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type startConversationRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// StartConversation is POST /conversations. Starting a thread the privacy
// gate would not let the caller post into is refused up front.
func (h *Handler) StartConversation(c *gin.Context) {
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.ErrMissingField("user_id"))
		return
	}
	ctx := c.Request.Context()
	me := currentUser(c)

	if req.UserID == me {
		h.fail(c, apperr.ErrSelfConversation)
		return
	}
	if _, err := h.Store.GetUserByID(ctx, req.UserID); err != nil {
		h.fail(c, err)
		return
	}

	decision, err := h.Privacy.CanMessage(ctx, me, req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !decision.Allowed {
		h.fail(c, apperr.ErrPrivacyDenied(decision.Reason))
		return
	}

	conv, created, err := h.Store.GetOrCreateConversation(ctx, me, req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"conversation": conv, "created": created})
}

// ListConversations is GET /conversations.
func (h *Handler) ListConversations(c *gin.Context) {
	limit := h.recentRooms
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.fail(c, apperr.InvalidArg("limit must be a positive integer"))
			return
		}
		limit = n
	}

	rooms, err := chathub.SummarizeRooms(c.Request.Context(), h.Store, currentUser(c), limit, h.log)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// ListMessages is GET /conversations/:id/messages?before=&page_size=.
func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	me := currentUser(c)

	var before *uint
	if v := c.Query("before"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			h.fail(c, apperr.InvalidArg("before must be a message id"))
			return
		}
		before = models.Uint(uint(id))
	}
	pageSize := h.pageSize
	if v := c.Query("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.fail(c, apperr.InvalidArg("page_size must be a positive integer"))
			return
		}
		pageSize = n
	}

	conv, err := h.Store.GetConversationForUser(ctx, c.Param("id"), me)
	if err != nil {
		h.fail(c, err)
		return
	}
	page, err := h.Store.ListMessagesForUser(ctx, conv.ID, me, before, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	profiles := make(map[string]*models.User, 2)
	for _, id := range conv.Participants() {
		if u, err := h.Store.GetUserByID(ctx, id); err == nil {
			profiles[id] = u
		}
	}
	out := make([]*models.MessagePayload, 0, len(page.Messages))
	for i := range page.Messages {
		m := &page.Messages[i]
		out = append(out, models.NewMessagePayload(m, profiles[m.SenderID]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out, "has_more": page.HasMore})
}

// DeleteConversation is DELETE /conversations/:id: delete for the caller
// only. Repeating it is harmless.
func (h *Handler) DeleteConversation(c *gin.Context) {
	purged, err := h.Store.MarkDeletedForUser(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "purged": purged})
}

// MarkConversationRead is POST /conversations/:id/read.
func (h *Handler) MarkConversationRead(c *gin.Context) {
	ctx := c.Request.Context()
	me := currentUser(c)

	conv, err := h.Store.GetConversationForUser(ctx, c.Param("id"), me)
	if err != nil {
		h.fail(c, err)
		return
	}
	n, err := h.Store.MarkConversationRead(ctx, conv.ID, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	if n > 0 {
		h.Gateway.NotifyRoomRead(ctx, me, conv.ID)
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// MarkMessageRead is POST /messages/:id/read.
func (h *Handler) MarkMessageRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.InvalidArg("invalid message id"))
		return
	}
	changed, err := h.Gateway.MarkMessageRead(c.Request.Context(), uint(id), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

// MarkAllRead is POST /messages/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	ctx := c.Request.Context()
	me := currentUser(c)
	n, err := h.Store.MarkAllRead(ctx, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	if n > 0 {
		h.Gateway.NotifyAllRead(ctx, me)
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// UnreadCount is GET /unread-count: conversations with unread messages.
func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.Store.UnreadConversationCount(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

type pushTokenRequest struct {
	Token    string `json:"token" binding:"required"`
	Provider string `json:"provider"`
}

// RegisterPushToken is POST /push-tokens.
func (h *Handler) RegisterPushToken(c *gin.Context) {
	var req pushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.ErrMissingField("token"))
		return
	}
	if err := h.Store.SavePushToken(c.Request.Context(), currentUser(c), req.Provider, req.Token); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
