package handler

import (
	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's id in the context.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractCredential(c.Request)
		if token == "" {
			h.fail(c, apperr.ErrCredentialMissing)
			return
		}
		userID, err := h.Verifier.Verify(token)
		if err != nil {
			h.fail(c, apperr.ErrCredentialInvalid)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
