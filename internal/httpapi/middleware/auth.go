package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/chat-capture/internal/auth"
	"github.com/suPer8Hu/chat-capture/internal/common"
)

const UserIDKey = "user_id"

// DevUserID is the user every request runs as when auth is disabled.
const DevUserID uint64 = 1

// AuthRequired checks the bearer token and stores its user id under
// UserIDKey.
func AuthRequired(secret string, disabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if disabled {
			c.Set(UserIDKey, DevUserID)
			c.Next()
			return
		}

		h := c.GetHeader("Authorization")
		tok, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(tok) == "" {
			common.Fail(c, http.StatusUnauthorized, 40100, "missing bearer token")
			return
		}

		uid, err := auth.ParseToken(secret, strings.TrimSpace(tok))
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40101, "invalid token")
			return
		}
		c.Set(UserIDKey, uid)
		c.Next()
	}
}

func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
