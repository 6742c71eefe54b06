package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/chat"
	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/httpapi/middleware"
)

type Handler struct {
	Sessions *chat.Sessions
	Repo     *chat.Repo
	Log      *zap.Logger
}

func NewHandler(sessions *chat.Sessions, repo *chat.Repo, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Sessions: sessions, Repo: repo, Log: log}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// session resolves :id for the calling user, writing the failure response
// itself when it returns false.
func (h *Handler) session(c *gin.Context) (*chat.Service, string, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return nil, "", false
	}
	id := c.Param("id")
	svc, err := h.Sessions.Get(uid, id)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
			return nil, "", false
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return nil, "", false
	}
	return svc, id, true
}
