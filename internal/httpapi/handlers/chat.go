package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/httpapi/middleware"
)

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Repo == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "storage unavailable")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	chats, err := h.Repo.ListChats(c.Request.Context(), uid, limit)
	if err != nil {
		h.Log.Error("list chats", zap.Uint64("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list chats")
		return
	}
	common.OK(c, gin.H{"chats": chats})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Repo == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "storage unavailable")
		return
	}

	chatID := c.Param("chat_id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.Repo.ListMessages(c.Request.Context(), uid, chatID, limit, beforeID)
	if err != nil {
		h.Log.Error("list messages", zap.Uint64("uid", uid), zap.String("chat", chatID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}

	common.OK(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}
