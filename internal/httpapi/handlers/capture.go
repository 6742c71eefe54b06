package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/chat"
	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/httpapi/middleware"
	"github.com/suPer8Hu/chat-capture/internal/resolver"
	"github.com/suPer8Hu/chat-capture/internal/stream"
)

// RequestBodyHeader carries the base64 request body of a proxied streaming
// exchange.
const RequestBodyHeader = "X-Request-Body"

type openSessionReq struct {
	Hostname string `json:"hostname" binding:"required"`
	Href     string `json:"href"`
}

func sessionView(id string, svc *chat.Service) gin.H {
	return gin.H{
		"session_id":      id,
		"platform":        svc.Platform(),
		"active":          svc.Active(),
		"conversation_id": svc.CurrentConversationID(),
		"pending":         svc.PendingMessages(),
	}
}

func (h *Handler) OpenSession(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req openSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	id, svc, err := h.Sessions.Open(uid, req.Hostname, req.Href)
	if err != nil {
		h.Log.Error("open session", zap.Uint64("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to open session")
		return
	}
	common.OK(c, sessionView(id, svc))
}

func (h *Handler) CloseSession(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.Sessions.Close(uid, c.Param("id")); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"closed": true})
}

func (h *Handler) GetConversation(c *gin.Context) {
	svc, id, ok := h.session(c)
	if !ok {
		return
	}
	common.OK(c, sessionView(id, svc))
}

type navigationReq struct {
	Kind string `json:"kind"`
	Href string `json:"href" binding:"required"`
}

func (h *Handler) Navigate(c *gin.Context) {
	svc, id, ok := h.session(c)
	if !ok {
		return
	}
	var req navigationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	switch req.Kind {
	case "":
		req.Kind = resolver.PopState
	case resolver.Initial, resolver.PopState, resolver.HashChange, resolver.Mutation:
	default:
		common.Fail(c, http.StatusBadRequest, 10002, "unknown navigation kind")
		return
	}
	svc.Navigate(req.Kind, req.Href)
	common.OK(c, sessionView(id, svc))
}

type eventReq struct {
	Name         string           `json:"name" binding:"required"`
	URL          string           `json:"url"`
	RequestBody  json.RawMessage  `json:"requestBody"`
	ResponseBody json.RawMessage  `json:"responseBody"`
	Snapshot     *stream.Snapshot `json:"snapshot"`
}

// DispatchEvent raises a named inbound event the page already classified.
func (h *Handler) DispatchEvent(c *gin.Context) {
	svc, _, ok := h.session(c)
	if !ok {
		return
	}
	var req eventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()
	if req.Name == events.AssistantResponse {
		if req.Snapshot == nil {
			common.Fail(c, http.StatusBadRequest, 10003, "snapshot required")
			return
		}
		svc.DispatchAssistantResponse(ctx, *req.Snapshot)
		common.Accepted(c, gin.H{"event": req.Name})
		return
	}

	err := svc.Dispatch(ctx, req.Name, events.Intercepted{
		URL:          req.URL,
		RequestBody:  req.RequestBody,
		ResponseBody: req.ResponseBody,
	})
	if err != nil {
		if errors.Is(err, chat.ErrUnknownEvent) {
			common.Fail(c, http.StatusBadRequest, 10004, "unknown event")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Accepted(c, gin.H{"event": req.Name})
}

type captureReq struct {
	URL          string          `json:"url" binding:"required"`
	RequestBody  json.RawMessage `json:"requestBody"`
	ResponseBody json.RawMessage `json:"responseBody"`
}

// Capture lets the service classify the exchange by URL.
func (h *Handler) Capture(c *gin.Context) {
	svc, _, ok := h.session(c)
	if !ok {
		return
	}
	var req captureReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	name, err := svc.Capture(c.Request.Context(), events.Intercepted{
		URL:          req.URL,
		RequestBody:  req.RequestBody,
		ResponseBody: req.ResponseBody,
	})
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Accepted(c, gin.H{"event": name, "captured": name != ""})
}

// ProcessStream feeds a raw streaming response body through the platform's
// stream processor. The original request body rides in X-Request-Body.
func (h *Handler) ProcessStream(c *gin.Context) {
	svc, id, ok := h.session(c)
	if !ok {
		return
	}

	var reqBody json.RawMessage
	if v := c.GetHeader(RequestBodyHeader); v != "" {
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10005, "invalid "+RequestBodyHeader)
			return
		}
		reqBody = b
	}

	if err := svc.ProcessStream(c.Request.Context(), c.Request.Body, reqBody); err != nil {
		if errors.Is(err, chat.ErrStreamingUnsupported) {
			common.Fail(c, http.StatusUnprocessableEntity, 42201, "platform does not stream responses")
			return
		}
		h.Log.Warn("process stream", zap.String("session", id), zap.Error(err))
		common.Fail(c, http.StatusBadGateway, 50201, "stream aborted")
		return
	}
	common.OK(c, sessionView(id, svc))
}

type promptReq struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) InsertPrompt(c *gin.Context) {
	svc, _, ok := h.session(c)
	if !ok {
		return
	}
	var req promptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	common.OK(c, gin.H{"delivered": svc.InsertPrompt(c.Request.Context(), req.Content)})
}
