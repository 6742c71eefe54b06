package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/httpapi/middleware"
)

const (
	sseBuffer    = 64
	pingInterval = 15 * time.Second
)

// StreamEvents relays the session's outbound events as server-sent events
// until the client goes away. A slow client loses events rather than
// stalling the session.
func (h *Handler) StreamEvents(c *gin.Context) {
	svc, id, ok := h.session(c)
	if !ok {
		return
	}
	uid, _ := middleware.UserID(c)

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	ch := make(chan events.Event, sseBuffer)
	var dropped atomic.Int64
	cancel := svc.Subscribe(func(_ context.Context, ev events.Event) {
		select {
		case ch <- ev:
		default:
			dropped.Add(1)
		}
	})
	defer func() {
		cancel()
		if n := dropped.Load(); n > 0 {
			h.Log.Warn("sse client too slow", zap.String("session", id), zap.Int64("dropped", n))
		}
	}()

	writeJSON("ready", gin.H{"type": "ready", "session_id": id, "platform": svc.Platform()})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev := <-ch:
			writeJSON(ev.Name, ev)

		case <-ticker.C:
			// an open stream keeps its session alive; a swept one ends it
			if _, err := h.Sessions.Get(uid, id); err != nil {
				writeJSON("closed", gin.H{"type": "closed", "session_id": id})
				return
			}
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case <-ctx.Done():
			return
		}
	}
}
