package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/config"
	"github.com/suPer8Hu/chat-capture/internal/httpapi/handlers"
	"github.com/suPer8Hu/chat-capture/internal/httpapi/middleware"
	"github.com/suPer8Hu/chat-capture/internal/logger"
)

func NewRouter(cfg config.Config, h *handlers.Handler, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	log = logger.OrNop(log)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret, cfg.AuthDisabled))

	// capture sessions
	authGroup.POST("/sessions", h.OpenSession)
	authGroup.DELETE("/sessions/:id", h.CloseSession)
	authGroup.GET("/sessions/:id/conversation", h.GetConversation)
	authGroup.POST("/sessions/:id/navigation", h.Navigate)
	authGroup.POST("/sessions/:id/events", h.DispatchEvent)
	authGroup.GET("/sessions/:id/events/stream", h.StreamEvents)
	authGroup.POST("/sessions/:id/capture", h.Capture)
	authGroup.POST("/sessions/:id/stream", h.ProcessStream)
	authGroup.POST("/sessions/:id/prompt", h.InsertPrompt)

	// captured history
	authGroup.GET("/chats", h.ListChats)
	authGroup.GET("/chats/:chat_id/messages", h.ListChatMessages)
	return r
}
