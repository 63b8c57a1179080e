package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clavisedu/ragline/internal/middleware"
)

type RouterDeps struct {
	Chat     *ChatHandler
	Search   *SearchHandler
	Index    *IndexHandler
	Feedback *FeedbackHandler
	Diag     *DiagHandler

	ChatRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	chatGroup := api.Group("")
	if deps.ChatRateWindow > 0 {
		chatGroup.Use(middleware.RateLimit(deps.ChatRateWindow))
	}
	chatGroup.POST("/chat", deps.Chat.Chat)

	api.POST("/search", deps.Search.Search)
	api.POST("/feedback", deps.Feedback.Submit)

	api.POST("/index", deps.Index.Index)
	api.POST("/index/queue", deps.Index.Enqueue)
	api.POST("/index/drain", deps.Index.Drain)
	api.DELETE("/index/:type/:id", deps.Index.Delete)

	api.GET("/diag/verify", deps.Diag.Verify)
}
