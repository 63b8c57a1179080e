package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/clavisedu/ragline/internal/model"
	"github.com/clavisedu/ragline/internal/pkg/errcode"
	appErr "github.com/clavisedu/ragline/internal/pkg/errors"
	"github.com/clavisedu/ragline/internal/pkg/response"
	"github.com/clavisedu/ragline/internal/service"
)

type ChatHandler struct {
	chat *service.ChatOrchestrator
}

func NewChatHandler(chat *service.ChatOrchestrator) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	Messages  []model.ChatMessage `json:"messages"`
	Audience  model.Audience      `json:"audience"`
	EnableRAG *bool               `json:"enable_rag"`
}

type chatPerformance struct {
	SearchMS int64 `json:"search_ms"`
	TotalMS  int64 `json:"total_ms"`
}

type chatResponse struct {
	Response       string               `json:"response"`
	RagEnabled     bool                 `json:"rag_enabled"`
	Sources        []model.SearchResult `json:"sources"`
	SourcesUsed    int                  `json:"sources_used"`
	Performance    chatPerformance      `json:"performance"`
	AnalyticsID    string               `json:"analytics_id"`
	Degraded       bool                 `json:"degraded,omitempty"`
	DegradedReason string               `json:"degraded_reason,omitempty"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	enableRAG := true
	if req.EnableRAG != nil {
		enableRAG = *req.EnableRAG
	}
	out, err := h.chat.Chat(c.Request.Context(), service.ChatInput{
		Messages:  req.Messages,
		Audience:  req.Audience,
		EnableRAG: enableRAG,
	})
	if err != nil {
		if errors.Is(err, appErr.ErrProvider) && out.Response != "" {
			// Generation failed after the turn was composed; surface
			// the fallback text so the caller can still show something.
			response.ErrorWithData(c, errcode.ErrGenerationFailed, "generation failed", chatResponse{
				Response:       out.Response,
				RagEnabled:     out.RagEnabled,
				Sources:        []model.SearchResult{},
				Performance:    chatPerformance{SearchMS: out.SearchMS, TotalMS: out.TotalMS},
				AnalyticsID:    out.AnalyticsID,
				Degraded:       out.Degraded,
				DegradedReason: out.DegradedReason,
			})
			return
		}
		handleError(c, err)
		return
	}
	sources := out.Sources
	if sources == nil {
		sources = []model.SearchResult{}
	}
	response.Success(c, chatResponse{
		Response:       out.Response,
		RagEnabled:     out.RagEnabled,
		Sources:        sources,
		SourcesUsed:    out.SourcesUsed,
		Performance:    chatPerformance{SearchMS: out.SearchMS, TotalMS: out.TotalMS},
		AnalyticsID:    out.AnalyticsID,
		Degraded:       out.Degraded,
		DegradedReason: out.DegradedReason,
	})
}
