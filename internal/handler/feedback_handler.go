package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/clavisedu/ragline/internal/pkg/errcode"
	"github.com/clavisedu/ragline/internal/pkg/response"
	"github.com/clavisedu/ragline/internal/service"
)

type FeedbackHandler struct {
	analytics *service.Analytics
}

func NewFeedbackHandler(analytics *service.Analytics) *FeedbackHandler {
	return &FeedbackHandler{analytics: analytics}
}

type feedbackRequest struct {
	AnalyticsID string `json:"analytics_id"`
	WasHelpful  *bool  `json:"was_helpful"`
	Feedback    string `json:"feedback"`
}

func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.AnalyticsID == "" || req.WasHelpful == nil {
		response.Error(c, errcode.ErrInvalid, "analytics_id and was_helpful are required")
		return
	}
	if err := h.analytics.AttachFeedback(c.Request.Context(), req.AnalyticsID, *req.WasHelpful, req.Feedback); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"recorded": true})
}
