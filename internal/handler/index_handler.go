package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/clavisedu/ragline/internal/model"
	"github.com/clavisedu/ragline/internal/pkg/errcode"
	"github.com/clavisedu/ragline/internal/pkg/response"
	"github.com/clavisedu/ragline/internal/service"
)

type IndexHandler struct {
	indexer *service.Indexer
}

func NewIndexHandler(indexer *service.Indexer) *IndexHandler {
	return &IndexHandler{indexer: indexer}
}

type indexRequest struct {
	ContentType  model.ContentType `json:"content_type"`
	ContentID    string            `json:"content_id"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Metadata     map[string]string `json:"metadata"`
	ForceRefresh bool              `json:"force_refresh"`
}

type enqueueRequest struct {
	ContentType model.ContentType `json:"content_type"`
	ContentID   string            `json:"content_id"`
	Reason      model.QueueReason `json:"reason"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
}

// Index embeds and stores one content item synchronously.
func (h *IndexHandler) Index(c *gin.Context) {
	var req indexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	outcome, err := h.indexer.Index(c.Request.Context(), service.IndexInput{
		ContentType:  req.ContentType,
		ContentID:    req.ContentID,
		Title:        req.Title,
		Body:         req.Body,
		Metadata:     req.Metadata,
		ForceRefresh: req.ForceRefresh,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"outcome": outcome})
}

// Enqueue records a pending refresh without calling the embedding
// provider; the drain job picks it up later.
func (h *IndexHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = model.QueueReasonManual
	}
	id, err := h.indexer.Enqueue(c.Request.Context(), req.ContentType, req.ContentID, reason, req.Title, req.Body)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"queue_id": id})
}

func (h *IndexHandler) Drain(c *gin.Context) {
	report, err := h.indexer.DrainQueue(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *IndexHandler) Delete(c *gin.Context) {
	contentType := model.ContentType(c.Param("type"))
	contentID := c.Param("id")
	if !contentType.Valid() || contentID == "" {
		response.Error(c, errcode.ErrInvalid, "invalid content reference")
		return
	}
	if err := h.indexer.Delete(c.Request.Context(), contentType, contentID); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}
