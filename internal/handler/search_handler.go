package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/clavisedu/ragline/internal/model"
	"github.com/clavisedu/ragline/internal/pkg/errcode"
	"github.com/clavisedu/ragline/internal/pkg/response"
	"github.com/clavisedu/ragline/internal/service"
)

type SearchHandler struct {
	search *service.SearchEngine
}

func NewSearchHandler(search *service.SearchEngine) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query        string              `json:"query"`
	ContentTypes []model.ContentType `json:"content_types"`
	MinRelevance float64             `json:"min_relevance"`
	Limit        int                 `json:"limit"`
}

type searchResultItem struct {
	model.SearchResult
	Excerpt string `json:"excerpt"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	for _, ct := range req.ContentTypes {
		if !ct.Valid() {
			response.Error(c, errcode.ErrInvalid, "unknown content type: "+string(ct))
			return
		}
	}
	passages, err := h.search.Search(c.Request.Context(), req.Query, service.SearchOptions{
		ContentTypes: req.ContentTypes,
		MinRelevance: req.MinRelevance,
		Limit:        req.Limit,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	items := make([]searchResultItem, 0, len(passages))
	for _, p := range passages {
		items = append(items, searchResultItem{SearchResult: p.SearchResult, Excerpt: p.Excerpt})
	}
	response.Success(c, gin.H{"results": items, "total": len(items)})
}
