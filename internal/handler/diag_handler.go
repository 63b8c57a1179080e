package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clavisedu/ragline/internal/ai"
	"github.com/clavisedu/ragline/internal/pkg/response"
	"github.com/clavisedu/ragline/internal/repo"
	"github.com/clavisedu/ragline/internal/schedule"
)

type DiagHandler struct {
	embeddings *repo.EmbeddingRepo
	queue      *repo.QueueRepo
	analytics  *repo.AnalyticsRepo
	embedder   ai.IEmbedder
	scheduler  *schedule.CronScheduler
}

func NewDiagHandler(embeddings *repo.EmbeddingRepo, queue *repo.QueueRepo, analytics *repo.AnalyticsRepo, embedder ai.IEmbedder, scheduler *schedule.CronScheduler) *DiagHandler {
	return &DiagHandler{
		embeddings: embeddings,
		queue:      queue,
		analytics:  analytics,
		embedder:   embedder,
		scheduler:  scheduler,
	}
}

type diagCheck struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Count  int64  `json:"count,omitempty"`
}

// Verify reports storage reachability and, when ?smoke=1, exercises
// the embedding provider with a one-word call.
func (h *DiagHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()
	checks := map[string]diagCheck{}
	healthy := true

	if count, err := h.embeddings.Count(ctx); err != nil {
		checks["embedding_records"] = diagCheck{Detail: err.Error()}
		healthy = false
	} else {
		checks["embedding_records"] = diagCheck{OK: true, Count: count}
	}
	if count, err := h.queue.CountPending(ctx); err != nil {
		checks["queue_pending"] = diagCheck{Detail: err.Error()}
		healthy = false
	} else {
		checks["queue_pending"] = diagCheck{OK: true, Count: count}
	}
	if count, err := h.analytics.Count(ctx); err != nil {
		checks["query_analytics"] = diagCheck{Detail: err.Error()}
		healthy = false
	} else {
		checks["query_analytics"] = diagCheck{OK: true, Count: count}
	}

	if c.Query("smoke") == "1" && h.embedder != nil {
		smokeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		emb, err := h.embedder.Embed(smokeCtx, "ping", "RETRIEVAL_QUERY")
		cancel()
		if err != nil {
			checks["embedder"] = diagCheck{Detail: err.Error()}
			healthy = false
		} else {
			checks["embedder"] = diagCheck{OK: true, Count: int64(len(emb))}
		}
	}

	payload := gin.H{"healthy": healthy, "checks": checks}
	if h.scheduler != nil {
		payload["jobs"] = h.scheduler.Status()
	}
	response.Success(c, payload)
}
