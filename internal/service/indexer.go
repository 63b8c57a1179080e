package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/clavisedu/ragline/internal/ai"
	"github.com/clavisedu/ragline/internal/config"
	"github.com/clavisedu/ragline/internal/filestore"
	"github.com/clavisedu/ragline/internal/model"
	appErr "github.com/clavisedu/ragline/internal/pkg/errors"
	"github.com/clavisedu/ragline/internal/repo"
)

const (
	embedTaskDocument = "RETRIEVAL_DOCUMENT"
	excerptMaxChars   = 1500
)

type IndexOutcome string

const (
	IndexOutcomeCreated IndexOutcome = "created"
	IndexOutcomeUpdated IndexOutcome = "updated"
	IndexOutcomeSkipped IndexOutcome = "skipped"
)

// EmbeddingStore is the slice of the embedding repo the indexer writes
// through. The indexer is the only writer.
type EmbeddingStore interface {
	Exists(ctx context.Context, contentType model.ContentType, contentID string) (bool, error)
	Upsert(ctx context.Context, rec *model.EmbeddingRecord) error
	Delete(ctx context.Context, contentType model.ContentType, contentID string) error
}

// UpdateQueue is the durable pending-work table the batch drain consumes.
type UpdateQueue interface {
	Enqueue(ctx context.Context, contentType model.ContentType, contentID string, reason model.QueueReason, snapshot repo.QueueSnapshot) (int64, error)
	ListPending(ctx context.Context, limit int, maxAttempts int) ([]model.QueueEntry, error)
	GetSnapshot(ctx context.Context, id int64) (repo.QueueSnapshot, error)
	MarkProcessed(ctx context.Context, id int64) error
	BumpAttempts(ctx context.Context, id int64) error
}

// ContentSource exposes readable platform records. It lives outside this
// pipeline; a nil source means drains rely on queue snapshots only.
type ContentSource interface {
	Fetch(ctx context.Context, contentType model.ContentType, contentID string) (ContentItem, error)
}

type ContentItem struct {
	Title    string
	Body     string
	Metadata map[string]string
	Deleted  bool
}

type IndexInput struct {
	ContentType  model.ContentType
	ContentID    string
	Title        string
	Body         string
	Metadata     map[string]string
	ForceRefresh bool
}

type DrainReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Poisoned  int `json:"poisoned"`
}

type Indexer struct {
	store    EmbeddingStore
	queue    UpdateQueue
	embedder ai.IEmbedder
	source   ContentSource
	audit    filestore.Store
	cfg      config.IndexerConfig
}

func NewIndexer(store EmbeddingStore, queue UpdateQueue, embedder ai.IEmbedder, source ContentSource, audit filestore.Store, cfg config.IndexerConfig) *Indexer {
	return &Indexer{
		store:    store,
		queue:    queue,
		embedder: embedder,
		source:   source,
		audit:    audit,
		cfg:      cfg,
	}
}

// Index embeds one unit of content and upserts its record. Unchanged
// content (key already live, no force) is skipped without paying the
// provider call.
func (s *Indexer) Index(ctx context.Context, in IndexInput) (IndexOutcome, error) {
	if !in.ContentType.Valid() || strings.TrimSpace(in.ContentID) == "" {
		return "", appErr.ErrInvalid
	}
	body := ai.NormalizeMarkdown(in.Body)
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("%w: empty content body", appErr.ErrInvalid)
	}

	exists, err := s.store.Exists(ctx, in.ContentType, in.ContentID)
	if err != nil {
		return "", fmt.Errorf("%w: existence check: %v", appErr.ErrStore, err)
	}
	if exists && !in.ForceRefresh {
		return IndexOutcomeSkipped, nil
	}

	textToEmbed := ai.TruncateForEmbedding(in.Title+"\n"+body, s.cfg.MaxEmbedChars)
	embedding, err := s.embedder.Embed(ctx, textToEmbed, embedTaskDocument)
	if err != nil {
		return "", fmt.Errorf("%w: embed content: %v", appErr.ErrProvider, err)
	}

	now := time.Now().UnixMilli()
	rec := &model.EmbeddingRecord{
		ContentType: in.ContentType,
		ContentID:   in.ContentID,
		Title:       in.Title,
		BodyExcerpt: ai.TruncateForEmbedding(body, excerptMaxChars),
		Embedding:   embedding,
		Metadata:    in.Metadata,
		Ctime:       now,
		Mtime:       now,
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: upsert record: %v", appErr.ErrStore, err)
	}

	outcome := IndexOutcomeCreated
	if exists {
		outcome = IndexOutcomeUpdated
	}
	s.appendAuditNote(ctx, in.ContentType, in.ContentID, outcome)
	return outcome, nil
}

// Delete removes the live record for content that was deleted or
// unpublished at the source.
func (s *Indexer) Delete(ctx context.Context, contentType model.ContentType, contentID string) error {
	if !contentType.Valid() || strings.TrimSpace(contentID) == "" {
		return appErr.ErrInvalid
	}
	if err := s.store.Delete(ctx, contentType, contentID); err != nil {
		return fmt.Errorf("%w: delete record: %v", appErr.ErrStore, err)
	}
	return nil
}

// Enqueue records a pending re-embedding request without paying the
// embedding cost inline.
func (s *Indexer) Enqueue(ctx context.Context, contentType model.ContentType, contentID string, reason model.QueueReason, title, body string) (int64, error) {
	if !contentType.Valid() || strings.TrimSpace(contentID) == "" || !reason.Valid() {
		return 0, appErr.ErrInvalid
	}
	id, err := s.queue.Enqueue(ctx, contentType, contentID, reason, repo.QueueSnapshot{Title: title, Body: body})
	if err != nil {
		return 0, fmt.Errorf("%w: enqueue: %v", appErr.ErrStore, err)
	}
	return id, nil
}

// DrainQueue processes pending entries oldest-first, strictly
// sequentially, with a fixed delay between provider calls. Entries are
// marked processed only after a successful store write; failed entries
// stay pending for the next drain until the attempt cap poisons them.
func (s *Indexer) DrainQueue(ctx context.Context) (DrainReport, error) {
	logger := logutil.GetLogger(ctx)
	var report DrainReport

	entries, err := s.queue.ListPending(ctx, s.cfg.DrainBatch, s.cfg.MaxAttempts)
	if err != nil {
		return report, fmt.Errorf("%w: list pending: %v", appErr.ErrStore, err)
	}
	delay := time.Duration(s.cfg.CallDelayMS) * time.Millisecond

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(delay):
			}
		}
		report.Processed++

		outcome, err := s.processEntry(ctx, entry)
		if err != nil {
			report.Failed++
			if bumpErr := s.queue.BumpAttempts(ctx, entry.ID); bumpErr != nil {
				logger.Error("bump attempts failed", zap.Int64("queue_id", entry.ID), zap.Error(bumpErr))
			}
			if entry.Attempts+1 >= s.cfg.MaxAttempts {
				report.Poisoned++
				logger.Error("queue entry poisoned",
					zap.Int64("queue_id", entry.ID),
					zap.String("content_type", string(entry.ContentType)),
					zap.String("content_id", entry.ContentID),
					zap.Int("attempts", entry.Attempts+1),
					zap.Error(fmt.Errorf("%w: %v", appErr.ErrPoisoned, err)))
				continue
			}
			logger.Warn("queue entry failed, left pending",
				zap.Int64("queue_id", entry.ID),
				zap.String("content_id", entry.ContentID),
				zap.Error(err))
			continue
		}
		if outcome == IndexOutcomeSkipped {
			report.Skipped++
		} else {
			report.Succeeded++
		}
		if err := s.queue.MarkProcessed(ctx, entry.ID); err != nil {
			logger.Error("mark processed failed", zap.Int64("queue_id", entry.ID), zap.Error(err))
		}
	}
	logger.Info("queue drain finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("poisoned", report.Poisoned))
	return report, nil
}

func (s *Indexer) processEntry(ctx context.Context, entry model.QueueEntry) (IndexOutcome, error) {
	item, err := s.resolveContent(ctx, entry)
	if err != nil {
		return "", err
	}
	if item.Deleted {
		if err := s.store.Delete(ctx, entry.ContentType, entry.ContentID); err != nil {
			return "", fmt.Errorf("%w: delete gone content: %v", appErr.ErrStore, err)
		}
		return IndexOutcomeSkipped, nil
	}
	return s.Index(ctx, IndexInput{
		ContentType: entry.ContentType,
		ContentID:   entry.ContentID,
		Title:       item.Title,
		Body:        item.Body,
		Metadata:    item.Metadata,
		// A created entry for an already-live key is a cheap no-op;
		// updates and manual requests always re-embed.
		ForceRefresh: entry.Reason != model.QueueReasonCreated,
	})
}

func (s *Indexer) resolveContent(ctx context.Context, entry model.QueueEntry) (ContentItem, error) {
	if s.source != nil {
		item, err := s.source.Fetch(ctx, entry.ContentType, entry.ContentID)
		if err == nil {
			return item, nil
		}
		if appErr.IsNotFound(err) {
			return ContentItem{Deleted: true}, nil
		}
		logutil.GetLogger(ctx).Warn("content source fetch failed, falling back to queue snapshot",
			zap.String("content_id", entry.ContentID), zap.Error(err))
	}
	snap, err := s.queue.GetSnapshot(ctx, entry.ID)
	if err != nil {
		return ContentItem{}, fmt.Errorf("%w: read queue snapshot: %v", appErr.ErrStore, err)
	}
	return ContentItem{Title: snap.Title, Body: snap.Body}, nil
}

type auditNote struct {
	ContentType string `json:"content_type"`
	ContentID   string `json:"content_id"`
	Outcome     string `json:"outcome"`
	IndexedAt   int64  `json:"indexed_at"`
}

// appendAuditNote is operational visibility only; failures are logged
// and never gate the indexing result.
func (s *Indexer) appendAuditNote(ctx context.Context, contentType model.ContentType, contentID string, outcome IndexOutcome) {
	if s.audit == nil {
		return
	}
	now := time.Now()
	note := auditNote{
		ContentType: string(contentType),
		ContentID:   contentID,
		Outcome:     string(outcome),
		IndexedAt:   now.UnixMilli(),
	}
	data, err := json.Marshal(note)
	if err != nil {
		return
	}
	key := fmt.Sprintf("index-audit/%s/%s/%d.json", contentType, contentID, now.UnixNano())
	if err := s.audit.Save(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		logutil.GetLogger(ctx).Warn("audit note write failed", zap.String("key", key), zap.Error(err))
	}
}
