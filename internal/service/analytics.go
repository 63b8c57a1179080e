package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/clavisedu/ragline/internal/model"
	appErr "github.com/clavisedu/ragline/internal/pkg/errors"
)

// AnalyticsStore is the append-only audit table behind the logger.
type AnalyticsStore interface {
	Insert(ctx context.Context, rec *model.QueryAnalyticsRecord) error
	AttachFeedback(ctx context.Context, id string, helpful bool, feedback *string) error
	Get(ctx context.Context, id string) (*model.QueryAnalyticsRecord, error)
}

// Turn carries the measured facts of one chat turn; latencies are the
// true values captured during the turn, not estimates.
type Turn struct {
	QueryText       string
	Intent          string
	Sources         []model.SourceRef
	SearchLatencyMS int64
	TotalLatencyMS  int64
	Degraded        bool
	DegradedReason  string
}

type Analytics struct {
	store AnalyticsStore
}

func NewAnalytics(store AnalyticsStore) *Analytics {
	return &Analytics{store: store}
}

func (s *Analytics) Record(ctx context.Context, turn Turn) (string, error) {
	id := uuid.NewString()
	if err := s.insert(ctx, id, turn); err != nil {
		return "", err
	}
	return id, nil
}

// RecordAsync hands back the analytics id immediately and persists the
// row off the response path. The turn's latencies were already measured;
// only the write is deferred.
func (s *Analytics) RecordAsync(ctx context.Context, turn Turn) string {
	id := uuid.NewString()
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := s.insert(detached, id, turn); err != nil {
			logutil.GetLogger(detached).Error("async analytics record failed",
				zap.String("analytics_id", id),
				zap.Error(err))
		}
	}()
	return id
}

func (s *Analytics) insert(ctx context.Context, id string, turn Turn) error {
	rec := &model.QueryAnalyticsRecord{
		ID:               id,
		QueryText:        turn.QueryText,
		ClassifiedIntent: turn.Intent,
		Sources:          turn.Sources,
		SearchLatencyMS:  turn.SearchLatencyMS,
		TotalLatencyMS:   turn.TotalLatencyMS,
		Degraded:         turn.Degraded,
		DegradedReason:   turn.DegradedReason,
		Ctime:            time.Now().UnixMilli(),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		logutil.GetLogger(ctx).Error("analytics record failed",
			zap.String("query_hash", hashQuery(turn.QueryText)),
			zap.Error(err))
		return fmt.Errorf("%w: insert analytics: %v", appErr.ErrStore, err)
	}
	return nil
}

// AttachFeedback is last-write-wins per call and loud about unknown ids:
// it never creates a row.
func (s *Analytics) AttachFeedback(ctx context.Context, analyticsID string, helpful bool, feedback string) error {
	if analyticsID == "" {
		return appErr.ErrInvalid
	}
	var text *string
	if feedback != "" {
		text = &feedback
	}
	err := s.store.AttachFeedback(ctx, analyticsID, helpful, text)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: analytics id %s", appErr.ErrNotFound, analyticsID)
	}
	if err != nil {
		return fmt.Errorf("%w: attach feedback: %v", appErr.ErrStore, err)
	}
	return nil
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:8])
}
