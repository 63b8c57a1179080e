package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/clavisedu/ragline/internal/model"
	"github.com/clavisedu/ragline/internal/pkg/dbutil"
)

type AnalyticsRepo struct {
	db *sql.DB
}

func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo {
	return &AnalyticsRepo{db: db}
}

func (r *AnalyticsRepo) Insert(ctx context.Context, rec *model.QueryAnalyticsRecord) error {
	sources, err := json.Marshal(orEmptySources(rec.Sources))
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO query_analytics (id, query_text, classified_intent, sources, search_latency_ms, total_latency_ms, degraded, degraded_reason, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.QueryText,
		rec.ClassifiedIntent,
		sources,
		rec.SearchLatencyMS,
		rec.TotalLatencyMS,
		rec.Degraded,
		rec.DegradedReason,
		rec.Ctime,
	)
	if err != nil && dbutil.IsConflict(err) {
		return fmt.Errorf("analytics id already recorded: %w", err)
	}
	return err
}

// AttachFeedback mutates exactly the named row; zero rows affected means
// the id is unknown and must surface as sql.ErrNoRows, never an insert.
func (r *AnalyticsRepo) AttachFeedback(ctx context.Context, id string, helpful bool, feedback *string) error {
	const query = `UPDATE query_analytics SET was_helpful = $1, user_feedback = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, helpful, feedback, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *AnalyticsRepo) Get(ctx context.Context, id string) (*model.QueryAnalyticsRecord, error) {
	const query = `
		SELECT id, query_text, classified_intent, sources, search_latency_ms, total_latency_ms, degraded, degraded_reason, was_helpful, user_feedback, ctime
		FROM query_analytics
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)
	var rec model.QueryAnalyticsRecord
	var sources []byte
	if err := row.Scan(&rec.ID, &rec.QueryText, &rec.ClassifiedIntent, &sources, &rec.SearchLatencyMS, &rec.TotalLatencyMS, &rec.Degraded, &rec.DegradedReason, &rec.WasHelpful, &rec.UserFeedback, &rec.Ctime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sources, &rec.Sources); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *AnalyticsRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_analytics`).Scan(&count)
	return count, err
}

func orEmptySources(s []model.SourceRef) []model.SourceRef {
	if s == nil {
		return []model.SourceRef{}
	}
	return s
}
