package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/clavisedu/ragline/internal/model"
	"github.com/clavisedu/ragline/internal/pkg/dbutil"
)

type QueueRepo struct {
	db *sql.DB
}

func NewQueueRepo(db *sql.DB) *QueueRepo {
	return &QueueRepo{db: db}
}

// QueueSnapshot is the content payload carried with an entry so a drain
// can still embed when the content source has no fetcher configured.
type QueueSnapshot struct {
	Title string
	Body  string
}

func (r *QueueRepo) Enqueue(ctx context.Context, contentType model.ContentType, contentID string, reason model.QueueReason, snapshot QueueSnapshot) (int64, error) {
	data := map[string]interface{}{
		"content_type": string(contentType),
		"content_id":   contentID,
		"reason":       string(reason),
		"title":        snapshot.Title,
		"body":         snapshot.Body,
		"enqueued_at":  time.Now().UnixMilli(),
	}
	sqlStr, args, err := builder.BuildInsert("embedding_queue", []map[string]interface{}{data})
	if err != nil {
		return 0, err
	}
	sqlStr = dbutil.Rebind(sqlStr) + " RETURNING id"
	var id int64
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// ListPending returns unprocessed entries oldest-first. Entries at or
// beyond maxAttempts are excluded; they are poison until reset manually.
func (r *QueueRepo) ListPending(ctx context.Context, limit int, maxAttempts int) ([]model.QueueEntry, error) {
	const query = `
		SELECT id, content_type, content_id, reason, attempts, enqueued_at
		FROM embedding_queue
		WHERE processed_at IS NULL AND attempts < $1
		ORDER BY enqueued_at ASC, id ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		if err := rows.Scan(&e.ID, &e.ContentType, &e.ContentID, &e.Reason, &e.Attempts, &e.EnqueuedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *QueueRepo) GetSnapshot(ctx context.Context, id int64) (QueueSnapshot, error) {
	const query = `SELECT title, body FROM embedding_queue WHERE id = $1`
	var snap QueueSnapshot
	err := r.db.QueryRowContext(ctx, query, id).Scan(&snap.Title, &snap.Body)
	return snap, err
}

// MarkProcessed is called only after the store write succeeded.
func (r *QueueRepo) MarkProcessed(ctx context.Context, id int64) error {
	const query = `UPDATE embedding_queue SET processed_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now().UnixMilli(), id)
	return err
}

func (r *QueueRepo) BumpAttempts(ctx context.Context, id int64) error {
	const query = `UPDATE embedding_queue SET attempts = attempts + 1 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *QueueRepo) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_queue WHERE processed_at IS NULL`).Scan(&count)
	return count, err
}

func (r *QueueRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_queue`).Scan(&count)
	return count, err
}
