package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/clavisedu/ragline/internal/model"
)

type EmbeddingRepo struct {
	db *sql.DB
}

func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

// SemanticMatch is one ranked neighbor returned by the vector primitive.
type SemanticMatch struct {
	ContentType model.ContentType
	ContentID   string
	Title       string
	Excerpt     string
	Metadata    map[string]string
	Seq         int64
	Similarity  float64
}

// LexicalMatch is one full-text candidate with its normalized rank.
type LexicalMatch struct {
	ContentType model.ContentType
	ContentID   string
	Title       string
	Excerpt     string
	Metadata    map[string]string
	Seq         int64
	Rank        float64
	TitleHit    bool
}

// Upsert writes the record in a single statement so concurrent readers
// never observe the key as absent during a re-embedding.
func (r *EmbeddingRepo) Upsert(ctx context.Context, rec *model.EmbeddingRecord) error {
	metadata, err := json.Marshal(orEmptyMap(rec.Metadata))
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO embedding_records (content_type, content_id, title, body_excerpt, embedding, metadata, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (content_type, content_id) DO UPDATE SET
			title = EXCLUDED.title,
			body_excerpt = EXCLUDED.body_excerpt,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			mtime = EXCLUDED.mtime
	`
	_, err = r.db.ExecContext(ctx, query,
		string(rec.ContentType),
		rec.ContentID,
		rec.Title,
		rec.BodyExcerpt,
		pgvector.NewVector(rec.Embedding),
		metadata,
		rec.Ctime,
		rec.Mtime,
	)
	return err
}

func (r *EmbeddingRepo) Exists(ctx context.Context, contentType model.ContentType, contentID string) (bool, error) {
	const query = `SELECT 1 FROM embedding_records WHERE content_type = $1 AND content_id = $2`
	var one int
	err := r.db.QueryRowContext(ctx, query, string(contentType), contentID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *EmbeddingRepo) Get(ctx context.Context, contentType model.ContentType, contentID string) (*model.EmbeddingRecord, error) {
	const query = `
		SELECT content_type, content_id, title, body_excerpt, embedding, metadata, seq, ctime, mtime
		FROM embedding_records
		WHERE content_type = $1 AND content_id = $2
	`
	row := r.db.QueryRowContext(ctx, query, string(contentType), contentID)
	var rec model.EmbeddingRecord
	var embedding pgvector.Vector
	var metadata []byte
	if err := row.Scan(&rec.ContentType, &rec.ContentID, &rec.Title, &rec.BodyExcerpt, &embedding, &metadata, &rec.Seq, &rec.Ctime, &rec.Mtime); err != nil {
		return nil, err
	}
	rec.Embedding = embedding.Slice()
	if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *EmbeddingRepo) Delete(ctx context.Context, contentType model.ContentType, contentID string) error {
	const query = `DELETE FROM embedding_records WHERE content_type = $1 AND content_id = $2`
	_, err := r.db.ExecContext(ctx, query, string(contentType), contentID)
	return err
}

// MatchEmbeddings is the ranked-neighbor oracle: cosine similarity over
// the live records, content-type filter applied in SQL before scoring.
func (r *EmbeddingRepo) MatchEmbeddings(ctx context.Context, queryEmb []float32, threshold float64, count int, contentTypes []model.ContentType) ([]SemanticMatch, error) {
	var sb strings.Builder
	args := []interface{}{pgvector.NewVector(queryEmb), threshold}
	sb.WriteString(`
		SELECT content_type, content_id, title, body_excerpt, metadata, seq,
		       1 - (embedding <=> $1) AS similarity
		FROM embedding_records
		WHERE 1 - (embedding <=> $1) >= $2
	`)
	args = appendTypeFilter(&sb, args, contentTypes)
	sb.WriteString(fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args)+1))
	args = append(args, count)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []SemanticMatch
	for rows.Next() {
		var m SemanticMatch
		var metadata []byte
		if err := rows.Scan(&m.ContentType, &m.ContentID, &m.Title, &m.Excerpt, &metadata, &m.Seq, &m.Similarity); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// LexicalSearch ranks candidates with ts_rank normalized into [0,1)
// (normalization flag 32 divides rank by rank+1); a plain title substring
// hit is reported separately so the caller can floor the score.
func (r *EmbeddingRepo) LexicalSearch(ctx context.Context, query string, count int, contentTypes []model.ContentType) ([]LexicalMatch, error) {
	var sb strings.Builder
	args := []interface{}{query}
	sb.WriteString(`
		SELECT content_type, content_id, title, body_excerpt, metadata, seq,
		       ts_rank(to_tsvector('english', title || ' ' || body_excerpt), plainto_tsquery('english', $1), 32) AS rank,
		       title ILIKE '%' || $1 || '%' AS title_hit
		FROM embedding_records
		WHERE (to_tsvector('english', title || ' ' || body_excerpt) @@ plainto_tsquery('english', $1)
		       OR title ILIKE '%' || $1 || '%')
	`)
	args = appendTypeFilter(&sb, args, contentTypes)
	sb.WriteString(fmt.Sprintf(" ORDER BY rank DESC LIMIT $%d", len(args)+1))
	args = append(args, count)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []LexicalMatch
	for rows.Next() {
		var m LexicalMatch
		var metadata []byte
		if err := rows.Scan(&m.ContentType, &m.ContentID, &m.Title, &m.Excerpt, &metadata, &m.Seq, &m.Rank, &m.TitleHit); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *EmbeddingRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_records`).Scan(&count)
	return count, err
}

func appendTypeFilter(sb *strings.Builder, args []interface{}, contentTypes []model.ContentType) []interface{} {
	if len(contentTypes) == 0 {
		return args
	}
	placeholders := make([]string, 0, len(contentTypes))
	for _, t := range contentTypes {
		args = append(args, string(t))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	sb.WriteString(" AND content_type IN (" + strings.Join(placeholders, ", ") + ")")
	return args
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
