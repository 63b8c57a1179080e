package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/clavisedu/ragline/internal/ai"
	"github.com/clavisedu/ragline/internal/config"
	"github.com/clavisedu/ragline/internal/model"
	appErr "github.com/clavisedu/ragline/internal/pkg/errors"
	"github.com/clavisedu/ragline/internal/repo"
)

const embedTaskQuery = "RETRIEVAL_QUERY"

type SearchOptions struct {
	ContentTypes []model.ContentType
	MinRelevance float64
	Limit        int
}

// SearchEngine merges the vector-similarity and lexical signals into one
// ranked result list. The store applies content-type filters before any
// scoring; the engine only blends, floors and cuts.
type SearchEngine struct {
	embeddings *repo.EmbeddingRepo
	embedder   ai.IEmbedder
	cfg        config.SearchConfig
}

func NewSearchEngine(embeddings *repo.EmbeddingRepo, embedder ai.IEmbedder, cfg config.SearchConfig) *SearchEngine {
	return &SearchEngine{embeddings: embeddings, embedder: embedder, cfg: cfg}
}

func (s *SearchEngine) Search(ctx context.Context, query string, opts SearchOptions) ([]RetrievedPassage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.ErrInvalid
	}
	if opts.Limit <= 0 {
		opts.Limit = s.cfg.DefaultLimit
	}
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = s.cfg.MinRelevance
	}
	if s.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	queryEmb, err := s.embedder.Embed(ctx, query, embedTaskQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", appErr.ErrProvider, err)
	}

	// Over-fetch so the floor and the blend still leave enough to fill
	// the limit.
	fetch := opts.Limit * 3
	if fetch < 15 {
		fetch = 15
	}
	semantic, err := s.embeddings.MatchEmbeddings(ctx, queryEmb, opts.MinRelevance, fetch, opts.ContentTypes)
	if err != nil {
		return nil, fmt.Errorf("%w: match embeddings: %v", appErr.ErrStore, err)
	}
	lexical, err := s.embeddings.LexicalSearch(ctx, query, fetch, opts.ContentTypes)
	if err != nil {
		// The semantic signal alone still produces a usable ranking.
		logutil.GetLogger(ctx).Warn("lexical search failed, continuing semantic-only", zap.Error(err))
		lexical = nil
	}

	merged := mergeCandidates(semantic, lexical, s.cfg.SemanticWeight, opts.MinRelevance)
	return rankAndCut(merged, opts.Limit), nil
}

type candidate struct {
	passage  RetrievedPassage
	seq      int64
	semantic float64
	lexical  float64
}

// mergeCandidates combines both signals per item. One signal keeps its
// own score; when both fire the item is scored with the tunable blend,
// floored at the stronger single signal so blending never demotes.
// Items below minRelevance are dropped here, before ranking, so the
// limit is filled by qualifying items only.
func mergeCandidates(semantic []repo.SemanticMatch, lexical []repo.LexicalMatch, semanticWeight, minRelevance float64) []candidate {
	byKey := map[string]*candidate{}
	order := make([]string, 0, len(semantic)+len(lexical))

	for _, m := range semantic {
		key := string(m.ContentType) + ":" + m.ContentID
		byKey[key] = &candidate{
			passage: RetrievedPassage{
				SearchResult: model.SearchResult{
					ContentType: m.ContentType,
					ContentID:   m.ContentID,
					Title:       m.Title,
					MatchType:   model.MatchTypeSemantic,
					Metadata:    m.Metadata,
				},
				Excerpt: m.Excerpt,
			},
			seq:      m.Seq,
			semantic: m.Similarity,
		}
		order = append(order, key)
	}
	for _, m := range lexical {
		score := lexicalScore(m)
		key := string(m.ContentType) + ":" + m.ContentID
		if existing, ok := byKey[key]; ok {
			existing.lexical = score
			continue
		}
		byKey[key] = &candidate{
			passage: RetrievedPassage{
				SearchResult: model.SearchResult{
					ContentType: m.ContentType,
					ContentID:   m.ContentID,
					Title:       m.Title,
					MatchType:   model.MatchTypeKeyword,
					Metadata:    m.Metadata,
				},
				Excerpt: m.Excerpt,
			},
			seq:     m.Seq,
			lexical: score,
		}
		order = append(order, key)
	}

	var out []candidate
	for _, key := range order {
		c := byKey[key]
		switch {
		case c.semantic > 0 && c.lexical > 0:
			blended := semanticWeight*c.semantic + (1-semanticWeight)*c.lexical
			c.passage.RelevanceScore = maxFloat(blended, c.semantic, c.lexical)
			c.passage.MatchType = model.MatchTypeHybrid
		case c.semantic > 0:
			c.passage.RelevanceScore = c.semantic
		default:
			c.passage.RelevanceScore = c.lexical
		}
		if c.passage.RelevanceScore < minRelevance {
			continue
		}
		if c.passage.RelevanceScore > 1 {
			c.passage.RelevanceScore = 1
		}
		out = append(out, *c)
	}
	return out
}

// rankAndCut orders by score descending, breaking ties by more recent
// store insertion, and trims to limit.
func rankAndCut(candidates []candidate, limit int) []RetrievedPassage {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].passage.RelevanceScore != candidates[j].passage.RelevanceScore {
			return candidates[i].passage.RelevanceScore > candidates[j].passage.RelevanceScore
		}
		return candidates[i].seq > candidates[j].seq
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	results := make([]RetrievedPassage, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, c.passage)
	}
	return results
}

// lexicalScore maps the normalized ts_rank into [0,1]; a direct title
// substring hit floors the score at 0.8 so exact-title lookups rank high
// even when the body text is thin.
func lexicalScore(m repo.LexicalMatch) float64 {
	score := m.Rank
	if m.TitleHit && score < 0.8 {
		score = 0.8
	}
	if score > 1 {
		score = 1
	}
	return score
}

func maxFloat(values ...float64) float64 {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}
