package model

type MatchType string

const (
	MatchTypeKeyword  MatchType = "keyword"
	MatchTypeSemantic MatchType = "semantic"
	MatchTypeHybrid   MatchType = "hybrid"
)

// SearchResult is ephemeral; it is never persisted.
type SearchResult struct {
	ContentType    ContentType       `json:"content_type"`
	ContentID      string            `json:"content_id"`
	Title          string            `json:"title"`
	RelevanceScore float64           `json:"relevance_score"`
	MatchType      MatchType         `json:"match_type"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
