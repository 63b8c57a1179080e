package model

// SourceRef records one retrieved source attached to an analytics row.
type SourceRef struct {
	ContentType ContentType `json:"content_type"`
	ContentID   string      `json:"content_id"`
	Similarity  float64     `json:"similarity"`
}

// QueryAnalyticsRecord is append-only: created once per chat turn, then
// mutated only by an explicit feedback attach.
type QueryAnalyticsRecord struct {
	ID               string      `json:"id"`
	QueryText        string      `json:"query_text"`
	ClassifiedIntent string      `json:"classified_intent"`
	Sources          []SourceRef `json:"sources"`
	SearchLatencyMS  int64       `json:"search_latency_ms"`
	TotalLatencyMS   int64       `json:"total_latency_ms"`
	Degraded         bool        `json:"degraded"`
	DegradedReason   string      `json:"degraded_reason,omitempty"`
	WasHelpful       *bool       `json:"was_helpful"`
	UserFeedback     *string     `json:"user_feedback"`
	Ctime            int64       `json:"ctime"`
}
