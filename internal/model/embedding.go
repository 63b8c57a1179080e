package model

type ContentType string

const (
	ContentTypeKnowledgeBase ContentType = "knowledge_base"
	ContentTypeFAQ           ContentType = "faq"
	ContentTypeCourse        ContentType = "course"
	ContentTypeBlogPost      ContentType = "blog_post"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeKnowledgeBase, ContentTypeFAQ, ContentTypeCourse, ContentTypeBlogPost:
		return true
	}
	return false
}

// EmbeddingRecord is the one live row per (content_type, content_id).
// Re-embedding overwrites it in place; it is never duplicated.
type EmbeddingRecord struct {
	ContentType ContentType       `json:"content_type"`
	ContentID   string            `json:"content_id"`
	Title       string            `json:"title"`
	BodyExcerpt string            `json:"body_excerpt"`
	Embedding   []float32         `json:"embedding"`
	Metadata    map[string]string `json:"metadata"`
	Seq         int64             `json:"seq"`
	Ctime       int64             `json:"ctime"`
	Mtime       int64             `json:"mtime"`
}
