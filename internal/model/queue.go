package model

type QueueReason string

const (
	QueueReasonCreated QueueReason = "created"
	QueueReasonUpdated QueueReason = "updated"
	QueueReasonManual  QueueReason = "manual"
)

func (r QueueReason) Valid() bool {
	switch r {
	case QueueReasonCreated, QueueReasonUpdated, QueueReasonManual:
		return true
	}
	return false
}

// QueueEntry is a pending re-embedding request. ProcessedAt stays zero
// until the store write for the entry succeeds.
type QueueEntry struct {
	ID          int64       `json:"id"`
	ContentType ContentType `json:"content_type"`
	ContentID   string      `json:"content_id"`
	Reason      QueueReason `json:"reason"`
	Attempts    int         `json:"attempts"`
	EnqueuedAt  int64       `json:"enqueued_at"`
	ProcessedAt int64       `json:"processed_at"`
}
