package models

import "time"

// MessageStatus tags where a message sits in its lifecycle. Persisted
// messages carry an id assigned by the log; pending ones carry a negative
// temporary id until the log confirms; transient ones are local-only notices
// that never reach the log.
type MessageStatus string

const (
	MessagePersisted MessageStatus = "persisted"
	MessagePending   MessageStatus = "pending"
	MessageTransient MessageStatus = "transient"
)

// Message is a node in a thread's log. Persisted ids are monotonically
// assigned by the log, so id order is creation order.
type Message struct {
	ID         int           `db:"id" json:"id"`
	ThreadID   int           `db:"thread_id" json:"thread_id"`
	AuthorID   int           `db:"author_id" json:"author_id"`
	Body       string        `db:"body" json:"body"`
	ParentID   *int          `db:"parent_id" json:"parent_id,omitempty"`
	Needaction bool          `db:"needaction" json:"needaction"`
	MentionIDs []int         `db:"-" json:"mention_ids,omitempty"`
	Status     MessageStatus `db:"-" json:"status"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// IsEmpty reports whether the message has no visible content.
func (m Message) IsEmpty() bool {
	return m.Body == ""
}

// IsPersisted reports whether the log has assigned this message its final id.
func (m Message) IsPersisted() bool {
	return m.Status == MessagePersisted
}
