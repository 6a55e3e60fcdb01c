package models

import "time"

// ThreadMember holds a member's read watermark for one thread. Instead of
// marking individual messages read, each member stores the highest message id
// they have acknowledged; unread state is derived from it.
type ThreadMember struct {
	ThreadID        int       `db:"thread_id" json:"thread_id"`
	UserID          int       `db:"user_id" json:"user_id"`
	SeenMessageID   int       `db:"seen_message_id" json:"seen_message_id"`
	NeedactionCount int       `db:"needaction_count" json:"needaction_count"`
	JoinedAt        time.Time `db:"joined_at" json:"joined_at"`
}
