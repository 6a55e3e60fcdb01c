package models

// WindowEvent is broadcasted through websockets whenever a thread's
// materialized window changes.
type WindowEvent struct {
	Type        string   `json:"type"`
	ThreadModel string   `json:"thread_model"`
	ThreadID    int      `json:"thread_id"`
	Message     *Message `json:"message,omitempty"`
	TempID      int      `json:"temp_id,omitempty"`
	HasOlder    bool     `json:"has_older"`
	HasNewer    bool     `json:"has_newer"`
}

const (
	EventMessageAdded     = "message_added"
	EventMessageConfirmed = "message_confirmed"
	EventWindowReplaced   = "window_replaced"
)

// MessageCreatedEvent is the push payload delivered over the broker when a
// message lands in the log.
type MessageCreatedEvent struct {
	ThreadModel string  `json:"thread_model"`
	ThreadID    int     `json:"thread_id"`
	Message     Message `json:"message"`
}

// WindowSnapshot is the API view of a thread's current window state.
type WindowSnapshot struct {
	ThreadModel          string    `json:"thread_model"`
	ThreadID             int       `json:"thread_id"`
	Messages             []Message `json:"messages"`
	HasOlder             bool      `json:"has_older"`
	HasNewer             bool      `json:"has_newer"`
	IsLoaded             bool      `json:"is_loaded"`
	HasLoadingFailed     bool      `json:"has_loading_failed"`
	IsUnread             bool      `json:"is_unread"`
	UnreadCount          int       `json:"unread_count"`
	FirstUnreadMessageID int       `json:"first_unread_message_id,omitempty"`
	LastMessageSeenByAll int       `json:"last_message_seen_by_all_id,omitempty"`
}
