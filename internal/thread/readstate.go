package thread

import (
	"context"
	"errors"

	"thread-sync/internal/models"
	"thread-sync/internal/observability"
	"thread-sync/internal/repositories"
)

// Read state is derived from the window and the members' seen watermarks:
// a message is unread when its persisted id is above the self watermark.

// UnreadCount returns the number of persisted window messages above the self
// watermark.
func (t *Thread) UnreadCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unreadCountLocked()
}

// IsUnread reports whether any window message is unread.
func (t *Thread) IsUnread() bool {
	return t.UnreadCount() > 0
}

// FirstUnreadMessage returns the oldest unread persisted message, or nil.
func (t *Thread) FirstUnreadMessage() *models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstUnreadLocked()
}

// LastMessageSeenByAllID returns the highest id every other member has
// acknowledged, or 0 when the thread has no other members.
func (t *Thread) LastMessageSeenByAllID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeenByAllLocked()
}

func (t *Thread) unreadCountLocked() int {
	seen := t.selfSeenLocked()
	count := 0
	for _, m := range t.window.messages() {
		if m.IsPersisted() && m.ID > seen {
			count++
		}
	}
	return count
}

func (t *Thread) firstUnreadLocked() *models.Message {
	seen := t.selfSeenLocked()
	for _, m := range t.window.messages() {
		if m.IsPersisted() && m.ID > seen {
			msg := m
			return &msg
		}
	}
	return nil
}

func (t *Thread) lastSeenByAllLocked() int {
	min := 0
	found := false
	for _, m := range t.members {
		if m.UserID == t.UserID {
			continue
		}
		if !found || m.SeenMessageID < min {
			min = m.SeenMessageID
			found = true
		}
	}
	if !found {
		return 0
	}
	return min
}

func (t *Thread) selfSeenLocked() int {
	if m := t.selfMemberLocked(); m != nil {
		return m.SeenMessageID
	}
	return t.lastAckedSeenID
}

// MarkAsRead moves the self watermark to the newest persisted message and
// acknowledges it to the log. Before the window is loaded the call is
// deferred and retried once a load completes. A not-found from the log is
// swallowed: the thread may have been deleted concurrently.
func (t *Thread) MarkAsRead(ctx context.Context) error {
	t.mu.Lock()
	if !t.isLoaded {
		t.markReadQueued = true
		t.mu.Unlock()
		return nil
	}
	newest, ok := t.window.newestPersisted()
	if !ok {
		t.mu.Unlock()
		return nil
	}
	t.advanceSelfSeenLocked(newest)
	changed := newest != t.lastAckedSeenID
	needaction := 0
	if m := t.selfMemberLocked(); m != nil {
		needaction = m.NeedactionCount
	}
	t.mu.Unlock()

	if changed {
		if err := t.msgLog.MarkRead(ctx, t.ID, t.UserID, newest); err != nil {
			if !errors.Is(err, repositories.ErrThreadNotFound) {
				observability.IncMarkRead("error")
				return err
			}
		} else {
			t.mu.Lock()
			t.lastAckedSeenID = newest
			t.mu.Unlock()
		}
	}

	if needaction > 0 {
		if err := t.msgLog.MarkAllRead(ctx, t.ID, t.UserID); err != nil {
			if !errors.Is(err, repositories.ErrThreadNotFound) {
				observability.IncMarkRead("error")
				return err
			}
		} else {
			t.mu.Lock()
			if m := t.selfMemberLocked(); m != nil {
				m.NeedactionCount = 0
			}
			t.mu.Unlock()
		}
	}
	observability.IncMarkRead("ok")
	return nil
}

func (t *Thread) takeQueuedMarkReadLocked() bool {
	queued := t.markReadQueued
	t.markReadQueued = false
	return queued
}
