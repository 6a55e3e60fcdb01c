package thread

import (
	"context"
	"time"

	"thread-sync/internal/models"
	"thread-sync/internal/observability"
	"thread-sync/internal/repositories"
)

// PostOptions carries the optional parts of a message submission.
type PostOptions struct {
	ParentID   *int
	MentionIDs []int
}

// Post submits a message optimistically: a placeholder with a temporary
// negative id appears at the end of the window immediately, then the log
// confirms the persisted id. If the placeholder is still in the window when
// the confirmation arrives, the confirmed message takes its slot so the entry
// never visibly moves. On transport failure the placeholder stays, marked
// pending, and the error is returned for the caller to retry or discard.
func (t *Thread) Post(ctx context.Context, body string, opts PostOptions) (models.Message, error) {
	tempID := t.store.nextTempID()
	temp := models.Message{
		ID:        tempID,
		ThreadID:  t.ID,
		AuthorID:  t.UserID,
		Body:      body,
		ParentID:  opts.ParentID,
		Status:    models.MessagePending,
		CreatedAt: time.Now(),
	}

	t.mu.Lock()
	t.window.appendRaw(temp)
	// The author has read everything up to their own message.
	if id, ok := t.window.newestPersisted(); ok {
		t.advanceSelfSeenLocked(id)
	}
	event := t.addedEventLocked(&temp)
	t.mu.Unlock()
	t.notifier.PublishWindowEvent(event.WindowEvent)

	confirmed, err := t.msgLog.PostMessage(ctx, repositories.PostRequest{
		ThreadID:    t.ID,
		AuthorID:    t.UserID,
		Body:        body,
		ParentID:    opts.ParentID,
		MentionIDs:  opts.MentionIDs,
		ClientToken: int64(tempID),
	})
	if err != nil {
		observability.IncPost("error")
		return temp, err
	}

	t.mu.Lock()
	tempIdx := t.window.indexOf(tempID)
	switch {
	case t.window.contains(confirmed.ID):
		// Already delivered through push; nothing to place, only the
		// placeholder to retire below.
	case tempIdx >= 0 && confirmed.AuthorID == t.UserID:
		t.window.replaceAt(tempIdx, confirmed)
	default:
		t.window.insert(confirmed)
	}
	t.advanceSelfSeenLocked(confirmed.ID)
	// Remove the placeholder only after the watermark moved, so the entry
	// never flickers to unread.
	t.window.remove(tempID)
	confirmEvent := t.eventLocked(models.EventMessageConfirmed, &confirmed)
	confirmEvent.TempID = tempID
	t.mu.Unlock()

	observability.IncPost("ok")
	t.notifier.PublishWindowEvent(confirmEvent.WindowEvent)
	return confirmed, nil
}

func (t *Thread) advanceSelfSeenLocked(id int) {
	if m := t.selfMemberLocked(); m != nil && id > m.SeenMessageID {
		m.SeenMessageID = id
	}
}
