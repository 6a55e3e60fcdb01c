package thread

import (
	"context"

	"thread-sync/internal/models"
	"thread-sync/internal/observability"
	"thread-sync/internal/repositories"
)

// Direction selects which edge of the window a continuation fetch extends.
type Direction string

const (
	DirectionOlder Direction = "older"
	DirectionNewer Direction = "newer"
)

type fetchStatus string

const (
	statusIdle    fetchStatus = "idle"
	statusLoading fetchStatus = "loading"
	statusReady   fetchStatus = "ready"
)

// FetchMoreMessages extends the window past its older or newer edge by one
// page. It is a no-op while another continuation fetch is in flight or when
// the requested edge is already known to be the log's true edge. The result
// is discarded wholesale if a concurrent LoadAround replaced the window while
// the fetch was suspended.
func (t *Thread) FetchMoreMessages(ctx context.Context, direction Direction) error {
	t.mu.Lock()
	if t.status == statusLoading {
		t.mu.Unlock()
		return nil
	}
	if direction == DirectionOlder && !t.window.hasOlder {
		t.mu.Unlock()
		return nil
	}
	if direction == DirectionNewer && !t.window.hasNewer {
		t.mu.Unlock()
		return nil
	}

	var anchor *int
	if direction == DirectionOlder {
		if id, ok := t.window.oldestPersisted(); ok {
			anchor = &id
		}
	} else {
		if id, ok := t.window.newestPersisted(); ok {
			anchor = &id
		}
	}
	t.status = statusLoading
	t.mu.Unlock()

	req := repositories.FetchRequest{ThreadID: t.ID, Limit: t.store.limit}
	if direction == DirectionOlder {
		req.Before = anchor
	} else {
		req.After = anchor
	}
	msgs, err := t.fetchPage(ctx, req)

	t.mu.Lock()
	var ev *windowEvent
	defer func() {
		if ev != nil {
			observability.ObserveWindowSize(float64(ev.windowLen))
			t.notifier.PublishWindowEvent(ev.WindowEvent)
		}
	}()
	defer t.mu.Unlock()
	t.status = statusReady
	if direction == DirectionNewer {
		// The buffer is tied to the in-flight newer fetch; once it completes,
		// buffered deliveries are either merged or obsolete.
		defer t.pending.clear()
	}
	if err != nil {
		t.hasLoadingFailed = true
		observability.IncFetch(string(direction), "error")
		return err
	}
	if anchor != nil && !t.window.contains(*anchor) {
		// The window was replaced while we were suspended; the page belongs
		// to a view that no longer exists.
		observability.IncFetch(string(direction), "race_abort")
		return nil
	}

	for _, m := range msgs {
		t.window.insert(m)
	}
	if len(msgs) < t.store.limit {
		if direction == DirectionOlder {
			t.window.hasOlder = false
		} else {
			t.window.hasNewer = false
		}
	}
	if direction == DirectionNewer && !t.window.hasNewer {
		t.drainPendingLocked()
	}
	t.mergeTransientsLocked()
	observability.IncFetch(string(direction), "ok")
	e := t.eventLocked(models.EventWindowReplaced, nil)
	ev = &e
	return nil
}

// FetchNewMessages catches the window up to the newest edge of the log. It is
// a no-op while a fetch is in flight, and for channels once loaded, since
// push keeps them current.
func (t *Thread) FetchNewMessages(ctx context.Context) error {
	t.mu.Lock()
	if t.status == statusLoading {
		t.mu.Unlock()
		return nil
	}
	if t.isLoaded && t.Model == ModelChannel {
		t.mu.Unlock()
		return nil
	}

	var anchor *int
	if t.isLoaded {
		if id, ok := t.window.newestPersisted(); ok {
			anchor = &id
		}
	}
	t.status = statusLoading
	t.mu.Unlock()

	msgs, err := t.fetchPage(ctx, repositories.FetchRequest{ThreadID: t.ID, Limit: t.store.limit, After: anchor})

	t.mu.Lock()
	t.status = statusReady
	if err != nil {
		t.hasLoadingFailed = true
		t.mu.Unlock()
		observability.IncFetch("new", "error")
		return err
	}
	if anchor != nil && !t.window.contains(*anchor) {
		t.mu.Unlock()
		observability.IncFetch("new", "race_abort")
		return nil
	}

	// Drop ids inside the already-covered range before merging, so messages
	// scrolled past (or deleted from the log) are not resurrected. Coverage
	// is judged against the pre-merge window: inserting first would widen
	// the range and swallow legitimate gap-fillers.
	incoming := msgs[:0]
	for _, m := range msgs {
		if t.window.coversPersisted(m.ID) {
			continue
		}
		incoming = append(incoming, m)
	}
	for _, m := range incoming {
		t.window.insert(m)
	}
	if anchor == nil {
		t.window.hasOlder = len(msgs) == t.store.limit
		t.window.hasNewer = false
	} else if len(msgs) < t.store.limit {
		t.window.hasNewer = false
	}
	t.isLoaded = true
	t.mergeTransientsLocked()
	event := t.eventLocked(models.EventWindowReplaced, nil)
	flush := t.takeQueuedMarkReadLocked()
	t.mu.Unlock()

	observability.IncFetch("new", "ok")
	observability.ObserveWindowSize(float64(event.windowLen))
	t.notifier.PublishWindowEvent(event.WindowEvent)
	t.ensureMembers(ctx)
	if flush {
		return t.MarkAsRead(ctx)
	}
	return nil
}

// LoadAround jumps the window to the page surrounding target, or to the
// newest page when target is nil. The window is replaced wholesale; a
// continuation fetch suspended across the replace will race-abort on its
// stale anchor.
func (t *Thread) LoadAround(ctx context.Context, target *int) error {
	t.mu.Lock()
	if t.aroundInFlight {
		t.mu.Unlock()
		return nil
	}
	if t.isLoaded && target != nil && t.window.contains(*target) {
		t.mu.Unlock()
		return nil
	}
	if t.isLoaded && target == nil && !t.window.hasNewer {
		t.mu.Unlock()
		return nil
	}
	t.aroundInFlight = true
	t.mu.Unlock()

	msgs, err := t.fetchPage(ctx, repositories.FetchRequest{ThreadID: t.ID, Limit: 2 * t.store.limit, Around: target})

	t.mu.Lock()
	t.aroundInFlight = false
	if err != nil {
		t.hasLoadingFailed = true
		t.mu.Unlock()
		observability.IncFetch("around", "error")
		return err
	}

	t.window.reset(msgs)
	t.isLoaded = true
	t.window.hasNewer = target != nil
	t.window.hasOlder = true
	if target != nil {
		// Fewer than half a page (minus one of margin) on a side means that
		// side of the log was exhausted within this single fetch.
		older, newer := 0, 0
		for _, m := range msgs {
			if m.ID < *target {
				older++
			} else if m.ID > *target {
				newer++
			}
		}
		if older < t.store.limit-1 {
			t.window.hasOlder = false
		}
		if newer < t.store.limit-1 {
			t.window.hasNewer = false
		}
	}
	t.mergeTransientsLocked()
	event := t.eventLocked(models.EventWindowReplaced, nil)
	flush := t.takeQueuedMarkReadLocked()
	t.mu.Unlock()

	observability.IncFetch("around", "ok")
	observability.ObserveWindowSize(float64(event.windowLen))
	t.notifier.PublishWindowEvent(event.WindowEvent)
	t.ensureMembers(ctx)
	if flush {
		return t.MarkAsRead(ctx)
	}
	return nil
}

// fetchPage issues one paginated read and flips the transport's newest-first
// order to display order.
func (t *Thread) fetchPage(ctx context.Context, req repositories.FetchRequest) ([]models.Message, error) {
	msgs, err := t.msgLog.FetchMessages(ctx, req)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// drainPendingLocked folds buffered push deliveries into the window once the
// newer edge is confirmed. Known ids are dropped; the window stays ordered.
func (t *Thread) drainPendingLocked() {
	for _, m := range t.pending.items() {
		t.window.insert(m)
	}
	t.window.sort()
}
