package thread

import (
	"context"
	"log"
	"sync"

	"thread-sync/internal/models"
	"thread-sync/internal/observability"
	"thread-sync/internal/repositories"
)

// Thread model kinds. Channels receive every message over push, so a loaded
// channel never needs FetchNewMessages again; plain threads re-fetch.
const (
	ModelThread  = "thread"
	ModelChannel = "channel"
)

// Notifier receives window events for broadcasting. The engine never blocks
// on it.
type Notifier interface {
	PublishWindowEvent(event models.WindowEvent)
}

// Thread materializes one member's view of a thread: the message window, the
// push buffer, fetch status, and read state. All state is owned exclusively
// by this instance and guarded by its mutex; the mutex is never held across a
// remote call.
type Thread struct {
	Model  string
	ID     int
	UserID int

	store    *Store
	msgLog   repositories.MessageLog
	notifier Notifier

	mu               sync.Mutex
	window           window
	pending          pendingBuffer
	transients       []models.Message
	status           fetchStatus
	aroundInFlight   bool
	isLoaded         bool
	hasLoadingFailed bool
	members          []models.ThreadMember
	membersLoaded    bool
	markReadQueued   bool
	lastAckedSeenID  int
}

// HandlePush reconciles a message delivered over the push bus. Deliveries
// arriving while a fetch is in flight, or before the newer edge is confirmed,
// are buffered so they are not lost; they drain once a newer fetch completes
// boundary-free.
func (t *Thread) HandlePush(msg models.Message) {
	if msg.ThreadID != t.ID {
		return
	}
	msg.Status = models.MessagePersisted

	t.mu.Lock()
	if t.window.contains(msg.ID) {
		t.mu.Unlock()
		return
	}
	if !t.isLoaded || t.status == statusLoading || t.aroundInFlight || t.window.hasNewer {
		if t.pending.add(msg) {
			t.bumpNeedactionLocked(msg)
			observability.IncPushBuffered()
		}
		t.mu.Unlock()
		return
	}
	t.window.insert(msg)
	t.bumpNeedactionLocked(msg)
	t.mergeTransientsLocked()
	event := t.addedEventLocked(&msg)
	t.mu.Unlock()

	observability.ObserveWindowSize(float64(event.windowLen))
	t.notifier.PublishWindowEvent(event.WindowEvent)
}

// bumpNeedactionLocked counts a freshly delivered needaction toward the
// viewer: only once per message id, and only when the viewer is among the
// mentioned members, mirroring what the log records per member.
func (t *Thread) bumpNeedactionLocked(msg models.Message) {
	if !msg.Needaction || msg.AuthorID == t.UserID {
		return
	}
	mentioned := false
	for _, id := range msg.MentionIDs {
		if id == t.UserID {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return
	}
	if m := t.selfMemberLocked(); m != nil {
		m.NeedactionCount++
	}
}

// AddTransient displays an ephemeral message inline. It is merged at its id
// position and re-applied after every window replace; it never touches
// boundary flags and never reaches the log.
func (t *Thread) AddTransient(msg models.Message) {
	msg.ThreadID = t.ID
	msg.Status = models.MessageTransient

	t.mu.Lock()
	t.transients = append(t.transients, msg)
	t.mergeTransientsLocked()
	event := t.addedEventLocked(&msg)
	t.mu.Unlock()

	t.notifier.PublishWindowEvent(event.WindowEvent)
}

// mergeTransientsLocked re-inserts every registered transient message that a
// window-replacing operation evicted: below the oldest persisted id it lands
// at the front, above the newest at the back, anywhere else immediately
// before the first strictly greater id.
func (t *Thread) mergeTransientsLocked() {
	for _, tr := range t.transients {
		if !t.window.contains(tr.ID) {
			t.window.insert(tr)
		}
	}
}

// ensureMembers lazily fetches the member list with seen watermarks. Failures
// are logged and retried on the next load; read state degrades to empty.
func (t *Thread) ensureMembers(ctx context.Context) {
	t.mu.Lock()
	loaded := t.membersLoaded
	t.mu.Unlock()
	if loaded {
		return
	}

	members, err := t.msgLog.ListMembers(ctx, t.ID)
	if err != nil {
		log.Printf("list members failed thread=%d: %v", t.ID, err)
		return
	}

	t.mu.Lock()
	t.members = members
	if t.selfMemberLocked() == nil {
		t.members = append(t.members, models.ThreadMember{ThreadID: t.ID, UserID: t.UserID})
	}
	t.membersLoaded = true
	t.mu.Unlock()
}

func (t *Thread) selfMemberLocked() *models.ThreadMember {
	for i := range t.members {
		if t.members[i].UserID == t.UserID {
			return &t.members[i]
		}
	}
	return nil
}

// Snapshot returns the current window state with derived read-state fields.
func (t *Thread) Snapshot() models.WindowSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := models.WindowSnapshot{
		ThreadModel:      t.Model,
		ThreadID:         t.ID,
		Messages:         t.window.messages(),
		HasOlder:         t.window.hasOlder,
		HasNewer:         t.window.hasNewer,
		IsLoaded:         t.isLoaded,
		HasLoadingFailed: t.hasLoadingFailed,
		UnreadCount:      t.unreadCountLocked(),
	}
	snap.IsUnread = snap.UnreadCount > 0
	if first := t.firstUnreadLocked(); first != nil {
		snap.FirstUnreadMessageID = first.ID
	}
	snap.LastMessageSeenByAll = t.lastSeenByAllLocked()
	return snap
}

// HasOlder reports whether older messages may exist beyond the window.
func (t *Thread) HasOlder() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window.hasOlder
}

// HasNewer reports whether newer messages may exist beyond the window.
func (t *Thread) HasNewer() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window.hasNewer
}

// IsLoaded reports whether an initial load has completed.
func (t *Thread) IsLoaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isLoaded
}

// HasLoadingFailed reports the sticky failure indicator of the last fetch.
func (t *Thread) HasLoadingFailed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasLoadingFailed
}

// Messages returns a copy of the window contents in display order.
func (t *Thread) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window.messages()
}

type windowEvent struct {
	models.WindowEvent
	windowLen int
}

func (t *Thread) addedEventLocked(msg *models.Message) windowEvent {
	return t.eventLocked(models.EventMessageAdded, msg)
}

func (t *Thread) eventLocked(typ string, msg *models.Message) windowEvent {
	return windowEvent{
		WindowEvent: models.WindowEvent{
			Type:        typ,
			ThreadModel: t.Model,
			ThreadID:    t.ID,
			Message:     msg,
			HasOlder:    t.window.hasOlder,
			HasNewer:    t.window.hasNewer,
		},
		windowLen: t.window.len(),
	}
}
