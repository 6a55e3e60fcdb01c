package thread

import (
	"sync"

	"thread-sync/internal/models"
	"thread-sync/internal/repositories"
)

// DefaultPageSize is the fetch limit L used when none is configured.
const DefaultPageSize = 30

// Key identifies one member's view of a thread.
type Key struct {
	Model    string
	ThreadID int
	UserID   int
}

// Store is the registry of live Thread instances. It owns the page size and
// the temporary-id counter, and routes push deliveries to every materialized
// view of the affected thread.
type Store struct {
	msgLog   repositories.MessageLog
	notifier Notifier
	limit    int

	mu      sync.Mutex
	threads map[Key]*Thread
	tempID  int
}

// NewStore builds a Store. A nil notifier disables broadcasting.
func NewStore(msgLog repositories.MessageLog, notifier Notifier, limit int) *Store {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Store{
		msgLog:   msgLog,
		notifier: notifier,
		limit:    limit,
		threads:  make(map[Key]*Thread),
	}
}

// Thread returns the view for (model, threadID) as seen by userID, creating
// it empty on first use.
func (s *Store) Thread(model string, threadID, userID int) *Thread {
	key := Key{Model: model, ThreadID: threadID, UserID: userID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[key]; ok {
		return t
	}
	t := &Thread{
		Model:    model,
		ID:       threadID,
		UserID:   userID,
		store:    s,
		msgLog:   s.msgLog,
		notifier: s.notifier,
		status:   statusIdle,
	}
	s.threads[key] = t
	return t
}

// Evict drops a thread view. Window state is a cache; nothing is persisted.
func (s *Store) Evict(model string, threadID, userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, Key{Model: model, ThreadID: threadID, UserID: userID})
}

// HandlePush fans a pushed message out to every live view of its thread.
func (s *Store) HandlePush(event models.MessageCreatedEvent) {
	s.mu.Lock()
	targets := make([]*Thread, 0, 4)
	for key, t := range s.threads {
		if key.Model == event.ThreadModel && key.ThreadID == event.ThreadID {
			targets = append(targets, t)
		}
	}
	s.mu.Unlock()

	for _, t := range targets {
		t.HandlePush(event.Message)
	}
}

// nextTempID returns the next temporary message id. Temporary ids are
// negative, unique across the store, and never sent to the log as ids.
func (s *Store) nextTempID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempID--
	return s.tempID
}

type noopNotifier struct{}

func (noopNotifier) PublishWindowEvent(models.WindowEvent) {}
