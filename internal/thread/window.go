package thread

import (
	"sort"

	"thread-sync/internal/models"
)

// window is the gap-free, ordered slice of a thread's log currently held in
// memory. Two invariants hold at all times: no persisted id strictly between
// the window's oldest and newest persisted entries is missing (contiguity),
// and each id appears at most once (uniqueness). hasOlder/hasNewer stay true
// until a fetch proves the corresponding edge of the log was reached.
type window struct {
	msgs     []models.Message
	hasOlder bool
	hasNewer bool
}

// orderKey places persisted and transient messages by id, and pending ones
// after everything persisted, in posting order. Temporary ids count down from
// -1, so negating them keeps later posts later.
func orderKey(m models.Message) int {
	if m.Status == models.MessagePending {
		return (1 << 60) - m.ID
	}
	return m.ID
}

func (w *window) messages() []models.Message {
	out := make([]models.Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

func (w *window) indexOf(id int) int {
	for i := range w.msgs {
		if w.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (w *window) contains(id int) bool {
	return w.indexOf(id) >= 0
}

// oldestPersisted returns the lowest persisted id in the window.
func (w *window) oldestPersisted() (int, bool) {
	for i := range w.msgs {
		if w.msgs[i].IsPersisted() {
			return w.msgs[i].ID, true
		}
	}
	return 0, false
}

// newestPersisted returns the highest persisted id in the window.
func (w *window) newestPersisted() (int, bool) {
	for i := len(w.msgs) - 1; i >= 0; i-- {
		if w.msgs[i].IsPersisted() {
			return w.msgs[i].ID, true
		}
	}
	return 0, false
}

// coversPersisted reports whether id falls inside the persisted range already
// materialized. By contiguity, a covered id is either present or deleted from
// the log.
func (w *window) coversPersisted(id int) bool {
	oldest, ok := w.oldestPersisted()
	if !ok {
		return false
	}
	newest, _ := w.newestPersisted()
	return id >= oldest && id <= newest
}

// insert places the message at its id position, keeping order. Known ids are
// ignored, which makes merges idempotent.
func (w *window) insert(m models.Message) bool {
	if w.contains(m.ID) {
		return false
	}
	key := orderKey(m)
	at := sort.Search(len(w.msgs), func(i int) bool { return orderKey(w.msgs[i]) > key })
	w.msgs = append(w.msgs, models.Message{})
	copy(w.msgs[at+1:], w.msgs[at:])
	w.msgs[at] = m
	return true
}

// appendRaw places the message at the end of the window without ordering.
// Used for optimistic posts, which always belong at the newest edge.
func (w *window) appendRaw(m models.Message) {
	w.msgs = append(w.msgs, m)
}

func (w *window) replaceAt(i int, m models.Message) {
	w.msgs[i] = m
}

func (w *window) remove(id int) bool {
	i := w.indexOf(id)
	if i < 0 {
		return false
	}
	w.msgs = append(w.msgs[:i], w.msgs[i+1:]...)
	return true
}

// reset replaces the whole window. The slice is taken as-is and re-sorted.
func (w *window) reset(msgs []models.Message) {
	w.msgs = append(w.msgs[:0:0], msgs...)
	w.sort()
}

func (w *window) sort() {
	sort.SliceStable(w.msgs, func(i, j int) bool {
		return orderKey(w.msgs[i]) < orderKey(w.msgs[j])
	})
}

func (w *window) len() int {
	return len(w.msgs)
}
