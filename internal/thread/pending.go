package thread

import "thread-sync/internal/models"

// pendingBuffer holds messages delivered out-of-band while a fetch is in
// flight or the newer edge of the window is unconfirmed. It preserves arrival
// order and drops duplicate ids.
type pendingBuffer struct {
	msgs []models.Message
	seen map[int]struct{}
}

func (b *pendingBuffer) add(m models.Message) bool {
	if b.seen == nil {
		b.seen = make(map[int]struct{})
	}
	if _, ok := b.seen[m.ID]; ok {
		return false
	}
	b.seen[m.ID] = struct{}{}
	b.msgs = append(b.msgs, m)
	return true
}

func (b *pendingBuffer) items() []models.Message {
	return b.msgs
}

func (b *pendingBuffer) clear() {
	b.msgs = nil
	b.seen = nil
}

func (b *pendingBuffer) len() int {
	return len(b.msgs)
}
