package chat

import (
	"sync"

	"github.com/nvoronin/gatechat/internal/domain"
)

// DefaultHistoryLimit is the bounded replay window per room.
const DefaultHistoryLimit = 50

// HistoryBuffer holds the bounded per-room message history replayed to
// newly admitted participants. Eviction is strict FIFO: appending beyond
// capacity drops exactly the oldest record. Replay order is insertion
// order.
type HistoryBuffer struct {
	mu    sync.Mutex
	limit int
	rooms map[string][]domain.Message
}

// NewHistoryBuffer creates a buffer keeping at most limit messages per
// room. A non-positive limit falls back to the default.
func NewHistoryBuffer(limit int) *HistoryBuffer {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistoryBuffer{
		limit: limit,
		rooms: make(map[string][]domain.Message),
	}
}

// Append records a message in the room's history, evicting the oldest
// entry when the room is at capacity.
func (h *HistoryBuffer) Append(room string, msg domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := append(h.rooms[room], msg)
	if len(msgs) > h.limit {
		// Copy forward so the backing array does not pin evicted entries.
		msgs = append(msgs[:0:0], msgs[len(msgs)-h.limit:]...)
	}
	h.rooms[room] = msgs
}

// Snapshot returns a copy of the room's history in replay order.
func (h *HistoryBuffer) Snapshot(room string) []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.rooms[room]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Len returns the number of messages held for the room.
func (h *HistoryBuffer) Len(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Drop discards a room's history. Called when the last member of a
// non-default room leaves.
func (h *HistoryBuffer) Drop(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, room)
}
