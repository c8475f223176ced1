package chat

import (
	"strconv"
	"testing"

	"github.com/nvoronin/gatechat/internal/domain"
)

func appendN(h *HistoryBuffer, room string, n int) {
	for i := 0; i < n; i++ {
		h.Append(room, domain.NewMessage("Alice", "msg "+strconv.Itoa(i)))
	}
}

func TestHistoryBuffer_EvictsOldestBeyondCapacity(t *testing.T) {
	h := NewHistoryBuffer(50)
	appendN(h, domain.DefaultRoom, 51)

	got := h.Snapshot(domain.DefaultRoom)
	if len(got) != 50 {
		t.Fatalf("history holds %d entries, expected 50", len(got))
	}
	if got[0].Body != "msg 1" {
		t.Errorf("oldest entry = %q, expected msg 1 (msg 0 evicted)", got[0].Body)
	}
	if got[49].Body != "msg 50" {
		t.Errorf("newest entry = %q, expected msg 50", got[49].Body)
	}
}

func TestHistoryBuffer_ReplayOrderIsInsertionOrder(t *testing.T) {
	h := NewHistoryBuffer(10)
	appendN(h, domain.DefaultRoom, 5)

	got := h.Snapshot(domain.DefaultRoom)
	for i, msg := range got {
		if want := "msg " + strconv.Itoa(i); msg.Body != want {
			t.Errorf("entry %d = %q, expected %q", i, msg.Body, want)
		}
	}
}

func TestHistoryBuffer_RoomsIsolated(t *testing.T) {
	h := NewHistoryBuffer(10)
	appendN(h, "general", 3)

	if n := h.Len("random"); n != 0 {
		t.Errorf("unrelated room holds %d entries", n)
	}
	if n := h.Len("general"); n != 3 {
		t.Errorf("room holds %d entries, expected 3", n)
	}
}

func TestHistoryBuffer_SnapshotIsCopy(t *testing.T) {
	h := NewHistoryBuffer(10)
	appendN(h, domain.DefaultRoom, 2)

	snap := h.Snapshot(domain.DefaultRoom)
	snap[0].Body = "mutated"

	if h.Snapshot(domain.DefaultRoom)[0].Body == "mutated" {
		t.Error("mutating a snapshot leaked into the buffer")
	}
}

func TestHistoryBuffer_Drop(t *testing.T) {
	h := NewHistoryBuffer(10)
	appendN(h, "general", 3)

	h.Drop("general")
	if n := h.Len("general"); n != 0 {
		t.Errorf("dropped room still holds %d entries", n)
	}
}
