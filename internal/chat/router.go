package chat

import (
	"log/slog"

	"github.com/nvoronin/gatechat/internal/domain"
	"github.com/nvoronin/gatechat/internal/notify"
)

// SubmitStatus classifies the outcome of a message submission.
type SubmitStatus int

// Submission outcomes. SubmitEmpty (nothing left after trimming) is a
// silent no-op; SubmitRateLimited is signaled back to the sender only.
const (
	SubmitAccepted SubmitStatus = iota
	SubmitNotVerified
	SubmitRateLimited
	SubmitEmpty
)

// MessageRouter sanitizes, stores, and broadcasts chat messages to the
// verified membership of the sender's room.
type MessageRouter struct {
	table   *ConnectionTable
	rate    *RateBudget
	history *HistoryBuffer
	sink    notify.Sink
}

// NewMessageRouter wires the router to the shared tables.
func NewMessageRouter(table *ConnectionTable, rate *RateBudget, history *HistoryBuffer, sink notify.Sink) *MessageRouter {
	return &MessageRouter{table: table, rate: rate, history: history, sink: sink}
}

// Submit processes one raw message from the session. On acceptance the
// message is appended to the room history, broadcast to every verified
// room member (sender included), and forwarded to the notification sink.
// Rejections have no side effects on shared state.
func (r *MessageRouter) Submit(id, rawText string) (SubmitStatus, domain.Message) {
	sess, ok := r.table.Get(id)
	if !ok || !sess.Verified {
		return SubmitNotVerified, domain.Message{}
	}

	if !r.rate.Check(id) {
		slog.Debug("Message rate limited", "session_id", id, "username", sess.Name)
		return SubmitRateLimited, domain.Message{}
	}

	max := MaxMessageLen
	if sess.Room != domain.DefaultRoom {
		max = MaxRoomMessageLen
	}
	body := sanitizeBody(rawText, max)
	if body == "" {
		return SubmitEmpty, domain.Message{}
	}

	msg := domain.NewMessage(sess.Name, body)
	r.history.Append(sess.Room, msg)

	broadcast(r.table.RoomConns(sess.Room, ""), NewMessageEvent{Type: evNewMessage, Message: msg})

	r.sink.Notify(notify.KindChatMessage, notify.Fields{
		"username": msg.Username,
		"message":  msg.Body,
	})
	return SubmitAccepted, msg
}

// broadcast delivers an event to each transport independently: a slow or
// closed peer never blocks or fails delivery to the others. The conns
// slice is a snapshot taken outside any table lock.
func broadcast(conns []Conn, v any) {
	for _, c := range conns {
		if err := c.Send(v); err != nil {
			slog.Debug("Broadcast delivery failed", "error", err)
		}
	}
}
