package chat

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nvoronin/gatechat/internal/domain"
	"github.com/nvoronin/gatechat/internal/notify"
)

// Supervisor orchestrates the lifecycle of every connection: it creates
// sessions on connect, dispatches inbound events to the admission gate
// and message router, and tears sessions down exactly once on
// disconnect.
type Supervisor struct {
	table   *ConnectionTable
	names   *NameRegistry
	gate    *AdmissionGate
	router  *MessageRouter
	rate    *RateBudget
	history *HistoryBuffer
	sink    notify.Sink
}

// NewSupervisor wires the supervisor to the shared chat components.
func NewSupervisor(table *ConnectionTable, names *NameRegistry, gate *AdmissionGate, router *MessageRouter, rate *RateBudget, history *HistoryBuffer, sink notify.Sink) *Supervisor {
	return &Supervisor{
		table:   table,
		names:   names,
		gate:    gate,
		router:  router,
		rate:    rate,
		history: history,
		sink:    sink,
	}
}

// Connect registers a new unverified session and prompts the client to
// verify. The transport must guarantee a unique id per connection.
func (s *Supervisor) Connect(id, addr string, conn Conn) error {
	if err := s.table.Create(id, addr, conn); err != nil {
		return fmt.Errorf("register session %s: %w", id, err)
	}
	slog.Info("Client connected", "session_id", id, "addr", addr)
	s.send(conn, PromptEvent{Type: evVerifyRequired, Message: "Please verify with your access code"})
	return nil
}

// Disconnect tears the session down. Safe to call more than once per
// connection; only the first call releases the name, notifies peers, and
// emits the departure notification.
func (s *Supervisor) Disconnect(id string) {
	sess, deleted := s.table.Delete(id)
	s.rate.Forget(id)
	if !deleted {
		return
	}

	if !sess.Verified {
		slog.Debug("Unverified client disconnected", "session_id", id)
		return
	}

	s.names.Release(id)
	slog.Info("Client disconnected", "session_id", id, "username", sess.Name)

	broadcast(s.table.RoomConns(sess.Room, ""), PresenceEvent{
		Type:      evUserLeft,
		Username:  sess.Name,
		Message:   sess.Name + " left the chat",
		Timestamp: time.Now(),
	})
	s.dropRoomIfEmpty(sess.Room)
	s.broadcastOnlineCount()

	s.sink.Notify(notify.KindUserDisconnected, notify.Fields{
		"username": sess.Name,
		"code":     notify.MaskCode(sess.Code),
	})
}

// Handle dispatches one inbound event from the session's transport.
func (s *Supervisor) Handle(id string, frame InboundFrame) {
	switch frame.Type {
	case evVerify:
		s.handleVerify(id, frame.Code, frame.Username)
	case evSetUsername:
		s.handleSetUsername(id, frame.Username)
	case evJoinRoom:
		s.handleJoinRoom(id, frame.Room)
	case evChatMessage:
		s.handleChatMessage(id, frame.Message)
	case evRequestUserList:
		s.handleUserList(id)
	case evPing:
		s.sendTo(id, PongEvent{Type: evPong, Timestamp: time.Now().UnixMilli()})
	default:
		slog.Debug("Ignoring unknown event", "session_id", id, "type", frame.Type)
	}
}

// ConnectedCount returns the number of live connections, verified or not.
func (s *Supervisor) ConnectedCount() int {
	return s.table.Len()
}

func (s *Supervisor) handleVerify(id, code, username string) {
	sess, ok := s.table.Get(id)
	if !ok {
		return
	}
	if sess.Verified {
		s.sendTo(id, PromptEvent{Type: evVerifySuccess, Message: "Already verified"})
		return
	}

	addr, _ := s.table.Origin(id)
	res := s.gate.Verify(id, code, username, addr)
	switch res.Status {
	case VerifyBlocked:
		s.sendTo(id, VerifyFailedEvent{
			Type:       evVerifyFailed,
			Message:    "Too many failed attempts, try again later",
			Blocked:    true,
			RetryAfter: int(res.RetryAfter.Round(time.Second).Seconds()),
		})
	case VerifyInvalidName:
		s.sendTo(id, VerifyFailedEvent{Type: evVerifyFailed, Message: res.Reason})
	case VerifyFailed:
		s.sendTo(id, VerifyFailedEvent{Type: evVerifyFailed, Message: "Code invalid, try again"})
	case VerifyOK:
		s.completeJoin(id, username, res.Code)
	}
}

// completeJoin finishes a successful verification: allocates the unique
// display name, flips the session to verified under that name, replays
// history, and announces the arrival. The admission record and webhook
// carry the allocated name, not the requested one.
func (s *Supervisor) completeJoin(id, requested, code string) {
	name := s.names.Allocate(id, requested)
	if !s.table.MarkVerified(id, code, name) {
		// Disconnected mid-verify; free the name again.
		s.names.Release(id)
		return
	}

	conn, _ := s.table.Conn(id)
	if conn != nil {
		s.send(conn, PromptEvent{Type: evVerifySuccess, Message: "Verification successful, welcome to the chat"})
		s.send(conn, WelcomeEvent{
			Type:        evWelcome,
			History:     s.history.Snapshot(domain.DefaultRoom),
			OnlineUsers: s.roomNames(domain.DefaultRoom),
		})
	}

	broadcast(s.table.RoomConns(domain.DefaultRoom, id), PresenceEvent{
		Type:      evUserJoined,
		Username:  name,
		Message:   name + " joined the chat",
		Timestamp: time.Now(),
	})
	s.broadcastOnlineCount()

	s.gate.RecordAdmission(code, name)
	s.sink.Notify(notify.KindUserConnected, notify.Fields{
		"username": name,
		"code":     notify.MaskCode(code),
	})
}

func (s *Supervisor) handleSetUsername(id, requested string) {
	sess, ok := s.table.Get(id)
	if !ok || !sess.Verified {
		s.verifyRequired(id)
		return
	}
	if err := ValidateDisplayName(requested); err != nil {
		s.sendTo(id, VerifyFailedEvent{Type: evVerifyFailed, Message: err.Error()})
		return
	}

	name := s.names.Rename(id, requested)
	s.table.SetName(id, name)
	slog.Info("Display name changed", "session_id", id, "old", sess.Name, "new", name)
	s.broadcastOnlineCount()
}

func (s *Supervisor) handleJoinRoom(id, requested string) {
	sess, ok := s.table.Get(id)
	if !ok || !sess.Verified {
		s.verifyRequired(id)
		return
	}

	room := sanitizeRoom(requested)
	if room == sess.Room {
		return
	}
	prev, ok := s.table.SetRoom(id, room)
	if !ok {
		return
	}

	now := time.Now()
	broadcast(s.table.RoomConns(prev, id), PresenceEvent{
		Type:      evUserLeft,
		Username:  sess.Name,
		Message:   sess.Name + " left the room",
		Timestamp: now,
	})
	s.dropRoomIfEmpty(prev)

	broadcast(s.table.RoomConns(room, id), PresenceEvent{
		Type:      evUserJoined,
		Username:  sess.Name,
		Message:   sess.Name + " joined the room",
		Timestamp: now,
	})

	s.sendTo(id, WelcomeEvent{
		Type:        evWelcome,
		History:     s.history.Snapshot(room),
		OnlineUsers: s.roomNames(room),
	})
	slog.Info("Room changed", "session_id", id, "username", sess.Name, "from", prev, "to", room)
}

func (s *Supervisor) handleChatMessage(id, text string) {
	status, _ := s.router.Submit(id, text)
	switch status {
	case SubmitNotVerified:
		s.verifyRequired(id)
	case SubmitRateLimited:
		s.sendTo(id, PromptEvent{Type: evRateLimited, Message: "You are sending messages too quickly, slow down"})
	case SubmitAccepted, SubmitEmpty:
		// Router handled delivery; empty bodies are dropped silently.
	}
}

func (s *Supervisor) handleUserList(id string) {
	sess, ok := s.table.Get(id)
	if !ok || !sess.Verified {
		s.verifyRequired(id)
		return
	}

	verified := s.table.ListVerified()
	users := make([]UserListEntry, 0, len(verified))
	for _, v := range verified {
		users = append(users, UserListEntry{Username: v.Name, ConnectedAt: v.ConnectedAt})
	}
	s.sendTo(id, UserListEvent{Type: evUserList, Users: users})
}

func (s *Supervisor) verifyRequired(id string) {
	s.sendTo(id, PromptEvent{Type: evVerifyRequired, Message: "You must verify before doing that"})
}

func (s *Supervisor) broadcastOnlineCount() {
	verified := s.table.ListVerified()
	names := make([]string, 0, len(verified))
	for _, v := range verified {
		names = append(names, v.Name)
	}
	broadcast(s.table.RoomConns("", ""), OnlineCountEvent{
		Type:  evOnlineCount,
		Count: len(names),
		Users: names,
	})
}

func (s *Supervisor) roomNames(room string) []string {
	sessions := s.table.RoomSessions(room)
	names := make([]string, 0, len(sessions))
	for _, v := range sessions {
		names = append(names, v.Name)
	}
	return names
}

func (s *Supervisor) dropRoomIfEmpty(room string) {
	if room != domain.DefaultRoom && s.table.RoomEmpty(room) {
		s.history.Drop(room)
	}
}

func (s *Supervisor) sendTo(id string, v any) {
	if conn, ok := s.table.Conn(id); ok {
		s.send(conn, v)
	}
}

func (s *Supervisor) send(conn Conn, v any) {
	if err := conn.Send(v); err != nil {
		slog.Debug("Send failed", "error", err)
	}
}
