package chat

import (
	"time"

	"github.com/nvoronin/gatechat/internal/domain"
)

// Inbound event types dispatched by the supervisor.
const (
	evVerify          = "verify"
	evSetUsername     = "setUsername"
	evJoinRoom        = "joinRoom"
	evChatMessage     = "chatMessage"
	evRequestUserList = "requestUserList"
	evPing            = "ping"
)

// Outbound event types.
const (
	evVerifyRequired = "verifyRequired"
	evVerifySuccess  = "verifySuccess"
	evVerifyFailed   = "verifyFailed"
	evWelcome        = "welcome"
	evUserJoined     = "userJoined"
	evUserLeft       = "userLeft"
	evNewMessage     = "newMessage"
	evUserList       = "userList"
	evOnlineCount    = "onlineCount"
	evRateLimited    = "rateLimited"
	evPong           = "pong"
)

// InboundFrame is the decoded form of one client event. Unused fields
// stay empty; the Type tag selects the handler.
type InboundFrame struct {
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
	Message  string `json:"message,omitempty"`
}

// PromptEvent carries a plain server prompt (verifyRequired,
// verifySuccess, rateLimited).
type PromptEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// VerifyFailedEvent reports a failed verification attempt. Blocked and
// RetryAfter are set only for lockout rejections.
type VerifyFailedEvent struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Blocked    bool   `json:"blocked,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// WelcomeEvent replays the room history and online users to a newly
// admitted or room-switching session.
type WelcomeEvent struct {
	Type        string           `json:"type"`
	History     []domain.Message `json:"history"`
	OnlineUsers []string         `json:"onlineUsers"`
}

// PresenceEvent announces a join or leave to a room's membership.
type PresenceEvent struct {
	Type      string    `json:"type"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageEvent wraps an accepted chat message for broadcast.
type NewMessageEvent struct {
	Type string `json:"type"`
	domain.Message
}

// UserListEntry is one row of the online-user listing.
type UserListEntry struct {
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// UserListEvent answers a requestUserList event.
type UserListEvent struct {
	Type  string          `json:"type"`
	Users []UserListEntry `json:"users"`
}

// OnlineCountEvent broadcasts the current verified-user census.
type OnlineCountEvent struct {
	Type  string   `json:"type"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// PongEvent answers a heartbeat with the server clock in milliseconds.
type PongEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
