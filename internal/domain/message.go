package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageKindUser marks a regular chat message authored by a user.
const MessageKindUser = "user"

// Message is one chat message as stored in history and broadcast to
// clients. The author name is a snapshot taken at send time and never
// updated retroactively. Kind keeps its own key so a message embedded
// in an event frame serializes the same as a history entry.
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
}

// NewMessage builds a user message with a collision-resistant ID composed
// from the wall-clock timestamp and a random tiebreaker.
func NewMessage(username, body string) Message {
	now := time.Now()
	return Message{
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		Username:  username,
		Body:      body,
		Timestamp: now,
		Kind:      MessageKindUser,
	}
}
