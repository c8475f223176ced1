// Package domain contains core domain types for the chat relay.
package domain

import (
	"time"
)

// DefaultRoom is the room every session joins after verification.
const DefaultRoom = "global"

// Session represents one live connection and its verification state.
// ConnectionTable is the exclusive owner of Session records; other
// components read or mutate them through the table's accessors.
type Session struct {
	ID          string    `json:"id"`
	Name        string    `json:"username,omitempty"`
	Verified    bool      `json:"verified"`
	Code        string    `json:"-"`
	Room        string    `json:"room"`
	ConnectedAt time.Time `json:"connected_at"`
}
