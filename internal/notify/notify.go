// Package notify delivers best-effort event notifications to an external
// collaborator (a Discord-style webhook). Delivery never blocks or fails
// core chat operations: events are handed to a bounded queue and dropped
// when it is full.
package notify

// Kind identifies the event being reported.
type Kind string

// Notification kinds emitted by the chat core.
const (
	KindVerifySucceeded  Kind = "verifySucceeded"
	KindVerifyFailed     Kind = "verifyFailed"
	KindUserConnected    Kind = "userConnected"
	KindUserDisconnected Kind = "userDisconnected"
	KindChatMessage      Kind = "chatMessage"
)

// Fields carries the event payload. Field names used by the core:
// "username", "code" (already masked), "message".
type Fields map[string]string

// Sink consumes notifications. Implementations must not block the caller
// and must swallow (log, not propagate) their own delivery failures.
type Sink interface {
	Notify(kind Kind, fields Fields)
}

// NopSink discards all notifications. Used when no webhook is configured.
type NopSink struct{}

// Notify implements Sink.
func (NopSink) Notify(Kind, Fields) {}

const redactionMarker = "*****"

// MaskCode redacts an authorization code for external logs, revealing at
// most the first two and last two characters around a fixed-width marker.
func MaskCode(code string) string {
	if len(code) <= 4 {
		return redactionMarker
	}
	return code[:2] + redactionMarker + code[len(code)-2:]
}
