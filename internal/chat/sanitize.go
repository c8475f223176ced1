package chat

import (
	"strings"

	"github.com/nvoronin/gatechat/internal/domain"
)

// Maximum raw message body lengths before markup escaping.
const (
	MaxMessageLen     = 500
	MaxRoomMessageLen = 300
	maxRoomNameLen    = 32
)

// markupEscaper rewrites the five characters that would let stored or
// broadcast text be interpreted as markup by a rendering client. A
// single-pass Replacer cannot double-escape the inserted entities.
var markupEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// sanitizeBody trims surrounding whitespace, truncates the body to max
// runes, and escapes markup characters. Returns "" when nothing usable
// remains; callers treat that as a silent no-op.
func sanitizeBody(raw string, max int) string {
	body := strings.TrimSpace(raw)
	if body == "" {
		return ""
	}
	if runes := []rune(body); len(runes) > max {
		body = strings.TrimSpace(string(runes[:max]))
	}
	return markupEscaper.Replace(body)
}

// sanitizeRoom normalizes a requested room name to lowercase
// [a-z0-9_-], truncated, falling back to the default room.
func sanitizeRoom(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
		if b.Len() >= maxRoomNameLen {
			break
		}
	}
	if b.Len() == 0 {
		return domain.DefaultRoom
	}
	return b.String()
}
