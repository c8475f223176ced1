package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Display-name constraints applied at verification and rename time.
const (
	MinNameLen = 2
	MaxNameLen = 20
)

var (
	// ErrNameLength means the requested name is outside [2,20] characters.
	ErrNameLength = errors.New("display name must be 2-20 characters")
	// ErrNameCharset means the name contains characters outside [A-Za-z0-9_-].
	ErrNameCharset = errors.New("display name may only contain letters, digits, '_' and '-'")
	// ErrNameReserved means the name is on the reserved blacklist.
	ErrNameReserved = errors.New("display name is reserved")
)

var reservedNames = map[string]struct{}{
	"admin":     {},
	"system":    {},
	"mod":       {},
	"moderator": {},
	"server":    {},
}

func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-'
}

// ValidateDisplayName checks the requested name against the length,
// charset, and reserved-name rules. Violations are surfaced verbatim to
// the client; they carry no admission-control penalty.
func ValidateDisplayName(name string) error {
	if len(name) < MinNameLen || len(name) > MaxNameLen {
		return ErrNameLength
	}
	for _, r := range name {
		if !isNameRune(r) {
			return ErrNameCharset
		}
	}
	if _, reserved := reservedNames[strings.ToLower(name)]; reserved {
		return ErrNameReserved
	}
	return nil
}

// NameRegistry allocates globally unique display names. Uniqueness is
// case-insensitive: at most one live session holds any case-folded name.
type NameRegistry struct {
	mu     sync.Mutex
	byName map[string]string // folded name -> session id
	byID   map[string]string // session id -> allocated name
}

// NewNameRegistry creates an empty registry.
func NewNameRegistry() *NameRegistry {
	return &NameRegistry{
		byName: make(map[string]string),
		byID:   make(map[string]string),
	}
}

// Allocate reserves a unique display name for the session, starting from
// the requested base and appending #2, #3, ... until a free name is
// found. The returned name is unique at the moment of allocation.
func (r *NameRegistry) Allocate(id, requested string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocateLocked(id, requested)
}

// Rename releases the session's current name and allocates a new one for
// the requested base. Returns the allocated name.
func (r *NameRegistry) Rename(id, requested string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[id]; ok {
		delete(r.byName, strings.ToLower(old))
		delete(r.byID, id)
	}
	return r.allocateLocked(id, requested)
}

// Release frees the session's name. Safe to call more than once; only
// the first call reports the released name.
func (r *NameRegistry) Release(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.byID[id]
	if !ok {
		return "", false
	}
	delete(r.byName, strings.ToLower(name))
	delete(r.byID, id)
	return name, true
}

// Lookup returns the session id currently holding the name.
func (r *NameRegistry) Lookup(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[strings.ToLower(name)]
	return id, ok
}

func (r *NameRegistry) allocateLocked(id, requested string) string {
	base := sanitizeNameBase(requested)
	name := base
	for n := 2; ; n++ {
		if _, taken := r.byName[strings.ToLower(name)]; !taken {
			break
		}
		suffix := fmt.Sprintf("#%d", n)
		trimmed := base
		if len(trimmed)+len(suffix) > MaxNameLen {
			trimmed = trimmed[:MaxNameLen-len(suffix)]
		}
		name = trimmed + suffix
	}
	r.byName[strings.ToLower(name)] = id
	r.byID[id] = name
	return name
}

// sanitizeNameBase strips disallowed characters and truncates the
// request so suffixing can never produce an invalid name.
func sanitizeNameBase(requested string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(requested) {
		if isNameRune(r) {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if len(base) > MaxNameLen {
		base = base[:MaxNameLen]
	}
	if len(base) < MinNameLen {
		base = "guest"
	}
	return base
}
