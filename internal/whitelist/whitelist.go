// Package whitelist provides the file-backed authorization code set
// consulted during admission control.
package whitelist

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CodeLength is the required length of a whitelist entry.
const CodeLength = 9

const templateContent = "# One 9-character code per line; text after '#' is ignored\n" +
	"# Example: A3K9X7M2B # for Player1\n"

// Store is an in-memory code set loaded from a text file. Lines are
// stripped of '#' comments, trimmed, and uppercased; only entries of
// exactly CodeLength characters are kept. Reload swaps the set
// atomically under the store's own lock.
type Store struct {
	mu    sync.RWMutex
	path  string
	codes map[string]struct{}
}

// New creates a store bound to the given file path. Call Load before
// serving lookups.
func New(path string) *Store {
	return &Store{path: path, codes: make(map[string]struct{})}
}

// Load reads the whitelist file, creating a commented template when the
// file does not exist yet.
func (s *Store) Load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		slog.Warn("Whitelist file not found, creating template", "path", s.path)
		if writeErr := s.writeTemplate(); writeErr != nil {
			return writeErr
		}
		s.swap(make(map[string]struct{}))
		return nil
	}
	if err != nil {
		return fmt.Errorf("open whitelist: %w", err)
	}
	defer f.Close()

	codes := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		code := strings.ToUpper(strings.TrimSpace(line))
		if len(code) == CodeLength {
			codes[code] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read whitelist: %w", err)
	}

	s.swap(codes)
	slog.Info("Whitelist loaded", "path", s.path, "codes", len(codes))
	return nil
}

// Reload re-reads the whitelist file. Exposed through the admin surface.
func (s *Store) Reload() error {
	return s.Load()
}

// Contains reports whether the code is whitelisted, case-insensitively.
func (s *Store) Contains(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// Size returns the number of loaded codes.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes)
}

func (s *Store) swap(codes map[string]struct{}) {
	s.mu.Lock()
	s.codes = codes
	s.mu.Unlock()
}

func (s *Store) writeTemplate() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create whitelist directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(templateContent), 0644); err != nil {
		return fmt.Errorf("write whitelist template: %w", err)
	}
	return nil
}
