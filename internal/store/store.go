// Package store provides persistence for the code-usage ledger.
package store

import (
	"context"
)

// Ledger records which display names have verified with which codes and
// serves the admin snapshot. Chat messages are deliberately never
// persisted; only code usage survives a restart.
type Ledger interface {
	// RecordUsage records that username verified with code. Recording
	// the same pair again is a no-op.
	RecordUsage(ctx context.Context, code, username string) error

	// Snapshot returns every tracked code with the names that used it.
	Snapshot(ctx context.Context) (map[string][]string, error)

	// CodeCount returns the number of distinct tracked codes.
	CodeCount(ctx context.Context) (int, error)

	// Ping verifies connectivity to the backing database.
	Ping(ctx context.Context) error

	// Close closes the backing database.
	Close() error
}
