package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed ledger at the given path.
func NewSQLite(dbPath string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency between the gate's async writes
	// and the admin snapshot reads.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	ledger := &SQLiteLedger{db: db}
	if err := ledger.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return ledger, nil
}

func (l *SQLiteLedger) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS code_usage (
		code TEXT NOT NULL,
		username TEXT NOT NULL,
		first_used_at INTEGER NOT NULL,
		PRIMARY KEY (code, username)
	);
	CREATE INDEX IF NOT EXISTS idx_code_usage_code ON code_usage(code);
	`
	if _, err := l.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// RecordUsage records the (code, username) pair, ignoring duplicates.
func (l *SQLiteLedger) RecordUsage(ctx context.Context, code, username string) error {
	query := `INSERT OR IGNORE INTO code_usage (code, username, first_used_at) VALUES (?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, query, code, username, time.Now().Unix()); err != nil {
		return fmt.Errorf("record code usage: %w", err)
	}
	return nil
}

// Snapshot returns every tracked code with its users, oldest first.
func (l *SQLiteLedger) Snapshot(ctx context.Context) (map[string][]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT code, username FROM code_usage ORDER BY code, first_used_at`)
	if err != nil {
		return nil, fmt.Errorf("query code usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string][]string)
	for rows.Next() {
		var code, username string
		if err := rows.Scan(&code, &username); err != nil {
			return nil, fmt.Errorf("scan code usage row: %w", err)
		}
		usage[code] = append(usage[code], username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate code usage rows: %w", err)
	}
	return usage, nil
}

// CodeCount returns the number of distinct tracked codes.
func (l *SQLiteLedger) CodeCount(ctx context.Context) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT code) FROM code_usage`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tracked codes: %w", err)
	}
	return count, nil
}

// Ping verifies database connectivity.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
