// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ledger records request-cycle metadata in a local SQLite database.
//
// The ledger is append-only and content-free: it keeps which operation ran,
// on which model, how it settled and how long it took, but never the prompt,
// the response or attachment bytes.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Status values for a settled cycle.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrClosed is returned when the ledger has been closed.
var ErrClosed = errors.New("ledger is closed")

// =============================================================================
// ENTRY
// =============================================================================

// Entry is the metadata of one settled request cycle.
type Entry struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	MessageID      string        `json:"message_id"`
	Mode           string        `json:"mode"`
	Operation      string        `json:"operation"`
	Model          string        `json:"model"`
	Provider       string        `json:"provider"`
	Status         string        `json:"status"`
	Error          string        `json:"error,omitempty"`
	Granted        bool          `json:"granted"`
	Retried        bool          `json:"retried"`
	Chunks         int           `json:"chunks"`
	Attachments    int           `json:"attachments"`
	Sources        int           `json:"sources"`
	MediaURI       string        `json:"media_uri,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// Stats summarizes the ledger.
type Stats struct {
	Total     int     `json:"total"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Retried   int     `json:"retried"`
	AvgMillis float64 `json:"avg_millis"`
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is a SQLite-backed cycle log.
type Ledger struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// DefaultPath returns ~/.prism/ledger.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".prism", "ledger.db")
	}
	return filepath.Join(home, ".prism", "ledger.db")
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Ledger, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Ledger{db: db, path: path}, nil
}

// Path returns the database location.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Record appends one entry.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return ErrClosed
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO cycles (id, conversation_id, message_id, mode, operation, model, provider,
			status, error, granted, retried, chunks, attachments, sources, media_uri,
			started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ConversationID, e.MessageID, e.Mode, e.Operation, e.Model, e.Provider,
		e.Status, e.Error, boolInt(e.Granted), boolInt(e.Retried), e.Chunks, e.Attachments,
		e.Sources, e.MediaURI, e.StartedAt.UnixMilli(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, conversation_id, message_id, mode, operation, model, provider,
			status, error, granted, retried, chunks, attachments, sources, media_uri,
			started_at, duration_ms
		FROM cycles
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var granted, retried int
		var started, duration int64
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.MessageID, &e.Mode, &e.Operation,
			&e.Model, &e.Provider, &e.Status, &e.Error, &granted, &retried, &e.Chunks,
			&e.Attachments, &e.Sources, &e.MediaURI, &started, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		e.Granted = granted != 0
		e.Retried = retried != 0
		e.StartedAt = time.UnixMilli(started)
		e.Duration = time.Duration(duration) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counts over the whole ledger.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return Stats{}, ErrClosed
	}

	var s Stats
	var avg sql.NullFloat64
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(retried), 0),
			AVG(duration_ms)
		FROM cycles`, StatusSuccess, StatusError).Scan(&s.Total, &s.Succeeded, &s.Failed, &s.Retried, &avg)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute ledger stats: %w", err)
	}
	s.AvgMillis = avg.Float64
	return s, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
