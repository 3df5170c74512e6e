// Package eventlog provides the durable event archive.
//
// The in-memory event log inside a thing is unbounded but lost on restart.
// This package persists every emitted event to SQLite so the history
// survives restarts and can be queried independently of the live process.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openwot/webthing-core/internal/thing"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Entry is one archived event row.
type Entry struct {
	ID          int64
	ThingID     string
	Name        string
	Description map[string]any
	CreatedAt   time.Time
}

// Repository stores and queries archived events.
//
// RecordEvent satisfies thing.EventRecorder, so a Repository can be hooked
// straight into a Thing.
type Repository interface {
	RecordEvent(ctx context.Context, thingID string, ev thing.Event) error
	History(ctx context.Context, thingID, name string, limit int) ([]Entry, error)
}

// SQLiteRepository implements Repository on top of the event_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository using the given open connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordEvent inserts one archived event row. The stored description is the
// same JSON fragment delivered to subscribers, keyed by event name.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, thingID string, ev thing.Event) error {
	if thingID == "" {
		return fmt.Errorf("thing id is required")
	}

	descJSON, err := json.Marshal(ev.Description())
	if err != nil {
		return fmt.Errorf("marshalling event description: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO event_log (thing_id, name, description) VALUES (?, ?, ?)",
		thingID,
		ev.Name(),
		string(descJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// History returns archived events for a thing, ordered newest first.
// An empty name matches every event type. The limit defaults to 50 and is
// clamped to 200.
func (r *SQLiteRepository) History(ctx context.Context, thingID, name string, limit int) ([]Entry, error) {
	if thingID == "" {
		return nil, fmt.Errorf("thing id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `SELECT id, thing_id, name, description, created_at
		 FROM event_log
		 WHERE thing_id = ?`
	args := []any{thingID}
	if name != "" {
		query += " AND name = ?"
		args = append(args, name)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying event log: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var descJSON string
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.ThingID, &entry.Name, &descJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}

		if err := json.Unmarshal([]byte(descJSON), &entry.Description); err != nil {
			return nil, fmt.Errorf("unmarshalling event description: %w", err)
		}

		timestamp, err := parseCreatedAt(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event log: %w", err)
	}

	return entries, nil
}

// Prune deletes archived events older than the given duration.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02 15:04:05")
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM event_log WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseCreatedAt parses a timestamp stored by SQLite's datetime('now').
func parseCreatedAt(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse("2006-01-02 15:04:05", value)
	if err == nil {
		return timestamp.UTC(), nil
	}

	fallback, fallbackErr := time.Parse(time.RFC3339, value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
