package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

const insertHistorySQL = `
	INSERT INTO change_history (id, timestamp, component, action, title, details, session_id)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

const selectHistoryColumns = `sequence, id, timestamp, component, action, title, details, session_id`

// historyArgs returns the SQL arguments for inserting a HistoryEntry,
// filling a missing id and timestamp.
func historyArgs(e *HistoryEntry) []any {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return []any{
		e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Component, e.Action, e.Title,
		nullableDetails(e.Details), e.SessionID,
	}
}

// AppendHistory appends a single entry to the change history.
// Returns the assigned sequence number.
func (s *SQLiteStore) AppendHistory(ctx context.Context, entry *HistoryEntry) (int64, error) {
	result, err := s.db.ExecContext(ctx, insertHistorySQL, historyArgs(entry)...)
	if err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	entry.Sequence = seq
	return seq, nil
}

// AppendHistoryBatch appends multiple entries atomically.
// Returns the highest assigned sequence number.
func (s *SQLiteStore) AppendHistoryBatch(ctx context.Context, entries []HistoryEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var highestSeq int64
	for i := range entries {
		result, err := tx.ExecContext(ctx, insertHistorySQL, historyArgs(&entries[i])...)
		if err != nil {
			return 0, fmt.Errorf("append history entry %d: %w", i, err)
		}
		highestSeq, err = result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("get last insert id: %w", err)
		}
		entries[i].Sequence = highestSeq
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return highestSeq, nil
}

// GetHistoryAfter returns entries with sequence > afterSeq, oldest first, up
// to limit.
func (s *SQLiteStore) GetHistoryAfter(ctx context.Context, afterSeq int64, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectHistoryColumns+`
		FROM change_history
		WHERE sequence > ?
		ORDER BY sequence ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return scanHistory(rows)
}

// RecentHistory returns the newest limit entries, newest first.
func (s *SQLiteStore) RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectHistoryColumns+`
		FROM change_history
		ORDER BY sequence DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent history: %w", err)
	}
	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]HistoryEntry, error) {
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		var details sql.NullString
		var ts string

		if err := rows.Scan(&e.Sequence, &e.ID, &ts, &e.Component, &e.Action,
			&e.Title, &details, &e.SessionID); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if details.Valid {
			e.Details = json.RawMessage(details.String)
		}
		var parseErr error
		if e.Timestamp, parseErr = time.Parse(time.RFC3339Nano, ts); parseErr != nil {
			slog.Warn("change_history: failed to parse timestamp", "value", ts, "error", parseErr)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLatestSequence returns the highest sequence number in the history.
// Returns 0 if the history is empty.
func (s *SQLiteStore) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM change_history`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get latest sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// TrimHistory deletes all but the newest keep entries and records the
// compaction time. Returns the number of entries removed.
func (s *SQLiteStore) TrimHistory(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM change_history
		WHERE sequence NOT IN (
			SELECT sequence FROM change_history ORDER BY sequence DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("trim history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	if err := s.SetMeta(ctx, MetaLastCompactionAt, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return n, err
	}
	return n, nil
}

// nullableDetails converts a json.RawMessage to a sql-friendly value.
// Returns nil for empty/null details, string otherwise.
func nullableDetails(p json.RawMessage) any {
	if len(p) == 0 || string(p) == "null" {
		return nil
	}
	return string(p)
}
