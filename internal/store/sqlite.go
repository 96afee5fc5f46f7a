package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Meta keys kept in store_meta.
const (
	MetaLastCompactionAt = "last_compaction_at"
	MetaLastBackupAt     = "last_backup_at"
)

// SQLiteStore represents the SQLite-backed project database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	memory := dbPath == ":memory:"
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every pooled connection to :memory: would open its own empty database.
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	applied, err := RunMigrations(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) > 0 {
		slog.Info("schema migrated", "component", "store", "action", "migrate", "path", dbPath, "versions", applied)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetDocument retrieves the document stored under key.
func (s *SQLiteStore) GetDocument(ctx context.Context, key string) (*Document, error) {
	var doc Document
	var body, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT key, body, revision, updated_at FROM documents WHERE key = ?
	`, key).Scan(&doc.Key, &body, &doc.Revision, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	doc.Body = json.RawMessage(body)
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		slog.Warn("documents: failed to parse updated_at", "value", updatedAt, "error", err)
	}
	return &doc, nil
}

// PutDocument writes body under key, replacing any previous body, and
// returns the new revision. body must be valid JSON.
func (s *SQLiteStore) PutDocument(ctx context.Context, key string, body []byte) (int64, error) {
	if strings.TrimSpace(key) == "" {
		return 0, ErrInvalidKey
	}
	if !json.Valid(body) {
		return 0, fmt.Errorf("put document %q: %w", key, ErrInvalidBody)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var rev int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (key, body, revision, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			revision = documents.revision + 1,
			updated_at = excluded.updated_at
		RETURNING revision
	`, key, string(body), now, now).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("put document: %w", err)
	}
	return rev, nil
}

// DeleteDocument removes the document stored under key.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %q: %w", key, ErrNotFound)
	}
	return nil
}

// GetMeta retrieves a metadata value by key.
func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM store_meta WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get meta: %w", err)
	}
	return value, nil
}

// SetMeta sets a metadata value.
func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta: %w", err)
	}
	return nil
}

// GetStats returns aggregate database statistics.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&st.Documents); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_history`).Scan(&st.HistoryEntries); err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}
	seq, err := s.GetLatestSequence(ctx)
	if err != nil {
		return nil, err
	}
	st.LatestSequence = seq
	st.LastCompactionAt = s.metaTime(ctx, MetaLastCompactionAt)
	st.LastBackupAt = s.metaTime(ctx, MetaLastBackupAt)
	return &st, nil
}

func (s *SQLiteStore) metaTime(ctx context.Context, key string) *time.Time {
	v, err := s.GetMeta(ctx, key)
	if err != nil || v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		slog.Warn("store_meta: failed to parse time", "key", key, "value", v, "error", err)
		return nil
	}
	return &t
}

// Snapshot writes a consistent copy of the database to path with
// VACUUM INTO. path must not exist.
func (s *SQLiteStore) Snapshot(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("snapshot %s: %w", path, ErrSnapshotPath)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}
	return nil
}
