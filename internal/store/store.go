// Package store persists the project documents and the change history in
// SQLite.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Document keys.
const (
	KeyProjectManifest = "projectManifest"
	KeyTemporaryState  = "temporaryState"
)

// Document is one JSON record stored under a key.
type Document struct {
	Key       string          `json:"key"`
	Body      json.RawMessage `json:"body"`
	Revision  int64           `json:"revision"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// HistoryEntry is one row of the change history table.
type HistoryEntry struct {
	Sequence  int64           `json:"sequence"`
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Component string          `json:"component"`
	Action    string          `json:"action"`
	Title     string          `json:"title"`
	Details   json.RawMessage `json:"details,omitempty"`
	SessionID string          `json:"sessionId"`
}

// Stats summarizes the database.
type Stats struct {
	Documents        int64      `json:"documents"`
	HistoryEntries   int64      `json:"historyEntries"`
	LatestSequence   int64      `json:"latestSequence"`
	LastCompactionAt *time.Time `json:"lastCompactionAt,omitempty"`
	LastBackupAt     *time.Time `json:"lastBackupAt,omitempty"`
}

// Store defines the persistence contract used by the manifest, the
// temporary state and the background workers.
type Store interface {
	GetDocument(ctx context.Context, key string) (*Document, error)
	PutDocument(ctx context.Context, key string, body []byte) (int64, error)
	DeleteDocument(ctx context.Context, key string) error

	AppendHistory(ctx context.Context, entry *HistoryEntry) (int64, error)
	AppendHistoryBatch(ctx context.Context, entries []HistoryEntry) (int64, error)
	GetHistoryAfter(ctx context.Context, afterSeq int64, limit int) ([]HistoryEntry, error)
	RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
	GetLatestSequence(ctx context.Context) (int64, error)
	TrimHistory(ctx context.Context, keep int) (int64, error)

	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
	GetStats(ctx context.Context) (*Stats, error)
	Snapshot(ctx context.Context, path string) error
	Close() error
}
