package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// newTestStore creates a fresh SQLiteStore with in-memory database for testing.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_NewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "traderack.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestRunMigrations_FreshDatabase(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	applied, err := RunMigrations(context.Background(), db)
	if err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	if len(applied) != 1 || applied[0] != 1 {
		t.Errorf("applied = %v, want [1]", applied)
	}
	for _, q := range []string{
		`SELECT key, body, revision, created_at, updated_at FROM documents LIMIT 0`,
		`SELECT sequence, id, timestamp, component, action, title, details, session_id FROM change_history LIMIT 0`,
		`SELECT key, value FROM store_meta LIMIT 0`,
	} {
		if _, err := db.Exec(q); err != nil {
			t.Errorf("schema check %q: %v", q, err)
		}
	}

	// Running again is a no-op.
	applied, err = RunMigrations(context.Background(), db)
	if err != nil {
		t.Fatalf("second migration should be idempotent, got error: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("second run applied %v", applied)
	}
}

func TestDocument_PutGetRevision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rev, err := s.PutDocument(ctx, KeyProjectManifest, []byte(`{"version":"1.0"}`))
	if err != nil {
		t.Fatal(err)
	}
	if rev != 1 {
		t.Errorf("first revision = %d, want 1", rev)
	}
	rev, err = s.PutDocument(ctx, KeyProjectManifest, []byte(`{"version":"1.1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if rev != 2 {
		t.Errorf("second revision = %d, want 2", rev)
	}

	doc, err := s.GetDocument(ctx, KeyProjectManifest)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	if err := json.Unmarshal(doc.Body, &body); err != nil {
		t.Fatal(err)
	}
	if body["version"] != "1.1" || doc.Revision != 2 {
		t.Errorf("doc = %+v", doc)
	}
	if time.Since(doc.UpdatedAt) > time.Minute {
		t.Errorf("updated_at = %v", doc.UpdatedAt)
	}
}

func TestDocument_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get missing: %v", err)
	}
	if err := s.DeleteDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete missing: %v", err)
	}
	if _, err := s.PutDocument(ctx, " ", []byte(`{}`)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("blank key: %v", err)
	}
	if _, err := s.PutDocument(ctx, "k", []byte(`{not json`)); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("bad body: %v", err)
	}

	if _, err := s.PutDocument(ctx, KeyTemporaryState, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDocument(ctx, KeyTemporaryState); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetDocument(ctx, KeyTemporaryState); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
}

func TestMeta_DefaultsAndSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.GetMeta(ctx, "schema_version")
	if err != nil || v != "1" {
		t.Errorf("schema_version = %q, %v", v, err)
	}
	if _, err := s.GetMeta(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing meta: %v", err)
	}
	if err := s.SetMeta(ctx, MetaLastBackupAt, "2026-01-02T03:04:05Z"); err != nil {
		t.Fatal(err)
	}
	st, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.LastBackupAt == nil || st.LastBackupAt.Year() != 2026 {
		t.Errorf("last backup = %v", st.LastBackupAt)
	}
	if st.LastCompactionAt != nil {
		t.Errorf("last compaction = %v, want nil", st.LastCompactionAt)
	}
}

func TestSnapshot_WritesCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.PutDocument(ctx, KeyProjectManifest, []byte(`{"projectId":"p1"}`)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "snap", "copy.db")
	if err := s.Snapshot(ctx, path); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := s.Snapshot(ctx, path); !errors.Is(err, ErrSnapshotPath) {
		t.Errorf("second snapshot: %v", err)
	}

	copyStore, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer copyStore.Close()
	doc, err := copyStore.GetDocument(ctx, KeyProjectManifest)
	if err != nil {
		t.Fatal(err)
	}
	if string(doc.Body) != `{"projectId":"p1"}` {
		t.Errorf("body = %s", doc.Body)
	}
}
