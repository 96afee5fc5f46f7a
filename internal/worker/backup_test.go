package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/store"
)

type stubManifest struct {
	body []byte
	err  error
}

func (s stubManifest) Export() ([]byte, error) { return s.body, s.err }

type stubSnapshots struct {
	mu    sync.Mutex
	paths []string
	meta  map[string]string
	err   error
}

func (s *stubSnapshots) Snapshot(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.paths = append(s.paths, path)
	return os.WriteFile(path, []byte("sqlite"), 0o644)
}

func (s *stubSnapshots) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		s.meta = map[string]string{}
	}
	s.meta[key] = value
	return nil
}

func (s *stubSnapshots) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

type recordingUploader struct {
	mu    sync.Mutex
	files []string
	err   error
}

func (u *recordingUploader) Upload(ctx context.Context, filePath string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.files = append(u.files, filePath)
	return "traderack/backups/" + filepath.Base(filePath), nil
}

func (u *recordingUploader) PresignedURL(ctx context.Context, key string) (string, time.Time, error) {
	return "https://example.com/" + key, time.Now(), nil
}

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return t
	}
}

func TestBackupCoordinator_RunOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	snaps := &stubSnapshots{}
	up := &recordingUploader{}
	c := NewBackupCoordinator(stubManifest{body: []byte(`{"version":"1.0"}`)}, snaps, up, dir, time.Hour)
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	c.now = fixedClock(at)

	res, err := c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	wantManifest := filepath.Join(dir, "manifest-20260304T050607Z.json")
	wantDB := filepath.Join(dir, "traderack-20260304T050607Z.db")
	if len(res.Files) != 2 || res.Files[0] != wantManifest || res.Files[1] != wantDB {
		t.Fatalf("Files = %v", res.Files)
	}
	body, err := os.ReadFile(wantManifest)
	if err != nil || string(body) != `{"version":"1.0"}` {
		t.Errorf("manifest backup = %q, %v", body, err)
	}
	if len(res.Keys) != 2 || res.Keys[0] != "traderack/backups/manifest-20260304T050607Z.json" {
		t.Errorf("Keys = %v", res.Keys)
	}
	if got := snaps.meta[store.MetaLastBackupAt]; !strings.HasPrefix(got, "2026-03-04T05:06:07") {
		t.Errorf("last backup meta = %q", got)
	}
}

func TestBackupCoordinator_UploadFailureIsNotFatal(t *testing.T) {
	snaps := &stubSnapshots{}
	up := &recordingUploader{err: errors.New("bucket gone")}
	c := NewBackupCoordinator(stubManifest{body: []byte(`{}`)}, snaps, up, t.TempDir(), time.Hour)

	res, err := c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(res.Keys) != 0 {
		t.Errorf("Keys = %v, want none", res.Keys)
	}
	for _, f := range res.Files {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("local backup %s missing: %v", f, err)
		}
	}
}

func TestBackupCoordinator_Errors(t *testing.T) {
	t.Run("export", func(t *testing.T) {
		c := NewBackupCoordinator(stubManifest{err: errors.New("boom")}, &stubSnapshots{}, nil, t.TempDir(), time.Hour)
		if _, err := c.RunOnce(context.Background()); err == nil {
			t.Fatal("RunOnce() expected export error")
		}
	})
	t.Run("snapshot", func(t *testing.T) {
		c := NewBackupCoordinator(stubManifest{body: []byte(`{}`)}, &stubSnapshots{err: errors.New("locked")}, nil, t.TempDir(), time.Hour)
		if _, err := c.RunOnce(context.Background()); err == nil {
			t.Fatal("RunOnce() expected snapshot error")
		}
	})
	t.Run("existing snapshot", func(t *testing.T) {
		snaps := &stubSnapshots{err: fmt.Errorf("snapshot x: %w", store.ErrSnapshotPath)}
		c := NewBackupCoordinator(stubManifest{body: []byte(`{}`)}, snaps, nil, t.TempDir(), time.Hour)
		if _, err := c.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce() error = %v, want nil for an existing snapshot", err)
		}
	})
}

func TestBackupCoordinator_PrunesOldBackups(t *testing.T) {
	dir := t.TempDir()
	var clock []time.Time
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		clock = append(clock, base.Add(time.Duration(i)*time.Hour))
	}
	c := NewBackupCoordinator(stubManifest{body: []byte(`{}`)}, &stubSnapshots{}, nil, dir, time.Hour)
	c.keep = 2
	c.now = fixedClock(clock...)

	for range clock {
		if _, err := c.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 4 {
		t.Fatalf("files = %v, want 2 manifests and 2 snapshots", names)
	}
	for _, n := range names {
		if !strings.Contains(n, "T030000Z") && !strings.Contains(n, "T040000Z") {
			t.Errorf("unexpected survivor %s", n)
		}
	}
}

func TestBackupCoordinator_RunsImmediatelyAndStops(t *testing.T) {
	snaps := &stubSnapshots{}
	c := NewBackupCoordinator(stubManifest{body: []byte(`{}`)}, snaps, nil, t.TempDir(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	if !waitFor(func() bool { return snaps.count() >= 1 }, 2*time.Second) {
		t.Fatal("timed out waiting for the initial backup")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop on cancel")
	}
}

func TestBackup_EndToEnd(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "traderack.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	m := manifest.Open(ctx, s)

	dir := filepath.Join(t.TempDir(), "backups")
	c := NewBackupCoordinator(m, s, nil, dir, time.Hour)
	res, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	body, err := os.ReadFile(res.Files[0])
	if err != nil {
		t.Fatalf("read manifest backup: %v", err)
	}
	if _, _, err := manifest.Decode(body, time.Now()); err != nil {
		t.Errorf("manifest backup does not decode: %v", err)
	}

	copyStore, err := store.NewSQLiteStore(res.Files[1])
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer copyStore.Close()
	if _, err := copyStore.GetDocument(ctx, store.KeyProjectManifest); err != nil {
		t.Errorf("snapshot lacks the manifest document: %v", err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.LastBackupAt == nil {
		t.Error("LastBackupAt not recorded")
	}
}
