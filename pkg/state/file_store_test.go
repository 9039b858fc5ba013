package state_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-hotconfig/pkg/state"
)

func fixedClock() func() time.Time {
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, err := state.NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("expected missing file to report ok=false, got ok=%v err=%v", ok, err)
	}

	doc := state.Snapshot{
		"transcription": {"timeout_s": 30, "endpoint": "https://asr.local"},
		"ui":            {"theme": "dark"},
	}
	saved, err := store.Save(ctx, doc)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, meta, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(doc, loaded); diff != "" {
		t.Fatalf("loaded document mismatch (-want +got):\n%s", diff)
	}
	if meta.Checksum != saved.Checksum {
		t.Fatalf("checksum mismatch: saved %s loaded %s", saved.Checksum, meta.Checksum)
	}
}

func TestFileStoreCrashBeforeRenameKeepsOldContent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	original := []byte("transcription:\n  timeout_s: 30\n")
	if err := os.WriteFile(path, original, 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store, err := state.NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	crash := errors.New("power loss")
	restore := state.SetRenameForTests(func(string, string) error { return crash })
	defer restore()

	_, err = store.Save(ctx, state.Snapshot{"transcription": {"timeout_s": 60}})
	if !errors.Is(err, crash) {
		t.Fatalf("expected crash error, got %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(original) {
		t.Fatalf("file changed after failed rename:\n%s", got)
	}
	entries, _ := os.ReadDir(dir)
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestFileStoreLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ui: [unterminated\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store, err := state.NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, _, ok, err := store.Load(context.Background()); err == nil || !ok {
		t.Fatalf("expected parse error with ok=true, got ok=%v err=%v", ok, err)
	}
}

func TestFileStoreBackupsOrderedAndUnique(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, err := state.NewFileStore(path, state.WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	var ids []string
	for i := 1; i <= 3; i++ {
		backup, err := store.CreateBackup(ctx, state.Snapshot{"transcription": {"timeout_s": i * 10}})
		if err != nil {
			t.Fatalf("backup %d: %v", i, err)
		}
		ids = append(ids, backup.ID)
	}
	if !(ids[0] < ids[1] && ids[1] < ids[2]) {
		t.Fatalf("expected strictly increasing ids, got %v", ids)
	}

	list, err := store.ListBackups(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[2].ID != ids[2] {
		t.Fatalf("unexpected backup list: %+v", list)
	}

	latest, backup, err := store.LoadBackup(ctx, state.LatestBackup)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if backup.ID != ids[2] || latest["transcription"]["timeout_s"] != 30 {
		t.Fatalf("unexpected latest backup %s: %v", backup.ID, latest)
	}

	first, _, err := store.LoadBackup(ctx, ids[0])
	if err != nil {
		t.Fatalf("load first: %v", err)
	}
	if first["transcription"]["timeout_s"] != 10 {
		t.Fatalf("unexpected first backup: %v", first)
	}
}

func TestFileStoreBackupNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := state.NewFileStore(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, _, err = store.LoadBackup(ctx, state.LatestBackup)
	if !errors.Is(err, state.ErrBackupNotFound) || !errors.Is(err, state.ErrNoBackups) {
		t.Fatalf("expected not found/no backups, got %v", err)
	}
	_, _, err = store.LoadBackup(ctx, "20200101T000000.000000000Z")
	if !errors.Is(err, state.ErrBackupNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
	_, _, err = store.LoadBackup(ctx, "../../etc/passwd")
	if !errors.Is(err, state.ErrBackupNotFound) {
		t.Fatalf("expected not found for malformed id, got %v", err)
	}
}

func TestFileStorePruneKeepsNewest(t *testing.T) {
	ctx := context.Background()
	store, err := state.NewFileStore(filepath.Join(t.TempDir(), "config.yaml"), state.WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	var newest string
	for i := 0; i < 4; i++ {
		backup, err := store.CreateBackup(ctx, state.Snapshot{"ui": {"n": i}})
		if err != nil {
			t.Fatalf("backup: %v", err)
		}
		newest = backup.ID
	}

	removed, err := store.PruneBackups(ctx, 1)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	list, _ := store.ListBackups(ctx)
	if len(list) != 1 || list[0].ID != newest {
		t.Fatalf("expected newest backup kept, got %+v", list)
	}
}

func TestFileStoreTOMLFormat(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.toml")
	store, err := state.NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Save(ctx, state.Snapshot{"performance": {"workers": 4}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "[performance]") {
		t.Fatalf("expected toml table, got:\n%s", raw)
	}
	if _, err := store.CreateBackup(ctx, state.Snapshot{}); err != nil {
		t.Fatalf("backup: %v", err)
	}
	list, _ := store.ListBackups(ctx)
	if len(list) != 1 || filepath.Ext(list[0].Path) != ".toml" {
		t.Fatalf("expected toml backup, got %+v", list)
	}
}

func TestFileStoreSaveStopsWaitingForLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, err := state.NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	other := flock.New(path + ".lock")
	if locked, err := other.TryLock(); err != nil || !locked {
		t.Fatalf("hold lock: %v", err)
	}
	defer func() { _ = other.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = store.Save(ctx, state.Snapshot{"transcription": {"timeout_s": 60}})
	if !errors.Is(err, state.ErrLocked) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ErrLocked after deadline, got %v", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected nothing written, stat: %v", statErr)
	}

	if err := other.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := store.Save(context.Background(), state.Snapshot{"transcription": {"timeout_s": 60}}); err != nil {
		t.Fatalf("save after unlock: %v", err)
	}
}
