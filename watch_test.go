package hotconfig

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-hotconfig/pkg/activity"
	"github.com/goliatone/go-hotconfig/pkg/state"
)

func TestReloadAdoptsExternalEdit(t *testing.T) {
	capture := &activity.CaptureHook{}
	store, path := openStore(t, "transcription:\n  timeout_s: 30\n", WithActivityHooks(capture))

	var seen atomic.Int64
	store.RegisterReloadHandler("observer", func(_ context.Context, doc Document) error {
		seen.Store(int64(doc["transcription"]["timeout_s"].(int)))
		return nil
	})

	if err := os.WriteFile(path, []byte("transcription:\n  timeout_s: 120\n"), 0o600); err != nil {
		t.Fatalf("external write: %v", err)
	}
	change, err := store.Reload(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if change.Noop || change.Source != SourceExternal {
		t.Fatalf("unexpected change: %+v", change)
	}
	if got := store.Int("transcription", "timeout_s"); got != 120 {
		t.Fatalf("expected 120 after reload, got %d", got)
	}
	if seen.Load() != 120 {
		t.Fatalf("handler not notified, saw %d", seen.Load())
	}
	if n := len(backups(t, store)); n != 1 {
		t.Fatalf("expected the replaced document backed up, got %d backups", n)
	}
	if verbs := capture.Verbs(); len(verbs) != 1 || verbs[0] != activity.VerbReloaded {
		t.Fatalf("expected reloaded event, got %v", verbs)
	}

	// the edit can be undone
	if _, err := store.Rollback(context.Background(), state.LatestBackup); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got := store.Int("transcription", "timeout_s"); got != 30 {
		t.Fatalf("expected 30 after rollback, got %d", got)
	}
}

func TestReloadIgnoresInvalidExternalEdit(t *testing.T) {
	capture := &activity.CaptureHook{}
	store, path := openStore(t, "transcription:\n  timeout_s: 30\n", WithActivityHooks(capture))

	for _, content := range []string{
		"transcription:\n  timeout_s: 9000\n",
		"transcription: [broken\n",
	} {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("external write: %v", err)
		}
		if _, err := store.Reload(context.Background()); err == nil {
			t.Fatalf("expected reload of %q to fail", content)
		}
		if got := store.Int("transcription", "timeout_s"); got != 30 {
			t.Fatalf("active document changed by invalid edit: %d", got)
		}
	}
	for _, verb := range capture.Verbs() {
		if verb != activity.VerbReloadFailed {
			t.Fatalf("expected only reload_failed events, got %v", capture.Verbs())
		}
	}
	if n := len(backups(t, store)); n != 0 {
		t.Fatalf("expected no backups, got %d", n)
	}
}

func TestReloadSkipsOwnWrites(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\n")
	calls := 0
	store.RegisterReloadHandler("count", func(context.Context, Document) error {
		calls++
		return nil
	})
	if _, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 60}); err != nil {
		t.Fatalf("update: %v", err)
	}
	change, err := store.Reload(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !change.Noop {
		t.Fatalf("expected own write to be skipped, got %+v", change)
	}
	if calls != 1 {
		t.Fatalf("expected handler called once for the update only, got %d", calls)
	}
}

func TestReloadFormattingOnlyEditIsNoop(t *testing.T) {
	store, path := openStore(t, "transcription:\n  timeout_s: 30\n")
	if err := os.WriteFile(path, []byte("# tuned for the night shift\ntranscription:\n    timeout_s: 30\n"), 0o600); err != nil {
		t.Fatalf("external write: %v", err)
	}
	change, err := store.Reload(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !change.Noop {
		t.Fatalf("expected noop for formatting-only edit, got %+v", change)
	}
	if n := len(backups(t, store)); n != 0 {
		t.Fatalf("expected no backups, got %d", n)
	}
}

func TestWatchRequiresFileStore(t *testing.T) {
	store, err := Open(context.Background(), "memory", testSchema(),
		WithStateStore(state.NewMemoryStore(state.Snapshot{})))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Watch(context.Background()); !errors.Is(err, ErrWatchUnsupported) {
		t.Fatalf("expected ErrWatchUnsupported, got %v", err)
	}
}

func TestWatchPicksUpExternalEdits(t *testing.T) {
	if testing.Short() {
		t.Skip("polls the filesystem")
	}
	store, path := openStore(t, "transcription:\n  timeout_s: 30\n", WithPollInterval(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan int, 4)
	store.RegisterReloadHandler("watch", func(_ context.Context, doc Document) error {
		reloaded <- doc["transcription"]["timeout_s"].(int)
		return nil
	})
	if err := store.Watch(ctx); err != nil {
		t.Fatalf("watch: %v", err)
	}
	// let the watcher take its baseline stat before editing
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(path, []byte("transcription:\n  timeout_s: 245\n  model: large\n"), 0o600); err != nil {
		t.Fatalf("external write: %v", err)
	}
	select {
	case got := <-reloaded:
		if got != 245 {
			t.Fatalf("expected 245 from external edit, got %d", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not pick up the edit")
	}
	if got := store.String("transcription", "model"); got != "large" {
		t.Fatalf("expected model large, got %q", got)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestReloadReusesBackupTakenByOtherWriter(t *testing.T) {
	daemon, path := openStore(t, "transcription:\n  timeout_s: 30\n")
	cli, err := Open(context.Background(), path, testSchema())
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	defer cli.Close()

	change, err := cli.Update(context.Background(), "transcription", map[string]any{"timeout_s": 60})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	reloaded, err := daemon.Reload(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Noop || daemon.Int("transcription", "timeout_s") != 60 {
		t.Fatalf("expected edit adopted, got %+v", reloaded)
	}
	list := backups(t, daemon)
	if len(list) != 1 {
		t.Fatalf("expected one backup for one update, got %d", len(list))
	}
	if reloaded.BackupID != change.BackupID {
		t.Fatalf("expected reload to point at backup %s, got %s", change.BackupID, reloaded.BackupID)
	}

	// a hand edit after that still gets its own backup
	if err := os.WriteFile(path, []byte("transcription:\n  timeout_s: 90\n"), 0o600); err != nil {
		t.Fatalf("external write: %v", err)
	}
	if _, err := daemon.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n := len(backups(t, daemon)); n != 2 {
		t.Fatalf("expected a new backup for the hand edit, got %d", n)
	}
}
