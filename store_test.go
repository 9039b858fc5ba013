package hotconfig

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-hotconfig/pkg/activity"
	"github.com/goliatone/go-hotconfig/pkg/state"
)

func testSchema() Schema {
	return Schema{Fields: []Field{
		{Section: "transcription", Key: "timeout_s", Type: TypeInt, Min: Bound(1), Max: Bound(300), Default: 30, Description: "Transcription request timeout in seconds"},
		{Section: "transcription", Key: "model", Type: TypeString, Enum: []any{"small", "large"}, Default: "small"},
		{Section: "transcription", Key: "endpoint", Type: TypeURL},
		{Section: "ui", Key: "theme", Type: TypeString, Pattern: "^(light|dark)$", Default: "light"},
		{Section: "ui", Key: "scale", Type: TypeFloat, Min: Bound(0.5), Max: Bound(3)},
		{Section: "performance", Key: "poll", Type: TypeDuration, Default: "5s", Max: Bound(60)},
		{Section: "features", Key: "beta", Type: TypeBool},
		{Section: "compliance", Key: "api_key", Type: TypeString, Secret: true},
	}}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func openStore(t *testing.T, content string, opts ...Option) (*Store, string) {
	t.Helper()
	path := writeConfig(t, content)
	store, err := Open(context.Background(), path, testSchema(), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return raw
}

func backups(t *testing.T, store *Store) []state.Backup {
	t.Helper()
	list, err := store.Backups(context.Background())
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	return list
}

func TestUpdateRejectsOutOfRangeTimeout(t *testing.T) {
	store, path := openStore(t, "transcription:\n  timeout_s: 30\n")
	before := readFile(t, path)

	change, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 600})
	if change != nil {
		t.Fatalf("expected no change, got %+v", change)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || !verr.Has("timeout_s") {
		t.Fatalf("expected field timeout_s named, got %v", err)
	}
	if got := store.Get("transcription", "timeout_s"); got != 30 {
		t.Fatalf("expected timeout_s to stay 30, got %v", got)
	}
	if after := readFile(t, path); !bytes.Equal(before, after) {
		t.Fatalf("file changed after rejected update:\nbefore: %q\nafter:  %q", before, after)
	}
	if n := len(backups(t, store)); n != 0 {
		t.Fatalf("expected no backups after rejection, got %d", n)
	}
}

func TestUpdateAcceptsTimeoutAndBacksUpPrevious(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\n")

	change, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 60})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := store.Get("transcription", "timeout_s"); got != 60 {
		t.Fatalf("expected 60, got %v", got)
	}
	list := backups(t, store)
	if len(list) != 1 {
		t.Fatalf("expected exactly one backup, got %d", len(list))
	}
	if change.BackupID != list[0].ID {
		t.Fatalf("change backup %q does not match stored backup %q", change.BackupID, list[0].ID)
	}
	doc, _, err := store.storage.LoadBackup(context.Background(), list[0].ID)
	if err != nil {
		t.Fatalf("load backup: %v", err)
	}
	if got := doc["transcription"]["timeout_s"]; got != 30 {
		t.Fatalf("expected backup to hold 30, got %v", got)
	}
	if diff := cmp.Diff([]string{"transcription.timeout_s"}, change.Paths()); diff != "" {
		t.Fatalf("changed paths mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateDeepMergesAndKeepsUnmentionedFields(t *testing.T) {
	store, path := openStore(t, strings.Join([]string{
		"transcription:",
		"  timeout_s: 30",
		"  model: large",
		"  extra:",
		"    retries: 2",
		"    backoff: 1s",
		"ui:",
		"  theme: dark",
		"",
	}, "\n"))

	_, err := store.Update(context.Background(), "transcription", map[string]any{
		"timeout_s": 45,
		"extra":     map[string]any{"retries": 5},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	want := Document{
		"transcription": {
			"timeout_s": 45,
			"model":     "large",
			"extra":     map[string]any{"retries": 5, "backoff": "1s"},
		},
		"ui": {"theme": "dark"},
	}
	if diff := cmp.Diff(want, store.Document()); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}

	reopened, err := Open(context.Background(), path, testSchema())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if diff := cmp.Diff(want, reopened.Document()); diff != "" {
		t.Fatalf("persisted document mismatch (-want +got):\n%s", diff)
	}
}

func TestExactlyOneBackupPerUpdate(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\n")
	for i, value := range []int{40, 50, 60, 70} {
		if _, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": value}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if n := len(backups(t, store)); n != i+1 {
			t.Fatalf("after update %d expected %d backups, got %d", i, i+1, n)
		}
	}
}

func TestNoopUpdateTakesNoBackup(t *testing.T) {
	store, path := openStore(t, "transcription:\n  timeout_s: 30\n")
	before := readFile(t, path)

	change, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 30})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !change.Noop {
		t.Fatalf("expected noop change, got %+v", change)
	}
	if n := len(backups(t, store)); n != 0 {
		t.Fatalf("expected no backup for noop, got %d", n)
	}
	if !bytes.Equal(before, readFile(t, path)) {
		t.Fatalf("noop update rewrote the file")
	}
}

func TestUpdateNilRemovesKeyAndFallsBackToDefault(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\n  model: large\n")

	if _, err := store.Update(context.Background(), "transcription", map[string]any{"model": nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok := store.Document().Lookup("transcription", "model"); ok {
		t.Fatalf("expected model removed from stored document")
	}
	if got := store.Get("transcription", "model"); got != "small" {
		t.Fatalf("expected default model, got %v", got)
	}
}

func TestUpdatePersistsEmptyNestedMap(t *testing.T) {
	store, path := openStore(t, "transcription:\n  timeout_s: 30\n")

	change, err := store.Update(context.Background(), "extra", map[string]any{"panels": map[string]any{}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if change.Noop || change.BackupID == "" {
		t.Fatalf("expected a persisted change, got %+v", change)
	}
	if diff := cmp.Diff([]string{"extra.panels"}, change.Paths()); diff != "" {
		t.Fatalf("changed paths mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(string(readFile(t, path)), "panels") {
		t.Fatalf("expected empty map written to file:\n%s", readFile(t, path))
	}
}

func TestApplyIsAllOrNothingAcrossSections(t *testing.T) {
	store, path := openStore(t, "transcription:\n  timeout_s: 30\nui:\n  theme: light\n")
	before := readFile(t, path)

	_, err := store.Apply(context.Background(), Document{
		"transcription": {"timeout_s": 90},
		"ui":            {"theme": "neon"},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if diff := cmp.Diff([]string{"ui.theme"}, verr.Paths()); diff != "" {
		t.Fatalf("failed fields mismatch (-want +got):\n%s", diff)
	}
	if got := store.Int("transcription", "timeout_s"); got != 30 {
		t.Fatalf("expected transcription untouched, got %d", got)
	}
	if !bytes.Equal(before, readFile(t, path)) {
		t.Fatalf("file changed after rejected apply")
	}
}

func TestRollbackLatestRestoresPreviousState(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\n")
	ctx := context.Background()
	for _, value := range []int{10, 20, 30, 40} {
		if _, err := store.Update(ctx, "transcription", map[string]any{"timeout_s": value}); err != nil {
			t.Fatalf("update %d: %v", value, err)
		}
	}

	change, err := store.Rollback(ctx, "latest")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got := store.Get("transcription", "timeout_s"); got != 30 {
		t.Fatalf("expected state after update N-1 (30), got %v", got)
	}
	if change.Source != SourceRollback || change.RestoredFrom == "" || change.BackupID == "" {
		t.Fatalf("unexpected rollback change: %+v", change)
	}
	// four updates plus the snapshot taken by the rollback itself
	if n := len(backups(t, store)); n != 5 {
		t.Fatalf("expected 5 backups, got %d", n)
	}
}

func TestRollbackByID(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\n")
	ctx := context.Background()
	first, err := store.Update(ctx, "transcription", map[string]any{"timeout_s": 60})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.Update(ctx, "transcription", map[string]any{"timeout_s": 90}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := store.Rollback(ctx, first.BackupID); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got := store.Int("transcription", "timeout_s"); got != 30 {
		t.Fatalf("expected original 30, got %d", got)
	}
}

func TestRollbackMissingBackup(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\n")

	for _, id := range []string{"latest", "20200101T000000.000000000Z"} {
		_, err := store.Rollback(context.Background(), id)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("rollback %q: expected ErrNotFound, got %v", id, err)
		}
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.ID != id {
			t.Fatalf("rollback %q: expected NotFoundError naming id, got %v", id, err)
		}
	}
}

func TestCrashBeforeRenameKeepsPreviousFile(t *testing.T) {
	store, path := openStore(t, "transcription:\n  timeout_s: 30\n")
	before := readFile(t, path)

	crash := errors.New("simulated crash")
	restore := state.SetRenameForTests(func(oldpath, newpath string) error {
		if newpath == store.Path() {
			return crash
		}
		return os.Rename(oldpath, newpath)
	})
	defer restore()

	_, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 60})
	if !errors.Is(err, ErrPersist) || !errors.Is(err, crash) {
		t.Fatalf("expected persist error wrapping crash, got %v", err)
	}
	var perr *PersistError
	if !errors.As(err, &perr) || perr.Op != "write" {
		t.Fatalf("expected PersistError for write, got %v", err)
	}
	if !bytes.Equal(before, readFile(t, path)) {
		t.Fatalf("file changed after failed write")
	}
	if got := store.Get("transcription", "timeout_s"); got != 30 {
		t.Fatalf("expected previous document active, got %v", got)
	}
	if n := len(backups(t, store)); n != 0 {
		t.Fatalf("expected aborted backup removed, got %d", n)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Fatalf("temporary file left behind: %s", entry.Name())
		}
	}
}

func TestPersistFailureWithMemoryStore(t *testing.T) {
	mem := state.NewMemoryStore(state.Snapshot{"transcription": {"timeout_s": 30}})
	store, err := Open(context.Background(), "memory", testSchema(), WithStateStore(mem))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mem.SaveErr = errors.New("disk full")

	if _, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 60}); !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if got := store.Int("transcription", "timeout_s"); got != 30 {
		t.Fatalf("expected 30 to stay active, got %d", got)
	}
	if n := len(backups(t, store)); n != 0 {
		t.Fatalf("expected backup removed after failed save, got %d", n)
	}

	mem.BackupErr = errors.New("backup dir read-only")
	mem.SaveErr = nil
	_, err = store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 60})
	var perr *PersistError
	if !errors.As(err, &perr) || perr.Op != "backup" {
		t.Fatalf("expected backup PersistError, got %v", err)
	}
	if mem.Saves() != 0 {
		t.Fatalf("expected nothing saved when backup fails, got %d saves", mem.Saves())
	}
}

func TestOpenErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := Open(context.Background(), missing, testSchema()); !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad for missing file, got %v", err)
	}

	malformed := writeConfig(t, "transcription: [unclosed\n")
	if _, err := Open(context.Background(), malformed, testSchema(), WithAllowMissing(true)); !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad for malformed file, got %v", err)
	}

	invalid := writeConfig(t, "transcription:\n  timeout_s: 0\n")
	_, err := Open(context.Background(), invalid, testSchema())
	if !errors.Is(err, ErrLoad) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected load error wrapping validation, got %v", err)
	}
}

func TestOpenAllowMissingStartsFromDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, err := Open(context.Background(), path, testSchema(), WithAllowMissing(true))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := store.Int("transcription", "timeout_s"); got != 30 {
		t.Fatalf("expected default 30, got %d", got)
	}
	if _, err := store.Update(context.Background(), "ui", map[string]any{"theme": "dark"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(string(readFile(t, path)), "theme: dark") {
		t.Fatalf("expected file created with update")
	}
}

func TestReloadHandlersRunInOrderAndSurviveFailures(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\n", WithHandlerTimeout(50*time.Millisecond))

	var mu sync.Mutex
	var calls []string
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, name)
	}
	store.RegisterReloadHandler("first", func(_ context.Context, doc Document) error {
		record("first")
		if doc["transcription"]["timeout_s"] != 60 {
			t.Errorf("handler saw %v", doc["transcription"]["timeout_s"])
		}
		return nil
	})
	store.RegisterReloadHandler("failing", func(context.Context, Document) error {
		record("failing")
		return errors.New("cannot apply")
	})
	store.RegisterReloadHandler("panicking", func(context.Context, Document) error {
		record("panicking")
		panic("boom")
	})
	store.RegisterReloadHandler("slow", func(ctx context.Context, _ Document) error {
		record("slow")
		time.Sleep(500 * time.Millisecond)
		return nil
	})
	store.RegisterReloadHandler("last", func(_ context.Context, doc Document) error {
		record("last")
		doc["transcription"]["timeout_s"] = 999
		return nil
	})

	change, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 60})
	if err != nil {
		t.Fatalf("update must succeed despite handler failures: %v", err)
	}

	mu.Lock()
	got := append([]string(nil), calls...)
	mu.Unlock()
	if diff := cmp.Diff([]string{"first", "failing", "panicking", "slow", "last"}, got); diff != "" {
		t.Fatalf("handler order mismatch (-want +got):\n%s", diff)
	}
	if len(change.HandlerErrors) != 3 {
		t.Fatalf("expected 3 handler errors, got %v", change.HandlerErrors)
	}
	names := []string{}
	for _, herr := range change.HandlerErrors {
		var rerr *ReloadHandlerError
		if !errors.As(herr, &rerr) || !errors.Is(herr, ErrReloadHandler) {
			t.Fatalf("expected ReloadHandlerError, got %v", herr)
		}
		names = append(names, rerr.Handler)
	}
	if diff := cmp.Diff([]string{"failing", "panicking", "slow"}, names); diff != "" {
		t.Fatalf("failed handlers mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(change.HandlerErrors[2], context.DeadlineExceeded) {
		t.Fatalf("expected timeout error, got %v", change.HandlerErrors[2])
	}
	if got := store.Get("transcription", "timeout_s"); got != 60 {
		t.Fatalf("change must not be undone or mutated by handlers, got %v", got)
	}
}

func TestClosedStoreRejectsWriters(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\n")
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 60}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if got := store.Int("transcription", "timeout_s"); got != 30 {
		t.Fatalf("reads must keep working after close, got %d", got)
	}
}

func TestConcurrentReadersNeverSeePartialDocuments(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 10\n  model: small\n")
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				section := store.Section("transcription")
				timeout := section["timeout_s"].(int)
				model := section["model"].(string)
				// updates always move both keys together
				if (timeout%20 == 0) != (model == "large") {
					t.Errorf("torn read: timeout=%d model=%s", timeout, model)
					return
				}
			}
		}()
	}
	for i := 1; i <= 20; i++ {
		model := "small"
		if i%2 == 0 {
			model = "large"
		}
		if _, err := store.Update(ctx, "transcription", map[string]any{"timeout_s": i * 10, "model": model}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestActivityEvents(t *testing.T) {
	capture := &activity.CaptureHook{}
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\ncompliance:\n  api_key: old-secret\n",
		WithActivityHooks(capture), WithActor("admin"))
	ctx := context.Background()

	if _, err := store.Update(ctx, "compliance", map[string]any{"api_key": "new-secret"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.Update(ctx, "transcription", map[string]any{"timeout_s": 0}); err == nil {
		t.Fatalf("expected rejection")
	}
	if _, err := store.Rollback(ctx, "latest"); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	want := []string{activity.VerbUpdated, activity.VerbRejected, activity.VerbRolledBack}
	if diff := cmp.Diff(want, capture.Verbs()); diff != "" {
		t.Fatalf("verbs mismatch (-want +got):\n%s", diff)
	}
	events := capture.Events()
	if events[0].ActorID != "admin" || events[0].Channel != activity.DefaultChannel {
		t.Fatalf("unexpected event envelope: %+v", events[0])
	}
	changes := events[0].Metadata["changes"].([]map[string]any)
	if changes[0]["old"] != RedactedValue || changes[0]["new"] != RedactedValue {
		t.Fatalf("secret leaked into activity: %+v", changes[0])
	}
	fields := events[1].Metadata["fields"].([]string)
	if diff := cmp.Diff([]string{"transcription.timeout_s"}, fields); diff != "" {
		t.Fatalf("rejected fields mismatch (-want +got):\n%s", diff)
	}
}

func TestPruneBackups(t *testing.T) {
	store, _ := openStore(t, "transcription:\n  timeout_s: 30\n")
	for _, value := range []int{40, 50, 60} {
		if _, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": value}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	removed, err := store.PruneBackups(context.Background(), 1)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, err := store.Rollback(context.Background(), "latest"); err != nil {
		t.Fatalf("rollback after prune: %v", err)
	}
	if got := store.Int("transcription", "timeout_s"); got != 50 {
		t.Fatalf("expected newest backup (50) restored, got %d", got)
	}
}

func TestUpdateGivesUpWhenLockFileHeld(t *testing.T) {
	store, path := openStore(t, "transcription:\n  timeout_s: 30\n", WithLockTimeout(5*time.Second))
	before := readFile(t, path)

	other := flock.New(path + ".lock")
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("hold lock: %v", err)
	}
	defer func() { _ = other.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = store.Update(ctx, "transcription", map[string]any{"timeout_s": 60})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("update waited %s past a 100ms deadline", elapsed)
	}
	if !errors.Is(err, ErrPersist) || !errors.Is(err, state.ErrLocked) {
		t.Fatalf("expected lock persist error, got %v", err)
	}
	var perr *PersistError
	if !errors.As(err, &perr) || perr.Op != "lock" {
		t.Fatalf("expected lock op, got %v", err)
	}
	if got := store.Int("transcription", "timeout_s"); got != 30 {
		t.Fatalf("expected previous document active, got %d", got)
	}
	if n := len(backups(t, store)); n != 0 {
		t.Fatalf("expected aborted backup removed, got %d", n)
	}
	if !bytes.Equal(before, readFile(t, path)) {
		t.Fatalf("file changed while locked")
	}

	// the store is usable again once the lock is released
	if err := other.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 60}); err != nil {
		t.Fatalf("update after unlock: %v", err)
	}
}

func TestLockTimeoutAppliesWithoutDeadline(t *testing.T) {
	store, path := openStore(t, "transcription:\n  timeout_s: 30\n", WithLockTimeout(50*time.Millisecond))

	other := flock.New(path + ".lock")
	if locked, err := other.TryLock(); err != nil || !locked {
		t.Fatalf("hold lock: %v", err)
	}
	defer func() { _ = other.Unlock() }()

	start := time.Now()
	_, err := store.Update(context.Background(), "transcription", map[string]any{"timeout_s": 60})
	if !errors.Is(err, state.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("update waited %s with a 50ms lock timeout", elapsed)
	}
}
