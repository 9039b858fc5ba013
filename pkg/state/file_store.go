package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/goliatone/go-hotconfig/internal/codec"
)

const lockRetryDelay = 25 * time.Millisecond

// renameFile replaces the destination with the fully written temp file.
var renameFile = os.Rename

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithBackupDir overrides the backup directory (default "<path>.backups").
func WithBackupDir(dir string) FileOption {
	return func(s *FileStore) {
		if strings.TrimSpace(dir) != "" {
			s.backupDir = dir
		}
	}
}

// WithFileMode sets the permission bits used for new files (default 0o600).
func WithFileMode(mode fs.FileMode) FileOption {
	return func(s *FileStore) {
		if mode != 0 {
			s.mode = mode
		}
	}
}

// WithClock overrides the time source used for backup IDs.
func WithClock(now func() time.Time) FileOption {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// FileStore keeps the document in a single file and backups in a sibling
// directory.
type FileStore struct {
	path      string
	format    codec.Format
	backupDir string
	mode      fs.FileMode
	now       func() time.Time
	lock      *flock.Flock

	mu         sync.Mutex
	lastBackup string
}

// NewFileStore constructs a FileStore for path. The file does not have to
// exist yet.
func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("state: path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("state: resolve %q: %w", path, err)
	}
	s := &FileStore{
		path:      abs,
		format:    codec.Detect(abs),
		backupDir: abs + ".backups",
		mode:      0o600,
		now:       time.Now,
		lock:      flock.New(abs + ".lock"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Path returns the absolute document path.
func (s *FileStore) Path() string {
	return s.path
}

// BackupDir returns the directory holding backups.
func (s *FileStore) BackupDir() string {
	return s.backupDir
}

// Load reads and decodes the document. ok is false when the file is missing.
func (s *FileStore) Load(ctx context.Context) (Snapshot, Meta, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, false, err
	}
	raw, info, err := readFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Meta{Path: s.path}, false, nil
	}
	if err != nil {
		return nil, Meta{Path: s.path}, false, fmt.Errorf("state: read %s: %w", s.path, err)
	}
	meta := Meta{
		Path:      s.path,
		Checksum:  Checksum(raw),
		Size:      int64(len(raw)),
		UpdatedAt: info.ModTime(),
	}
	snapshot, err := codec.Decode(s.format, raw)
	if err != nil {
		return nil, meta, true, fmt.Errorf("state: parse %s: %w", s.path, err)
	}
	return snapshot, meta, true, nil
}

// Save atomically replaces the document on disk. ctx bounds only the wait
// for the cross-process lock; once the write starts it runs to completion.
func (s *FileStore) Save(ctx context.Context, snapshot Snapshot) (Meta, error) {
	raw, err := codec.Encode(s.format, snapshot)
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode: %w", err)
	}
	unlock, err := s.acquire(ctx)
	if err != nil {
		return Meta{}, err
	}
	defer unlock()

	if err := writeAtomic(s.path, raw, s.fileMode(s.path)); err != nil {
		return Meta{}, fmt.Errorf("state: write %s: %w", s.path, err)
	}
	return Meta{
		Path:      s.path,
		Checksum:  Checksum(raw),
		Size:      int64(len(raw)),
		UpdatedAt: s.now(),
	}, nil
}

// CreateBackup writes snapshot as a new backup.
func (s *FileStore) CreateBackup(ctx context.Context, snapshot Snapshot) (Backup, error) {
	raw, err := codec.Encode(s.format, snapshot)
	if err != nil {
		return Backup{}, fmt.Errorf("state: encode backup: %w", err)
	}
	if err := os.MkdirAll(s.backupDir, 0o700); err != nil {
		return Backup{}, fmt.Errorf("state: create backup dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.lastBackup
	if existing, err := s.listBackups(); err == nil && len(existing) > 0 {
		if newest := existing[len(existing)-1].ID; newest > last {
			last = newest
		}
	}
	createdAt := s.now().UTC()
	id := nextBackupID(createdAt, last)
	path := s.backupPath(id)
	if err := writeAtomic(path, raw, s.mode); err != nil {
		return Backup{}, fmt.Errorf("state: write backup %s: %w", id, err)
	}
	s.lastBackup = id

	parsed, _ := ParseBackupID(id)
	return Backup{
		ID:        id,
		Path:      path,
		Checksum:  Checksum(raw),
		Size:      int64(len(raw)),
		CreatedAt: parsed,
	}, nil
}

// ListBackups returns backups ordered oldest first.
func (s *FileStore) ListBackups(ctx context.Context) ([]Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.listBackups()
}

// LoadBackup decodes the backup with id, or the newest one for LatestBackup.
func (s *FileStore) LoadBackup(ctx context.Context, id string) (Snapshot, Backup, error) {
	backup, err := s.resolveBackup(ctx, id)
	if err != nil {
		return nil, Backup{}, err
	}
	raw, _, err := readFile(backup.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Backup{}, fmt.Errorf("%w: %s", ErrBackupNotFound, backup.ID)
	}
	if err != nil {
		return nil, Backup{}, fmt.Errorf("state: read backup %s: %w", backup.ID, err)
	}
	backup.Checksum = Checksum(raw)
	snapshot, err := codec.Decode(s.format, raw)
	if err != nil {
		return nil, backup, fmt.Errorf("state: parse backup %s: %w", backup.ID, err)
	}
	return snapshot, backup, nil
}

// DeleteBackup removes the backup with id.
func (s *FileStore) DeleteBackup(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := ParseBackupID(id); err != nil {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	err := os.Remove(s.backupPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("state: delete backup %s: %w", id, err)
	}
	return nil
}

// PruneBackups deletes all but the newest keep backups and reports how many
// were removed.
func (s *FileStore) PruneBackups(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("state: keep must not be negative")
	}
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}
	removed := 0
	for _, backup := range backups[:len(backups)-keep] {
		if err := os.Remove(backup.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("state: prune %s: %w", backup.ID, err)
		}
		removed++
	}
	return removed, nil
}

func (s *FileStore) resolveBackup(ctx context.Context, id string) (Backup, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == LatestBackup {
		backups, err := s.ListBackups(ctx)
		if err != nil {
			return Backup{}, err
		}
		if len(backups) == 0 {
			return Backup{}, fmt.Errorf("%w: %w", ErrBackupNotFound, ErrNoBackups)
		}
		return backups[len(backups)-1], nil
	}
	if err := ctx.Err(); err != nil {
		return Backup{}, err
	}
	createdAt, err := ParseBackupID(id)
	if err != nil {
		return Backup{}, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	return Backup{ID: id, Path: s.backupPath(id), CreatedAt: createdAt}, nil
}

func (s *FileStore) listBackups() ([]Backup, error) {
	entries, err := os.ReadDir(s.backupDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read backup dir: %w", err)
	}
	ext := s.format.Ext()
	backups := make([]Backup, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		id := strings.TrimSuffix(name, ext)
		createdAt, err := ParseBackupID(id)
		if err != nil {
			continue
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		backups = append(backups, Backup{
			ID:        id,
			Path:      filepath.Join(s.backupDir, name),
			Size:      size,
			CreatedAt: createdAt,
		})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].ID < backups[j].ID })
	return backups, nil
}

func (s *FileStore) backupPath(id string) string {
	return filepath.Join(s.backupDir, id+s.format.Ext())
}

func (s *FileStore) fileMode(path string) fs.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return s.mode
}

func (s *FileStore) acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("state: create config dir: %w", err)
	}
	// retries until the lock is free or ctx ends
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err == nil && !ok {
		err = ctx.Err()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLocked, s.lock.Path(), err)
		}
		return nil, fmt.Errorf("state: acquire lock: %w", err)
	}
	return func() { _ = s.lock.Unlock() }, nil
}

// Checksum returns the hex encoded SHA-256 of raw.
func Checksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func readFile(path string) ([]byte, fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return raw, info, nil
}

// writeAtomic writes data next to path and renames it into place. The
// destination is never observed half written.
func writeAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return err
	}
	if err := renameFile(tmpName, path); err != nil {
		cleanup()
		return err
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

var _ Store = (*FileStore)(nil)
