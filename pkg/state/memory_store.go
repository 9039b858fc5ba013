package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-hotconfig/layering"
)

// MemoryStore is an in-memory Store intended for tests and examples. SaveErr
// and BackupErr, when set, are returned by the matching calls so failure
// paths can be exercised.
type MemoryStore struct {
	SaveErr   error
	BackupErr error

	mu       sync.RWMutex
	snapshot Snapshot
	meta     Meta
	exists   bool
	backups  []memoryBackup
	now      func() time.Time
	saves    int
}

type memoryBackup struct {
	backup   Backup
	snapshot Snapshot
}

// NewMemoryStore returns a store seeded with initial. A nil initial means no
// document has been persisted yet.
func NewMemoryStore(initial Snapshot) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	if initial != nil {
		s.snapshot = layering.Clone(initial)
		s.meta = memoryMeta(initial, s.now())
		s.exists = true
	}
	return s
}

func (s *MemoryStore) Load(ctx context.Context) (Snapshot, Meta, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists {
		return nil, Meta{}, false, nil
	}
	return layering.Clone(s.snapshot), s.meta, true, nil
}

func (s *MemoryStore) Save(ctx context.Context, snapshot Snapshot) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return Meta{}, s.SaveErr
	}
	s.snapshot = layering.Clone(snapshot)
	s.meta = memoryMeta(snapshot, s.now())
	s.exists = true
	s.saves++
	return s.meta, nil
}

// Saves reports how many successful Save calls were made.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *MemoryStore) CreateBackup(ctx context.Context, snapshot Snapshot) (Backup, error) {
	if err := ctx.Err(); err != nil {
		return Backup{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BackupErr != nil {
		return Backup{}, s.BackupErr
	}
	last := ""
	if len(s.backups) > 0 {
		last = s.backups[len(s.backups)-1].backup.ID
	}
	id := nextBackupID(s.now(), last)
	createdAt, _ := ParseBackupID(id)
	meta := memoryMeta(snapshot, createdAt)
	backup := Backup{ID: id, Checksum: meta.Checksum, Size: meta.Size, CreatedAt: createdAt}
	s.backups = append(s.backups, memoryBackup{backup: backup, snapshot: layering.Clone(snapshot)})
	return backup, nil
}

func (s *MemoryStore) ListBackups(ctx context.Context) ([]Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Backup, 0, len(s.backups))
	for _, b := range s.backups {
		out = append(out, b.backup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) LoadBackup(ctx context.Context, id string) (Snapshot, Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, Backup{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id = strings.TrimSpace(id)
	if id == "" || id == LatestBackup {
		if len(s.backups) == 0 {
			return nil, Backup{}, fmt.Errorf("%w: %w", ErrBackupNotFound, ErrNoBackups)
		}
		latest := s.backups[len(s.backups)-1]
		return layering.Clone(latest.snapshot), latest.backup, nil
	}
	for _, b := range s.backups {
		if b.backup.ID == id {
			return layering.Clone(b.snapshot), b.backup, nil
		}
	}
	return nil, Backup{}, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
}

func (s *MemoryStore) DeleteBackup(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.backups {
		if b.backup.ID == id {
			s.backups = append(s.backups[:i], s.backups[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
}

func (s *MemoryStore) PruneBackups(ctx context.Context, keep int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if keep < 0 {
		return 0, fmt.Errorf("state: keep must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.backups) <= keep {
		return 0, nil
	}
	removed := len(s.backups) - keep
	s.backups = append([]memoryBackup(nil), s.backups[removed:]...)
	return removed, nil
}

func memoryMeta(snapshot Snapshot, at time.Time) Meta {
	raw, _ := json.Marshal(snapshot)
	return Meta{
		Path:      "memory",
		Checksum:  Checksum(raw),
		Size:      int64(len(raw)),
		UpdatedAt: at,
	}
}

var _ Store = (*MemoryStore)(nil)
