package state

import (
	"context"
	"errors"
	"time"
)

// ErrBackupNotFound is returned when a requested backup does not exist.
var ErrBackupNotFound = errors.New("state: backup not found")

// ErrNoBackups is returned when "latest" is requested and none exist.
var ErrNoBackups = errors.New("state: no backups")

// ErrLocked is returned by Save when the lock file stays held by another
// writer until the context ends.
var ErrLocked = errors.New("state: lock held by another writer")

// LatestBackup selects the most recent backup in LoadBackup.
const LatestBackup = "latest"

// BackupIDLayout formats backup IDs. IDs sort lexically in creation order.
const BackupIDLayout = "20060102T150405.000000000Z"

// Snapshot is a sectioned configuration document as stored on disk.
type Snapshot = map[string]map[string]any

// Meta is storage-owned metadata about the persisted document.
type Meta struct {
	Path      string    `json:"path,omitempty"`
	Checksum  string    `json:"checksum,omitempty"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Backup describes one immutable pre-update copy of the document.
type Backup struct {
	ID        string    `json:"id"`
	Path      string    `json:"path,omitempty"`
	Checksum  string    `json:"checksum,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store loads and saves the active document and manages its backups.
type Store interface {
	Load(ctx context.Context) (snapshot Snapshot, meta Meta, ok bool, err error)
	Save(ctx context.Context, snapshot Snapshot) (Meta, error)

	CreateBackup(ctx context.Context, snapshot Snapshot) (Backup, error)
	ListBackups(ctx context.Context) ([]Backup, error)
	LoadBackup(ctx context.Context, id string) (Snapshot, Backup, error)
	DeleteBackup(ctx context.Context, id string) error
	PruneBackups(ctx context.Context, keep int) (int, error)
}

// ParseBackupID returns the creation time encoded in id.
func ParseBackupID(id string) (time.Time, error) {
	return time.Parse(BackupIDLayout, id)
}

// nextBackupID returns an ID for now that sorts strictly after last.
func nextBackupID(now time.Time, last string) string {
	now = now.UTC()
	id := now.Format(BackupIDLayout)
	for last != "" && id <= last {
		now = now.Add(time.Nanosecond)
		id = now.Format(BackupIDLayout)
	}
	return id
}
