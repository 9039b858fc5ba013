package hotconfig

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/agilira/argus"
	"github.com/goliatone/go-hotconfig/layering"
	"github.com/goliatone/go-hotconfig/pkg/state"
)

// ErrWatchUnsupported is returned by Watch when the store is not file backed.
var ErrWatchUnsupported = errors.New("hotconfig: watch requires a file-backed store")

type watchState struct {
	watcher *argus.Watcher
	done    chan struct{}
}

// Watch polls the configuration file for edits made outside this process and
// adopts them through Reload. Edits that fail to parse or validate are logged
// and ignored; the active document stays unchanged. Writes made by the store
// itself are recognised by checksum and skipped.
//
// Watching stops when ctx is done or Close is called. Calling Watch again
// while a watcher runs is a no-op.
func (s *Store) Watch(ctx context.Context) error {
	if s.file == nil {
		return ErrWatchUnsupported
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watch != nil {
		return nil
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	watcher := argus.New(argus.Config{
		PollInterval:         s.cfg.pollInterval,
		CacheTTL:             s.cfg.pollInterval / 2,
		MaxWatchedFiles:      1,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		Audit:                argus.AuditConfig{Enabled: false},
		ErrorHandler: func(err error, path string) {
			s.logger.Warn("configuration watch error", slog.String("path", path), slog.String("error", err.Error()))
		},
	})
	if err := watcher.Watch(s.path, s.onFileEvent); err != nil {
		return &LoadError{Path: s.path, Err: err}
	}
	if err := watcher.Start(); err != nil {
		return &LoadError{Path: s.path, Err: err}
	}

	done := make(chan struct{})
	s.watch = &watchState{watcher: watcher, done: done}
	go func() {
		select {
		case <-ctx.Done():
			if err := s.stopWatch(); err != nil {
				s.logger.Warn("stopping configuration watcher", slog.String("error", err.Error()))
			}
		case <-done:
		}
	}()
	s.logger.Info("watching configuration file",
		slog.String("path", s.path),
		slog.Duration("poll_interval", s.cfg.pollInterval),
	)
	return nil
}

func (s *Store) stopWatch() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watch == nil {
		return nil
	}
	w := s.watch
	s.watch = nil
	close(w.done)
	return w.watcher.Stop()
}

func (s *Store) onFileEvent(event argus.ChangeEvent) {
	if event.IsDelete {
		s.logger.Warn("configuration file deleted, keeping active document", slog.String("path", event.Path))
		return
	}
	change, err := s.Reload(context.Background())
	if err != nil {
		// Reload already logged and emitted the failure.
		return
	}
	if change.Noop {
		return
	}
	s.logger.Debug("external edit adopted", slog.String("change_id", change.ID))
}

// Reload re-reads the file and adopts it when it differs from the active
// document, backing up the document it replaces unless the newest backup
// already holds it, as it does after another store wrote the file. Nothing is written to the
// configuration file. Invalid content leaves the active document unchanged.
func (s *Store) Reload(ctx context.Context) (*Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	current := s.active.Load()
	raw, meta, ok, err := s.storage.Load(ctx)
	if err == nil && !ok {
		err = fs.ErrNotExist
	}
	if err != nil {
		lerr := &LoadError{Path: s.path, Err: err}
		s.reject(ctx, SourceExternal, "", lerr)
		return nil, lerr
	}
	if meta.Checksum != "" && meta.Checksum == current.checksum {
		return &Change{Source: SourceExternal, Noop: true, Checksum: current.checksum, AppliedAt: s.cfg.now().UTC()}, nil
	}

	normalized, err := s.validator.Validate(Document(raw))
	if err != nil {
		s.reject(ctx, SourceExternal, "", err)
		return nil, err
	}
	change := &Change{
		ID:        newChangeID(),
		Source:    SourceExternal,
		Fields:    layering.Diff(current.doc.asMap(), normalized.asMap()),
		Checksum:  meta.Checksum,
		AppliedAt: s.cfg.now().UTC(),
	}
	if len(change.Fields) == 0 {
		// formatting-only edit; remember the new checksum
		s.swap(normalized, meta.Checksum)
		change.Noop = true
		return change, nil
	}

	if id, ok := s.latestBackupHolds(ctx, current.doc); ok {
		// the writer that produced this edit already backed up the same document
		change.BackupID = id
	} else if backup, err := s.storage.CreateBackup(context.WithoutCancel(ctx), state.Snapshot(current.doc)); err != nil {
		s.logger.Warn("backup before external reload failed", slog.String("error", err.Error()))
	} else {
		change.BackupID = backup.ID
	}
	s.swap(normalized, meta.Checksum)
	s.logger.Info("configuration reloaded from disk",
		slog.String("change_id", change.ID),
		slog.String("checksum", meta.Checksum),
		slog.Any("paths", change.Paths()),
	)
	s.emitChange(ctx, change)
	s.notify(ctx, change)
	return change, nil
}

// latestBackupHolds reports whether the newest backup has the same content
// as doc.
func (s *Store) latestBackupHolds(ctx context.Context, doc Document) (string, bool) {
	raw, backup, err := s.storage.LoadBackup(ctx, state.LatestBackup)
	if err != nil {
		return "", false
	}
	normalized, err := s.validator.Validate(Document(raw))
	if err != nil {
		return "", false
	}
	if len(layering.Diff(doc.asMap(), normalized.asMap())) > 0 {
		return "", false
	}
	return backup.ID, true
}
