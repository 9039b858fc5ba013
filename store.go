// Package hotconfig holds a sectioned configuration document on disk, applies
// validated live edits with automatic backups and notifies the running
// process when the active document changes.
//
// Readers never block: Get and the typed accessors read an atomically
// swapped snapshot. Writers (Update, Apply, Rollback and external reloads
// detected by Watch) are serialised and follow the same sequence: merge,
// validate, back up the previous document, persist atomically, swap, notify.
package hotconfig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-hotconfig/layering"
	"github.com/goliatone/go-hotconfig/pkg/activity"
	"github.com/goliatone/go-hotconfig/pkg/state"
)

// Store is the single authoritative holder of live configuration.
type Store struct {
	path      string
	cfg       storeConfig
	validator *Validator
	storage   state.Store
	file      *state.FileStore
	emitter   *activity.Emitter
	logger    *slog.Logger

	active atomic.Pointer[snapshot]

	// mu serialises writers across validate, backup, persist, swap and notify.
	mu     sync.Mutex
	closed bool

	handlersMu sync.RWMutex
	handlers   []namedHandler

	watchMu sync.Mutex
	watch   *watchState
}

type snapshot struct {
	doc       Document
	effective Document
	checksum  string
	loadedAt  time.Time
}

type namedHandler struct {
	name string
	fn   HandlerFunc
}

// Open loads the document at path and validates it against schema.
//
// A missing file is a *LoadError unless WithAllowMissing(true) is given, in
// which case the store starts empty and reads fall back to schema defaults.
// A malformed or invalid file is always a *LoadError.
func Open(ctx context.Context, path string, schema Schema, opts ...Option) (*Store, error) {
	cfg := applyOptions(opts)
	validator, err := newValidator(schema, cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:      path,
		cfg:       cfg,
		validator: validator,
		storage:   cfg.store,
		logger:    cfg.logger.With(slog.String("component", "hotconfig")),
		emitter:   activity.NewEmitter(activity.DefaultChannel, cfg.activityHooks...),
	}
	if s.storage == nil {
		file, err := state.NewFileStore(path, cfg.fileOptions...)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		s.file = file
		s.storage = file
		s.path = file.Path()
	}

	raw, meta, ok, err := s.storage.Load(ctx)
	if err != nil {
		return nil, &LoadError{Path: s.path, Err: err}
	}
	if !ok {
		if !cfg.allowMissing {
			return nil, &LoadError{Path: s.path, Err: fs.ErrNotExist}
		}
		s.logger.Info("configuration file missing, starting empty", slog.String("path", s.path))
		raw = state.Snapshot{}
	}
	doc, err := validator.Validate(Document(raw))
	if err != nil {
		return nil, &LoadError{Path: s.path, Err: err}
	}
	s.swap(doc, meta.Checksum)
	s.logger.Debug("configuration loaded",
		slog.String("path", s.path),
		slog.String("checksum", meta.Checksum),
		slog.Int("sections", len(doc)),
	)
	return s, nil
}

// Path returns the absolute path of the configuration file.
func (s *Store) Path() string {
	return s.path
}

// Schema returns the schema the store validates against.
func (s *Store) Schema() Schema {
	return s.validator.Schema()
}

// Checksum returns the content checksum of the active document as persisted.
func (s *Store) Checksum() string {
	return s.active.Load().checksum
}

// Document returns a deep copy of the active document as stored, without
// defaults.
func (s *Store) Document() Document {
	return s.active.Load().doc.Clone()
}

// Effective returns a deep copy of the active document overlaid on schema
// defaults. This is what reload handlers receive.
func (s *Store) Effective() Document {
	return s.active.Load().effective.Clone()
}

// Validate checks doc against the store schema without applying it.
func (s *Store) Validate(doc Document) error {
	_, err := s.validator.Validate(doc)
	return err
}

// RegisterReloadHandler adds handler to the list invoked after every change.
// Handlers run synchronously in registration order, each bounded by the
// handler timeout. They must not call Update, Apply or Rollback.
func (s *Store) RegisterReloadHandler(name string, handler HandlerFunc) {
	if handler == nil {
		return
	}
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	if name == "" {
		name = fmt.Sprintf("handler-%d", len(s.handlers)+1)
	}
	s.handlers = append(s.handlers, namedHandler{name: name, fn: handler})
}

// Update deep-merges partial into section and applies the result. Keys set to
// nil in partial are removed.
func (s *Store) Update(ctx context.Context, section string, partial map[string]any) (*Change, error) {
	if section == "" {
		return nil, &ValidationError{Fields: []FieldError{{Message: "section name must not be empty"}}}
	}
	return s.Apply(ctx, Document{section: partial})
}

// Apply deep-merges a multi-section partial document and applies the result
// atomically: either every section changes or none does.
func (s *Store) Apply(ctx context.Context, partial Document) (*Change, error) {
	return s.commit(ctx, SourceUpdate, "", func(current Document) (Document, error) {
		next := current.Clone()
		for section, values := range partial {
			if values == nil {
				continue
			}
			next[section] = layering.Patch(next[section], values)
		}
		return next, nil
	})
}

// Rollback restores the backup with the given id, or the newest backup when
// id is "latest" or empty. The document being replaced is itself backed up.
func (s *Store) Rollback(ctx context.Context, id string) (*Change, error) {
	if id == "" {
		id = state.LatestBackup
	}
	var restored state.Backup
	return s.commit(ctx, SourceRollback, id, func(Document) (Document, error) {
		doc, backup, err := s.storage.LoadBackup(ctx, id)
		if errors.Is(err, state.ErrBackupNotFound) || errors.Is(err, state.ErrNoBackups) {
			return nil, &NotFoundError{ID: id, Err: err}
		}
		if err != nil {
			return nil, &PersistError{Op: "read backup", Path: id, Err: err}
		}
		restored = backup
		return Document(doc), nil
	}, func(change *Change) {
		change.RestoredFrom = restored.ID
	})
}

// Backups lists available backups, oldest first.
func (s *Store) Backups(ctx context.Context) ([]state.Backup, error) {
	backups, err := s.storage.ListBackups(ctx)
	if err != nil {
		return nil, &PersistError{Op: "list backups", Path: s.path, Err: err}
	}
	return backups, nil
}

// PruneBackups deletes all but the newest keep backups.
func (s *Store) PruneBackups(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, err := s.storage.PruneBackups(ctx, keep)
	if err != nil {
		return removed, &PersistError{Op: "prune backups", Path: s.path, Err: err}
	}
	if removed > 0 {
		s.logger.Info("backups pruned", slog.Int("removed", removed), slog.Int("kept", keep))
	}
	return removed, nil
}

// Close stops the watcher. Writers fail with ErrClosed afterwards; reads keep
// returning the last active document.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.stopWatch()
}

type mutation func(current Document) (Document, error)

// commit runs the single-writer sequence. The caller's context is honoured
// only until the write starts, which includes the wait for the lock file;
// handlers run on a context that is not cancelled with it.
func (s *Store) commit(ctx context.Context, source Source, ref string, mutate mutation, decorate ...func(*Change)) (*Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current := s.active.Load()
	next, err := mutate(current.doc.Clone())
	if err != nil {
		return nil, err
	}
	normalized, err := s.validator.Validate(next)
	if err != nil {
		s.reject(ctx, source, ref, err)
		return nil, err
	}

	change := &Change{
		ID:        newChangeID(),
		Source:    source,
		Fields:    layering.Diff(current.doc.asMap(), normalized.asMap()),
		AppliedAt: s.cfg.now().UTC(),
		Checksum:  current.checksum,
	}
	for _, fn := range decorate {
		fn(change)
	}
	if len(change.Fields) == 0 {
		change.Noop = true
		s.logger.Debug("configuration unchanged", slog.String("source", string(source)))
		return change, nil
	}

	wctx := context.WithoutCancel(ctx)
	backup, err := s.storage.CreateBackup(wctx, state.Snapshot(current.doc))
	if err != nil {
		return nil, &PersistError{Op: "backup", Path: s.path, Err: err}
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.lockTimeout)
	meta, err := s.storage.Save(lockCtx, state.Snapshot(normalized))
	cancel()
	if err != nil {
		if delErr := s.storage.DeleteBackup(wctx, backup.ID); delErr != nil {
			s.logger.Warn("orphan backup left after failed write",
				slog.String("backup_id", backup.ID),
				slog.String("error", delErr.Error()),
			)
		}
		s.logger.Error("configuration write failed, keeping previous document",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		op := "write"
		if errors.Is(err, state.ErrLocked) {
			op = "lock"
		}
		return nil, &PersistError{Op: op, Path: s.path, Err: err}
	}

	s.swap(normalized, meta.Checksum)
	change.BackupID = backup.ID
	change.Checksum = meta.Checksum

	s.logger.Info("configuration changed",
		slog.String("source", string(source)),
		slog.String("change_id", change.ID),
		slog.String("backup_id", backup.ID),
		slog.Any("paths", change.Paths()),
	)
	s.emitChange(ctx, change)
	s.notify(ctx, change)
	return change, nil
}

func (s *Store) swap(doc Document, checksum string) {
	effective := s.validator.Schema().Defaults()
	for section, values := range doc {
		if _, ok := effective[section]; !ok {
			effective[section] = map[string]any{}
		}
		for key, value := range values {
			effective[section][key] = value
		}
	}
	s.active.Store(&snapshot{
		doc:       doc,
		effective: effective,
		checksum:  checksum,
		loadedAt:  s.cfg.now().UTC(),
	})
}

// notify runs every handler in order. Failures are recorded on the change and
// never undo it.
func (s *Store) notify(ctx context.Context, change *Change) {
	s.handlersMu.RLock()
	handlers := append([]namedHandler(nil), s.handlers...)
	s.handlersMu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	base := context.WithoutCancel(ctx)
	doc := s.active.Load().effective
	for _, h := range handlers {
		err := s.invoke(base, h, doc.Clone())
		if err == nil {
			continue
		}
		herr := &ReloadHandlerError{Handler: h.name, Err: err}
		change.HandlerErrors = append(change.HandlerErrors, herr)
		s.logger.Error("reload handler failed",
			slog.String("handler", h.name),
			slog.String("change_id", change.ID),
			slog.String("error", err.Error()),
		)
		s.emit(ctx, activity.BuildHandlerFailedEvent(activity.ChangeInput{
			ActorID:  s.cfg.actor,
			ChangeID: change.ID,
			Source:   string(change.Source),
			Path:     s.path,
			Err:      herr,
			Metadata: map[string]any{"handler": h.name},
		}))
	}
}

func (s *Store) invoke(ctx context.Context, h namedHandler, doc Document) error {
	timeout := s.cfg.handlerTimeout
	hctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- h.fn(hctx, doc)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		return fmt.Errorf("timed out after %s: %w", timeout, hctx.Err())
	}
}
