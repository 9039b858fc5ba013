package hotconfig

import (
	"context"
	"errors"
	"log/slog"

	"github.com/goliatone/go-hotconfig/pkg/activity"
	"github.com/google/uuid"
)

func newChangeID() string {
	return uuid.NewString()
}

func (s *Store) emit(ctx context.Context, event activity.Event) {
	if !s.emitter.Enabled() {
		return
	}
	if err := s.emitter.Emit(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("activity hook failed", slog.String("verb", event.Verb), slog.String("error", err.Error()))
	}
}

func (s *Store) emitChange(ctx context.Context, change *Change) {
	input := activity.ChangeInput{
		ActorID:    s.cfg.actor,
		ChangeID:   change.ID,
		Source:     string(change.Source),
		Path:       s.path,
		BackupID:   change.BackupID,
		Checksum:   change.Checksum,
		Deltas:     activityDeltas(change.Fields, s.validator.Schema()),
		OccurredAt: change.AppliedAt,
	}
	switch change.Source {
	case SourceRollback:
		input.Metadata = map[string]any{"restored_from": change.RestoredFrom}
		s.emit(ctx, activity.BuildRolledBackEvent(input))
	case SourceExternal:
		input.ActorID = ""
		s.emit(ctx, activity.BuildReloadedEvent(input))
	default:
		s.emit(ctx, activity.BuildUpdatedEvent(input))
	}
}

func (s *Store) reject(ctx context.Context, source Source, ref string, err error) {
	var verr *ValidationError
	fields := []string(nil)
	if errors.As(err, &verr) {
		fields = verr.Paths()
	}
	s.logger.Warn("configuration change rejected",
		slog.String("source", string(source)),
		slog.Any("fields", fields),
		slog.String("error", err.Error()),
	)
	input := activity.ChangeInput{
		ActorID: s.cfg.actor,
		Source:  string(source),
		Path:    s.path,
		Fields:  fields,
		Err:     err,
	}
	if ref != "" {
		input.Metadata = map[string]any{"backup_ref": ref}
	}
	if source == SourceExternal {
		s.emit(ctx, activity.BuildReloadFailedEvent(input))
		return
	}
	s.emit(ctx, activity.BuildRejectedEvent(input))
}

// activityDeltas masks secret values so they never reach audit sinks.
func activityDeltas(fields []FieldChange, schema Schema) []activity.Delta {
	out := make([]activity.Delta, 0, len(fields))
	for _, f := range fields {
		d := activity.Delta{Path: f.Path, Old: f.Old, New: f.New}
		section, key := splitPath(f.Path)
		if field, ok := schema.Lookup(section, firstSegment(key)); ok && field.Secret {
			d.Old, d.New = redact(f.Old), redact(f.New)
		}
		out = append(out, d)
	}
	return out
}
