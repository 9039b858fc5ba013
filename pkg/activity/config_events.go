package activity

import (
	"strings"
	"time"
)

const (
	VerbUpdated      = "config.updated"
	VerbRolledBack   = "config.rolled_back"
	VerbReloaded     = "config.reloaded"
	VerbRejected     = "config.rejected"
	VerbReloadFailed = "config.reload_failed"
	VerbHandlerError = "config.handler_failed"

	ObjectTypeConfig = "config"
)

// Delta mirrors a changed leaf value for event metadata.
type Delta struct {
	Path string
	Old  any
	New  any
}

// ChangeInput describes the fields shared by configuration change events.
type ChangeInput struct {
	ActorID    string
	ChangeID   string
	Source     string
	Path       string
	BackupID   string
	Checksum   string
	Deltas     []Delta
	Fields     []string
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildUpdatedEvent describes an accepted update.
func BuildUpdatedEvent(input ChangeInput) Event {
	return buildChangeEvent(VerbUpdated, input)
}

// BuildRolledBackEvent describes a restore from backup.
func BuildRolledBackEvent(input ChangeInput) Event {
	return buildChangeEvent(VerbRolledBack, input)
}

// BuildReloadedEvent describes an external edit adopted from disk.
func BuildReloadedEvent(input ChangeInput) Event {
	return buildChangeEvent(VerbReloaded, input)
}

// BuildRejectedEvent describes an update refused by validation.
func BuildRejectedEvent(input ChangeInput) Event {
	return buildChangeEvent(VerbRejected, input)
}

// BuildReloadFailedEvent describes an external edit that was ignored.
func BuildReloadFailedEvent(input ChangeInput) Event {
	return buildChangeEvent(VerbReloadFailed, input)
}

// BuildHandlerFailedEvent describes a reload handler that returned an error.
func BuildHandlerFailedEvent(input ChangeInput) Event {
	return buildChangeEvent(VerbHandlerError, input)
}

func buildChangeEvent(verb string, input ChangeInput) Event {
	metadata := cloneMap(input.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	if input.Source != "" {
		set("source", input.Source)
	}
	if input.Path != "" {
		set("path", input.Path)
	}
	if input.BackupID != "" {
		set("backup_id", input.BackupID)
	}
	if input.Checksum != "" {
		set("checksum", input.Checksum)
	}
	if len(input.Deltas) > 0 {
		changes := make([]map[string]any, 0, len(input.Deltas))
		for _, d := range input.Deltas {
			changes = append(changes, map[string]any{"path": d.Path, "old": d.Old, "new": d.New})
		}
		set("changes", changes)
	}
	if len(input.Fields) > 0 {
		set("fields", append([]string{}, input.Fields...))
	}
	if input.Err != nil {
		set("error", input.Err.Error())
	}

	objectID := strings.TrimSpace(input.ChangeID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.Path)
	}
	if objectID == "" {
		objectID = ObjectTypeConfig
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		ObjectType: ObjectTypeConfig,
		ObjectID:   objectID,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
