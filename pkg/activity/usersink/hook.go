// Package usersink forwards configuration activity to a go-users ActivitySink.
package usersink

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-hotconfig/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook adapts activity events to a go-users ActivitySink.
type Hook struct {
	Sink usertypes.ActivitySink
	// SystemActor is recorded when an event carries no actor, e.g. reloads
	// triggered by an external edit of the file.
	SystemActor uuid.UUID
	// Tenant scopes every record when the store serves a single tenant.
	Tenant uuid.UUID
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}
	record, ok := h.Record(event)
	if !ok {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return h.Sink.Log(ctx, record)
}

// Record converts an event into the go-users record shape. It reports false
// when the event lacks a verb, object type or object id.
func (h Hook) Record(event activity.Event) (usertypes.ActivityRecord, bool) {
	normalized := event.Normalized()
	if !normalized.Complete() {
		return usertypes.ActivityRecord{}, false
	}

	record := usertypes.ActivityRecord{
		ActorID:    parseUUID(normalized.ActorID),
		TenantID:   h.Tenant,
		Verb:       normalized.Verb,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		Data:       cloneMap(normalized.Metadata),
		OccurredAt: normalized.OccurredAt,
	}
	if record.ActorID == uuid.Nil {
		record.ActorID = h.SystemActor
		if normalized.ActorID != "" {
			// non-uuid actors (usernames, "cli") are kept in the payload
			if record.Data == nil {
				record.Data = map[string]any{}
			}
			record.Data["actor"] = normalized.ActorID
		}
	}
	if record.Channel == "" {
		record.Channel = activity.DefaultChannel
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}
	return record, true
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
