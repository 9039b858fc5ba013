// Package activity turns configuration changes into audit events and hands
// them to hooks.
package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is one audit entry. ActorID is free form: a UUID when the caller is
// a known user, otherwise a name such as "cli" or empty for external edits.
type Event struct {
	Verb       string
	ActorID    string
	ObjectType string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Normalized returns a copy with trimmed identifiers, a private metadata map
// and a timestamp.
func (e Event) Normalized() Event {
	out := Event{
		Verb:       strings.TrimSpace(e.Verb),
		ActorID:    strings.TrimSpace(e.ActorID),
		ObjectType: strings.TrimSpace(e.ObjectType),
		ObjectID:   strings.TrimSpace(e.ObjectID),
		Channel:    strings.TrimSpace(e.Channel),
		Metadata:   cloneMap(e.Metadata),
		OccurredAt: e.OccurredAt,
	}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = time.Now()
	}
	return out
}

// Complete reports whether the event names a verb and the object it acted on.
func (e Event) Complete() bool {
	return e.Verb != "" && e.ObjectType != "" && e.ObjectID != ""
}

// ActivityHook receives normalized events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

// Notify calls fn.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks is an ordered set of hooks notified together.
type Hooks []ActivityHook

// Notify normalizes event and hands it to every hook in order. Incomplete
// events are dropped. A failing or panicking hook does not stop the others;
// their errors are joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	event = event.Normalized()
	if len(h) == 0 || !event.Complete() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	for i, hook := range h {
		if hook == nil {
			continue
		}
		if err := notifyOne(ctx, hook, event); err != nil {
			errs = append(errs, fmt.Errorf("activity hook %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func notifyOne(ctx context.Context, hook ActivityHook, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook.Notify(ctx, event)
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
