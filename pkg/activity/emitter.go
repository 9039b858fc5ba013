package activity

import (
	"context"
	"strings"
)

// DefaultChannel labels events emitted by the configuration store.
const DefaultChannel = "config"

// Emitter stamps events with a channel before fanning them out.
type Emitter struct {
	hooks   Hooks
	channel string
}

// NewEmitter returns an emitter for hooks. Nil hooks are skipped and an
// empty channel falls back to DefaultChannel.
func NewEmitter(channel string, hooks ...ActivityHook) *Emitter {
	e := &Emitter{channel: strings.TrimSpace(channel)}
	if e.channel == "" {
		e.channel = DefaultChannel
	}
	for _, hook := range hooks {
		if hook != nil {
			e.hooks = append(e.hooks, hook)
		}
	}
	return e
}

// Enabled reports whether any hook is attached.
func (e *Emitter) Enabled() bool {
	return e != nil && len(e.hooks) > 0
}

// Emit forwards event to the hooks. An event without a channel gets the
// emitter's.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	return e.hooks.Notify(ctx, event)
}
