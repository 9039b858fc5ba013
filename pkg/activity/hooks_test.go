package activity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEventNormalized(t *testing.T) {
	meta := map[string]any{"k": "v"}
	evt := Event{
		Verb:       " config.updated ",
		ActorID:    " admin ",
		ObjectType: " config ",
		ObjectID:   " 42 ",
		Metadata:   meta,
	}

	got := evt.Normalized()
	if got.Verb != VerbUpdated || got.ObjectType != ObjectTypeConfig || got.ObjectID != "42" || got.ActorID != "admin" {
		t.Fatalf("unexpected normalized event: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	if !got.Complete() {
		t.Fatalf("expected normalized event to be complete")
	}
	got.Metadata["k"] = "changed"
	if meta["k"] != "v" {
		t.Fatalf("metadata shared with original: %+v", meta)
	}
}

func TestHooksDropIncompleteEvents(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}
	for _, evt := range []Event{{}, {Verb: VerbUpdated}, {Verb: VerbUpdated, ObjectType: " ", ObjectID: "1"}} {
		if err := hooks.Notify(context.Background(), evt); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	}
	if n := len(capture.Events()); n != 0 {
		t.Fatalf("expected no events captured, got %d", n)
	}
}

func TestHooksNotifyEveryHook(t *testing.T) {
	capture := &CaptureHook{}
	boom := errors.New("sink down")
	hooks := Hooks{
		HookFunc(func(context.Context, Event) error { return boom }),
		nil,
		HookFunc(func(context.Context, Event) error { panic("bad hook") }),
		capture,
	}

	//nolint:staticcheck // nil context exercises the fallback.
	err := hooks.Notify(nil, Event{Verb: VerbUpdated, ObjectType: ObjectTypeConfig, ObjectID: "1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error in %v", err)
	}
	if !strings.Contains(err.Error(), "activity hook 0") || !strings.Contains(err.Error(), "activity hook 2: panic: bad hook") {
		t.Fatalf("expected indexed hook errors, got %v", err)
	}
	if n := len(capture.Events()); n != 1 {
		t.Fatalf("expected later hook still notified, got %d events", n)
	}
}

func TestEmitter(t *testing.T) {
	var nilEmitter *Emitter
	if nilEmitter.Enabled() || NewEmitter("", nil).Enabled() {
		t.Fatalf("expected emitter without hooks to be disabled")
	}
	if err := NewEmitter("").Emit(context.Background(), Event{Verb: VerbUpdated}); err != nil {
		t.Fatalf("disabled emit: %v", err)
	}

	capture := &CaptureHook{}
	emitter := NewEmitter("  ", capture)
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	events := []Event{
		{Verb: VerbUpdated, ObjectType: ObjectTypeConfig, ObjectID: "1", OccurredAt: at},
		{Verb: VerbReloaded, ObjectType: ObjectTypeConfig, ObjectID: "2", Channel: "ops"},
	}
	for _, evt := range events {
		if err := emitter.Emit(context.Background(), evt); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	got := capture.Events()
	if len(got) != 2 {
		t.Fatalf("expected two events, got %d", len(got))
	}
	if got[0].Channel != DefaultChannel || !got[0].OccurredAt.Equal(at) {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[1].Channel != "ops" {
		t.Fatalf("expected explicit channel kept, got %q", got[1].Channel)
	}
	if verbs := capture.Verbs(); verbs[0] != VerbUpdated || verbs[1] != VerbReloaded {
		t.Fatalf("unexpected verbs %v", verbs)
	}
}
