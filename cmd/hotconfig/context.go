package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	hotconfig "github.com/goliatone/go-hotconfig"
	"github.com/goliatone/go-hotconfig/pkg/activity"
)

type rootFlags struct {
	config       string
	schema       string
	logLevel     string
	logFormat    string
	actor        string
	allowMissing bool
	lockTimeout  time.Duration
}

type commandContext struct {
	flags *rootFlags

	logger *slog.Logger
	store  *hotconfig.Store
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) log(cmd *cobra.Command) (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	logger, err := newLogger(cmd.ErrOrStderr(), c.flags.logLevel, c.flags.logFormat)
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) loadSchema() (hotconfig.Schema, error) {
	path := strings.TrimSpace(c.flags.schema)
	if path == "" {
		return demoSchema(), nil
	}
	return loadSchemaFile(path)
}

// openStore opens the configuration once per invocation. Extra options are
// appended after the defaults derived from flags.
func (c *commandContext) openStore(cmd *cobra.Command, extra ...hotconfig.Option) (*hotconfig.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	logger, err := c.log(cmd)
	if err != nil {
		return nil, err
	}
	schema, err := c.loadSchema()
	if err != nil {
		return nil, err
	}
	opts := []hotconfig.Option{
		hotconfig.WithLogger(logger),
		hotconfig.WithEvaluatorLogger(hotconfig.SlogEvaluatorLogger(logger.With(slog.String("component", "rules")))),
		hotconfig.WithAllowMissing(c.flags.allowMissing),
		hotconfig.WithLockTimeout(c.flags.lockTimeout),
		hotconfig.WithActivityHooks(activityLogger(logger)),
	}
	if actor := strings.TrimSpace(c.flags.actor); actor != "" {
		opts = append(opts, hotconfig.WithActor(actor))
	}
	opts = append(opts, extra...)

	store, err := hotconfig.Open(commandCtx(cmd), c.flags.config, schema, opts...)
	if err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

func (c *commandContext) close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	if errors.Is(err, hotconfig.ErrClosed) {
		return nil
	}
	return err
}

// activityLogger records change events in the command log.
func activityLogger(logger *slog.Logger) activity.HookFunc {
	return func(_ context.Context, event activity.Event) error {
		attrs := []any{
			slog.String("verb", event.Verb),
			slog.String("actor", event.ActorID),
			slog.String("object", event.ObjectID),
		}
		if changes, ok := event.Metadata["changes"]; ok {
			attrs = append(attrs, slog.Any("changes", changes))
		}
		logger.Info("configuration activity", attrs...)
		return nil
	}
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func splitKey(arg string) (string, string, error) {
	section, key, ok := strings.Cut(strings.TrimSpace(arg), ".")
	if !ok || section == "" || key == "" {
		return "", "", fmt.Errorf("expected section.key, got %q", arg)
	}
	return section, key, nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
