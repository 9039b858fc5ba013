package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	hotconfig "github.com/goliatone/go-hotconfig"
	"github.com/goliatone/go-hotconfig/internal/codec"
)

func newSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <section.key> <value>",
		Short: "Validate, back up and write one value",
		Long:  "The value is parsed as a YAML scalar, so 60 is an integer, true a boolean and 5s a string. Pass null to remove the key.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, key, err := splitKey(args[0])
			if err != nil {
				return err
			}
			value, err := parseScalar(args[1])
			if err != nil {
				return err
			}
			store, err := ctx.openStore(cmd)
			if err != nil {
				return err
			}
			change, err := store.Update(commandCtx(cmd), section, map[string]any{key: value})
			if err != nil {
				return describeWriteError(cmd, err)
			}
			reportChange(cmd, change)
			return nil
		},
	}
}

func newApplyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file|->",
		Short: "Deep-merge a partial document into the configuration",
		Long:  "The partial document is read in the format given by its extension (yaml when reading stdin).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := readPartial(cmd, args[0])
			if err != nil {
				return err
			}
			store, err := ctx.openStore(cmd)
			if err != nil {
				return err
			}
			change, err := store.Apply(commandCtx(cmd), hotconfig.Document(partial))
			if err != nil {
				return describeWriteError(cmd, err)
			}
			reportChange(cmd, change)
			return nil
		},
	}
}

func newRollbackCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback [backup-id|latest]",
		Short: "Restore a backup; the current document is backed up first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := "latest"
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			store, err := ctx.openStore(cmd)
			if err != nil {
				return err
			}
			change, err := store.Rollback(commandCtx(cmd), id)
			if err != nil {
				return describeWriteError(cmd, err)
			}
			printf(cmd.OutOrStdout(), "Restored %s\n", change.RestoredFrom)
			reportChange(cmd, change)
			return nil
		},
	}
}

func parseScalar(raw string) (any, error) {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("parse value %q: %w", raw, err)
	}
	return value, nil
}

func readPartial(cmd *cobra.Command, path string) (map[string]map[string]any, error) {
	var (
		raw []byte
		err error
	)
	format := codec.FormatYAML
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		format = codec.Detect(path)
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	partial, err := codec.Decode(format, raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return partial, nil
}

func reportChange(cmd *cobra.Command, change *hotconfig.Change) {
	out := cmd.OutOrStdout()
	if change.Noop {
		printf(out, "No change\n")
		return
	}
	for _, path := range change.Paths() {
		printf(out, "  changed %s\n", path)
	}
	if change.BackupID != "" {
		printf(out, "Backup %s\n", change.BackupID)
	}
	for _, err := range change.HandlerErrors {
		printf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
}

// describeWriteError lists each rejected field on stderr before returning err.
func describeWriteError(cmd *cobra.Command, err error) error {
	var verr *hotconfig.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			printf(cmd.ErrOrStderr(), "  %s: %s\n", f.Path(), f.Message)
		}
		return fmt.Errorf("rejected: %d field(s) failed validation", len(verr.Fields))
	}
	return err
}
