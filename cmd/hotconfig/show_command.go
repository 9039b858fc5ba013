package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	hotconfig "github.com/goliatone/go-hotconfig"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd)
			if err != nil {
				return err
			}
			table, err := useTable(cmd, format)
			if err != nil {
				return err
			}
			summary := store.Summary()
			if !table {
				return writeJSON(cmd, summary)
			}
			rows := make([][]string, 0)
			for _, section := range orderedSections(store.Schema(), summary) {
				values := summary[section]
				keys := make([]string, 0, len(values))
				for key := range values {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				for _, key := range keys {
					source := ""
					if layer, ok := store.Trace(section, key).Effective(); ok {
						source = string(layer.Layer)
					}
					rows = append(rows, []string{section + "." + key, formatValue(values[key]), source})
				}
			}
			printf(cmd.OutOrStdout(), "%s\n", renderTable([]string{"Key", "Value", "Source"}, rows, nil))
			printf(cmd.OutOrStdout(), "checksum %s\n", store.Checksum())
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatAuto, "Output format: auto, table or json")
	return cmd
}

func newGetCommand(ctx *commandContext) *cobra.Command {
	var reveal bool
	var trace bool

	cmd := &cobra.Command{
		Use:   "get <section.key>",
		Short: "Print one effective value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, key, err := splitKey(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.openStore(cmd)
			if err != nil {
				return err
			}
			if trace {
				t := store.Trace(section, key)
				if !reveal && isSecret(store.Schema(), section, key) {
					t = redactedTrace(t)
				}
				payload, err := t.ToJSON()
				if err != nil {
					return fmt.Errorf("encode trace: %w", err)
				}
				printf(cmd.OutOrStdout(), "%s\n", payload)
				return nil
			}
			value := store.Get(section, key)
			if !reveal && isSecret(store.Schema(), section, key) && value != nil && value != "" {
				value = hotconfig.RedactedValue
			}
			printf(cmd.OutOrStdout(), "%s\n", formatValue(value))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secret values in clear text")
	cmd.Flags().BoolVar(&trace, "trace", false, "Print which layer supplies the value")
	return cmd
}

func isSecret(schema hotconfig.Schema, section, key string) bool {
	field, ok := schema.Lookup(section, key)
	return ok && field.Secret
}

func redactedTrace(trace hotconfig.Trace) hotconfig.Trace {
	for i := range trace.Layers {
		if trace.Layers[i].Value != nil {
			trace.Layers[i].Value = hotconfig.RedactedValue
		}
	}
	return trace
}

// orderedSections lists schema sections first, then undeclared ones sorted.
func orderedSections(schema hotconfig.Schema, doc hotconfig.Document) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, section := range schema.Sections() {
		if _, ok := doc[section]; ok {
			out = append(out, section)
			seen[section] = struct{}{}
		}
	}
	var extra []string
	for section := range doc {
		if _, ok := seen[section]; !ok {
			extra = append(extra, section)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
