package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	hotconfig "github.com/goliatone/go-hotconfig"
)

func newRootCommand() *cobra.Command {
	var flags rootFlags

	ctx := newCommandContext(&flags)

	rootCmd := &cobra.Command{
		Use:           "hotconfig",
		Short:         "Inspect, edit and serve a validated configuration file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", envOr("HOTCONFIG_CONFIG", "config.yaml"), "Configuration file path (HOTCONFIG_CONFIG)")
	pf.StringVar(&flags.schema, "schema", envOr("HOTCONFIG_SCHEMA", ""), "Schema file (yaml, toml or json); built-in demo schema when empty (HOTCONFIG_SCHEMA)")
	pf.StringVar(&flags.logLevel, "log-level", envOr("HOTCONFIG_LOG_LEVEL", "info"), "Log level: debug, info, warn, error (HOTCONFIG_LOG_LEVEL)")
	pf.StringVar(&flags.logFormat, "log-format", envOr("HOTCONFIG_LOG_FORMAT", "text"), "Log format: text or json (HOTCONFIG_LOG_FORMAT)")
	pf.StringVar(&flags.actor, "actor", envOr("HOTCONFIG_ACTOR", os.Getenv("USER")), "Actor recorded on change events (HOTCONFIG_ACTOR)")
	pf.BoolVar(&flags.allowMissing, "allow-missing", false, "Start from schema defaults when the configuration file does not exist")
	pf.DurationVar(&flags.lockTimeout, "lock-timeout", hotconfig.DefaultLockTimeout, "How long a write waits for another process holding the lock file")

	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newGetCommand(ctx))
	rootCmd.AddCommand(newSetCommand(ctx))
	rootCmd.AddCommand(newApplyCommand(ctx))
	rootCmd.AddCommand(newValidateCommand(ctx))
	rootCmd.AddCommand(newBackupsCommand(ctx))
	rootCmd.AddCommand(newRollbackCommand(ctx))
	rootCmd.AddCommand(newSchemaCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))

	return rootCmd
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
