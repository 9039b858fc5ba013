package main

import (
	"github.com/spf13/cobra"

	hotconfig "github.com/goliatone/go-hotconfig"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate the configuration file, or another document, against the schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				store, err := ctx.openStore(cmd)
				if err != nil {
					return describeWriteError(cmd, err)
				}
				printf(out, "Config path: %s\n", store.Path())
				printf(out, "Configuration valid\n")
				return nil
			}

			schema, err := ctx.loadSchema()
			if err != nil {
				return err
			}
			logger, err := ctx.log(cmd)
			if err != nil {
				return err
			}
			validator, err := hotconfig.NewValidator(schema, hotconfig.WithLogger(logger))
			if err != nil {
				return err
			}
			doc, err := readPartial(cmd, args[0])
			if err != nil {
				return err
			}
			if _, err := validator.Validate(hotconfig.Document(doc)); err != nil {
				return describeWriteError(cmd, err)
			}
			printf(out, "%s is valid\n", args[0])
			return nil
		},
	}
}
