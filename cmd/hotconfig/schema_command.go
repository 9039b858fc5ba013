package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-hotconfig/schema/openapi"
)

func newSchemaCommand(ctx *commandContext) *cobra.Command {
	var section string
	var title string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the OpenAPI description of the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := ctx.loadSchema()
			if err != nil {
				return err
			}
			if section != "" {
				doc := openapi.SectionSchema(schema, section)
				if doc == nil {
					return fmt.Errorf("section %q is not declared", section)
				}
				return writeJSON(cmd, doc)
			}
			doc, err := openapi.New(openapi.WithInfo(title, "")).Generate(schema)
			if err != nil {
				return err
			}
			return writeJSON(cmd, doc)
		},
	}

	cmd.Flags().StringVar(&section, "section", "", "Print only the JSON Schema of one section")
	cmd.Flags().StringVar(&title, "title", "", "Title of the OpenAPI document")
	return cmd
}
