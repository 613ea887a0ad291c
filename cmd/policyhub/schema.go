package main

import (
	"github.com/spf13/cobra"

	"mercator-hq/policyhub/pkg/cli"
	"mercator-hq/policyhub/pkg/policy/seed"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema for seed files",
	Long: `Print the JSON schema seed files are validated against. Editors that
understand JSON schema can use it to check YAML seed files as they are written.

Examples:
  policyhub schema > policyhub-seed.schema.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := seed.Schema()
		if err != nil {
			return cli.NewCommandError("schema", err)
		}
		out := cmd.OutOrStdout()
		if _, err := out.Write(doc); err != nil {
			return err
		}
		_, err = out.Write([]byte("\n"))
		return err
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
