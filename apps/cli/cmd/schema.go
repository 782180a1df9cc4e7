package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/hitseq/packages/grammar"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the grammar JSON schema",
	Long:  "Print the JSON schema grammar files are validated against, for editor integration.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), grammar.Schema())
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
