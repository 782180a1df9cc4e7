package cmd

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitseq/packages/grammar"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <grammar>",
	Short: "List the requests of a grammar and their variables",
	Long: `List every request in execution order with the dynamic variables it
reads and the variables its response writes.

Examples:
  hitseq list grammar.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	f, coll, err := grammar.LoadCollection(args[0])
	if err != nil {
		return withExitCode(ExitParseError, err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s:\n", f.Path)
	for i, d := range coll.All() {
		fmt.Fprintf(w, "  %d. %s\n", i+1, d.ID().Key())
		if reads := d.Reads(); len(reads) > 0 {
			fmt.Fprintf(w, "     reads:  %s\n", strings.Join(reads, ", "))
		}
		if writes := d.Writes(); len(writes) > 0 {
			fmt.Fprintf(w, "     writes: %s\n", strings.Join(writes, ", "))
		}
		if paths := d.Template().CustomPayloads(); len(paths) > 0 {
			fmt.Fprintf(w, "     payloads: %s\n", strings.Join(paths, ", "))
		}
	}

	for _, issue := range coll.Lint() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", issue)
	}
	return nil
}
