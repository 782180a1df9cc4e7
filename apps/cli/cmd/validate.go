package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/hitseq/packages/grammar"
	"github.com/spf13/cobra"
)

var strictFlag bool

var validateCmd = &cobra.Command{
	Use:   "validate <grammar>...",
	Short: "Validate grammar files without sending requests",
	Long: `Validate grammar files against the schema, compile them and report
ordering issues: requests that read a variable before any earlier request
writes it.

Examples:
  hitseq validate grammar.yaml
  hitseq validate grammar.yaml --strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().BoolVar(&strictFlag, "strict", false, "Treat ordering issues as errors")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	hasErrors := false
	for _, file := range args {
		_, coll, err := grammar.LoadCollection(file)
		if err != nil {
			var verr *grammar.ValidationError
			if errors.As(err, &verr) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s:\n", file)
				for _, e := range verr.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", e)
				}
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			}
			hasErrors = true
			continue
		}

		issues := coll.Lint()
		for _, issue := range issues {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning in %s: %s\n", file, issue)
		}
		if strictFlag && len(issues) > 0 {
			hasErrors = true
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d requests)\n", file, coll.Len())
	}

	if hasErrors {
		return withExitCode(ExitParseError, fmt.Errorf("validation failed"))
	}
	return nil
}
