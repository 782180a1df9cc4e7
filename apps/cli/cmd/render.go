package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitseq/packages/core/registry"
	"github.com/abdul-hamid-achik/hitseq/packages/core/request"
	"github.com/abdul-hamid-achik/hitseq/packages/core/template"
	"github.com/abdul-hamid-achik/hitseq/packages/grammar"
	"github.com/abdul-hamid-achik/hitseq/packages/http"
	"github.com/spf13/cobra"
)

var renderRequestFlag string

var renderCmd = &cobra.Command{
	Use:   "render <grammar>",
	Short: "Print rendered requests without sending them",
	Long: `Render the requests of a grammar to their wire form. Nothing is sent,
so dynamic variables only resolve when seeded with --set or config variables;
requests whose variables are missing are reported and skipped.

Examples:
  hitseq render grammar.yaml -d dict.yaml
  hitseq render grammar.yaml --set _stores_post_id=42 --request "POST /stores/{storeId}/order"`,
	Args: cobra.ExactArgs(1),
	RunE: renderCommand,
}

func init() {
	addEngineFlags(renderCmd)
	renderCmd.Flags().StringVarP(&renderRequestFlag, "request", "r", "", "Render only the request with this \"METHOD endpoint\" key")
}

func renderCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	_, coll, err := grammar.LoadCollection(args[0])
	if err != nil {
		return withExitCode(ExitParseError, err)
	}

	renderer, err := buildRenderer(cfg)
	if err != nil {
		return err
	}

	reg := registry.New()
	reg.Seed(cfg.Variables)

	var selected []*request.Descriptor
	for _, d := range coll.All() {
		if renderRequestFlag == "" || strings.EqualFold(d.ID().Key(), renderRequestFlag) {
			selected = append(selected, d)
		}
	}
	if len(selected) == 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("no request matches %q", renderRequestFlag))
	}

	w := cmd.OutOrStdout()
	failed := 0
	for _, d := range selected {
		fmt.Fprintf(w, "### %s\n", d.ID().Key())

		raw, err := renderer.Render(cmd.Context(), d.Template(), reg)
		if err != nil {
			failed++
			var missing *template.MissingDependencyError
			if errors.As(err, &missing) {
				fmt.Fprintf(w, "# skipped: %v (seed it with --set %s=...)\n\n", err, missing.Variable)
			} else {
				fmt.Fprintf(w, "# skipped: %v\n\n", err)
			}
			continue
		}

		fmt.Fprintf(w, "%s\n", strings.ReplaceAll(string(raw), "\r\n", "\n"))

		if _, err := http.ParseWire(raw); err != nil {
			fmt.Fprintf(w, "# warning: not a valid HTTP request: %v\n", err)
		}
		fmt.Fprintln(w)
	}

	if failed > 0 {
		return withExitCode(ExitSequenceFailure, fmt.Errorf("%d of %d requests could not be rendered", failed, len(selected)))
	}
	return nil
}
