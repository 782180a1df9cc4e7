package cmd

import (
	"fmt"
	"sort"

	"github.com/abdul-hamid-achik/hitseq/packages/history"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show runs recorded with --history",
	Long: `List recorded runs, newest first, or show every request of one run.

Examples:
  hitseq history --history runs.db
  hitseq history 6f1c... --history runs.db`,
	Args: cobra.MaximumNArgs(1),
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyFlag, "history", "", "SQLite database written by run --history (env: HITSEQ_HISTORY)")
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Maximum number of runs to list, 0 for all")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.History == "" {
		return withExitCode(ExitUsageError, fmt.Errorf("no history database (use --history or set history in the config)"))
	}
	if noColorFlag || cfg.NoColor {
		color.NoColor = true
	}

	store, err := history.Open(cfg.History)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	w := cmd.OutOrStdout()

	if len(args) == 0 {
		runs, err := store.List(cmd.Context(), historyLimitFlag)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}
		for _, r := range runs {
			status := green("pass")
			if !r.Passed() {
				status = red("fail")
			}
			fmt.Fprintf(w, "%s  %s  %s  %d applied, %d failed  %dms\n",
				r.ID, r.Started.Format("2006-01-02 15:04:05"), status, r.Applied, r.Failed, r.Duration.Milliseconds())
		}
		return nil
	}

	run, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run %s (%s, %dms)\n\n", run.ID, run.Started.Format("2006-01-02 15:04:05"), run.Duration.Milliseconds())
	for _, o := range run.Outcomes {
		if o.State == "applied" {
			fmt.Fprintf(w, "  %s %s %s", green("✓"), o.Method, o.Endpoint)
		} else {
			fmt.Fprintf(w, "  %s %s %s [%s]", red("✗"), o.Method, o.Endpoint, o.Reason)
		}
		if o.Status != 0 {
			fmt.Fprintf(w, " %d", o.Status)
		}
		fmt.Fprintln(w)
		if o.Error != "" {
			fmt.Fprintf(w, "    %s %s\n", red("→"), o.Error)
		}
	}

	if len(run.Variables) > 0 {
		names := make([]string, 0, len(run.Variables))
		for name := range run.Variables {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(w, "\nVariables:\n")
		for _, name := range names {
			fmt.Fprintf(w, "  %s = %v\n", name, run.Variables[name])
		}
	}
	return nil
}
