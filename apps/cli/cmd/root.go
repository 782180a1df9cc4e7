package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/abdul-hamid-achik/hitseq/packages/core/config"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag  string
	envFileFlag string
	verboseFlag int // 0=warnings, 1=-v info, 2=-vv debug
	noColorFlag bool

	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

var rootCmd = &cobra.Command{
	Use:   "hitseq",
	Short: "Run dependent REST request sequences.",
	Long: `hitseq executes an ordered collection of HTTP request templates against
a live API. Values returned by earlier responses, such as a created resource's
id, are extracted and spliced into later requests.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the CLI and exits with the code attached to the failure.
func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) && ee.err == nil {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", getEnvString("HITSEQ_CONFIG", ""), "Path to config file (env: HITSEQ_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", getEnvString("HITSEQ_ENV_FILE", ""), "Path to .env file exported before loading config (env: HITSEQ_ENV_FILE)")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v, -vv for debug logs)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", getEnvBool("HITSEQ_NO_COLOR", false), "Disable colored output (env: HITSEQ_NO_COLOR)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	logger = newLogger(cmd.ErrOrStderr(), verboseFlag)

	if err := config.LoadEnvFile(envFileFlag); err != nil {
		return withExitCode(ExitConfigError, err)
	}
	return nil
}

func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
