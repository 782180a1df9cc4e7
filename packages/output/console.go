package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/hitseq/packages/core/sequencer"
	"github.com/abdul-hamid-achik/hitseq/packages/stats"
	"github.com/fatih/color"
)

// formatValue truncates long values for display
func formatValue(v any, maxLen int) string {
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

// WithVerbose prints state traces, rendered requests and extracted values.
func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatResult(result *sequencer.RunResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Run "+result.ID))

	for _, o := range result.Outcomes {
		name := o.Request.Key()

		if o.State != sequencer.Applied {
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), name, red(fmt.Sprintf("[%s]", o.Reason)))
			if o.Err != nil {
				fmt.Fprintf(f.writer, "    %s %s\n", red("→"), formatValue(o.Err, 200))
			}
		} else {
			fmt.Fprintf(f.writer, "  %s %s %s", green("✓"), name, cyan(fmt.Sprintf("(%dms)", o.Duration.Milliseconds())))
			if len(o.Written) > 0 {
				fmt.Fprintf(f.writer, " → %s", strings.Join(o.Written, ", "))
			}
			fmt.Fprintf(f.writer, "\n")
		}

		if o.ParseError != nil {
			fmt.Fprintf(f.writer, "    %s %s\n", yellow("!"), o.ParseError.Error())
		}

		if !f.verbose {
			continue
		}

		fmt.Fprintf(f.writer, "    Trace: %s\n", formatTrace(o.Trace))
		if o.Response != nil {
			fmt.Fprintf(f.writer, "    Status: %d\n", o.Response.StatusCode)
		}
		if len(o.Rendered) > 0 {
			fmt.Fprintf(f.writer, "    Request:\n")
			for _, line := range strings.Split(strings.TrimRight(string(o.Rendered), "\r\n"), "\n") {
				fmt.Fprintf(f.writer, "      %s\n", strings.TrimRight(line, "\r"))
			}
		}
		if len(o.Extracted) > 0 {
			fmt.Fprintf(f.writer, "    Extracted:\n")
			for _, name := range o.Written {
				fmt.Fprintf(f.writer, "      %s = %s\n", name, formatValue(o.Extracted[name], 100))
			}
		}
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Requests: ")
	if result.Applied > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d applied", result.Applied)))
	}
	if result.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", result.Failed)))
	}
	fmt.Fprintf(f.writer, "%d total\n", len(result.Outcomes))
	fmt.Fprintf(f.writer, "Time:     %dms\n", result.Duration.Milliseconds())
	fmt.Fprintf(f.writer, "\n")
}

// FormatStats prints the aggregate of a parallel run.
func (f *ConsoleFormatter) FormatStats(s *stats.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Sequences"))
	fmt.Fprintf(f.writer, "  Runs:     %d (%s, %s)\n", s.Runs,
		green(fmt.Sprintf("%d passed", s.PassedRuns)), red(fmt.Sprintf("%d failed", s.FailedRuns)))
	fmt.Fprintf(f.writer, "  Requests: %d (%.2f%% failed, %.1f req/s)\n", s.Requests, s.ErrorRate()*100, s.RPS)
	fmt.Fprintf(f.writer, "  Latency:  p50=%s p95=%s p99=%s max=%s\n\n", s.P50, s.P95, s.P99, s.Max)

	for _, r := range s.Breakdown {
		fmt.Fprintf(f.writer, "  %s\n", bold(r.Name))
		fmt.Fprintf(f.writer, "    %d/%d applied  p50=%s p95=%s p99=%s\n", r.Applied, r.Total, r.P50, r.P95, r.P99)
		for _, reason := range sortedReasons(r.Reasons) {
			fmt.Fprintf(f.writer, "    %s %s: %d\n", red("→"), reason, r.Reasons[reason])
		}
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("hitseq"), version)
}
