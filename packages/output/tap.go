package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitseq/packages/core/sequencer"
)

// TAPFormatter writes one TAP 13 test point per descriptor outcome, across
// every run it has seen.
type TAPFormatter struct {
	writer   io.Writer
	outcomes []*sequencer.Outcome
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

func (f *TAPFormatter) FormatResult(result *sequencer.RunResult) {
	f.outcomes = append(f.outcomes, result.Outcomes...)
}

func (f *TAPFormatter) FormatError(err error) {}

func (f *TAPFormatter) FormatHeader(version string) {}

func (f *TAPFormatter) Flush(totalDuration time.Duration) error {
	var b strings.Builder
	fmt.Fprintf(&b, "TAP version 13\n1..%d\n", len(f.outcomes))

	for i, o := range f.outcomes {
		n := i + 1
		if o.State == sequencer.Applied {
			fmt.Fprintf(&b, "ok %d - %s\n", n, o.Request.Key())
			continue
		}

		fmt.Fprintf(&b, "not ok %d - %s\n", n, o.Request.Key())
		b.WriteString("  ---\n")
		fmt.Fprintf(&b, "  reason: %s\n", o.Reason)
		if msg := errString(o.Err); msg != "" {
			fmt.Fprintf(&b, "  message: %s\n", escapeYAML(msg))
		}
		if o.Response != nil {
			fmt.Fprintf(&b, "  status: %d\n", o.Response.StatusCode)
		}
		fmt.Fprintf(&b, "  trace: %s\n", escapeYAML(formatTrace(o.Trace)))
		b.WriteString("  ...\n")
	}
	fmt.Fprintf(&b, "# duration %s\n", totalDuration.Round(time.Millisecond))

	_, err := io.WriteString(f.writer, b.String())
	return err
}

// escapeYAML quotes s when it holds characters that would break a plain
// YAML scalar.
func escapeYAML(s string) string {
	if !strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		return s
	}
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return `"` + s + `"`
}
