package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitseq/packages/core/sequencer"
	"github.com/abdul-hamid-achik/hitseq/packages/stats"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary  JSONSummary `json:"summary"`
	Runs     []JSONRun   `json:"runs"`
	Stats    *JSONStats  `json:"stats,omitempty"`
	Errors   []string    `json:"errors,omitempty"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

// JSONSummary counts runs and requests over the whole invocation
type JSONSummary struct {
	Runs     int `json:"runs"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Requests int `json:"requests"`
	Applied  int `json:"applied"`
}

// JSONRun represents one sequence execution
type JSONRun struct {
	ID         string         `json:"id"`
	Passed     bool           `json:"passed"`
	Duration   float64        `json:"duration"`
	Requests   []JSONRequest  `json:"requests"`
	Variables  map[string]any `json:"variables,omitempty"`
	Unresolved []string       `json:"unresolved,omitempty"`
}

// JSONRequest represents the outcome of one descriptor
type JSONRequest struct {
	Index      int               `json:"index"`
	Endpoint   string            `json:"endpoint"`
	Method     string            `json:"method"`
	State      string            `json:"state"`
	Reason     string            `json:"reason,omitempty"`
	Error      string            `json:"error,omitempty"`
	Trace      []string          `json:"trace"`
	Duration   float64           `json:"duration"`
	Rendered   string            `json:"rendered,omitempty"`
	Response   *JSONResponse     `json:"response,omitempty"`
	Extracted  map[string]string `json:"extracted,omitempty"`
	ParseError string            `json:"parseError,omitempty"`
}

// JSONResponse represents response details
type JSONResponse struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Duration   float64           `json:"duration"`
}

// JSONStats is the aggregate of a parallel run, latencies in milliseconds
type JSONStats struct {
	Runs      int                `json:"runs"`
	Requests  int64              `json:"requests"`
	ErrorRate float64            `json:"errorRate"`
	RPS       float64            `json:"rps"`
	P50       float64            `json:"p50"`
	P95       float64            `json:"p95"`
	P99       float64            `json:"p99"`
	Max       float64            `json:"max"`
	Breakdown []JSONRequestStats `json:"breakdown"`
}

type JSONRequestStats struct {
	Name    string           `json:"name"`
	Total   int64            `json:"total"`
	Applied int64            `json:"applied"`
	Failed  int64            `json:"failed"`
	Reasons map[string]int64 `json:"reasons,omitempty"`
	P50     float64          `json:"p50"`
	P95     float64          `json:"p95"`
	P99     float64          `json:"p99"`
}

// JSONFormatter accumulates runs and writes them as one document on Flush
type JSONFormatter struct {
	writer  io.Writer
	verbose bool
	runs    []JSONRun
	stats   *JSONStats
	errors  []string
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		runs:   make([]JSONRun, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

// JSONWithVerbose includes rendered request bytes and response headers.
func JSONWithVerbose(v bool) JSONOption {
	return func(f *JSONFormatter) {
		f.verbose = v
	}
}

func (f *JSONFormatter) FormatResult(result *sequencer.RunResult) {
	run := JSONRun{
		ID:         result.ID,
		Passed:     result.Passed(),
		Duration:   ms(result.Duration),
		Requests:   make([]JSONRequest, 0, len(result.Outcomes)),
		Variables:  result.Variables,
		Unresolved: result.Unresolved,
	}

	for _, o := range result.Outcomes {
		req := JSONRequest{
			Index:     o.Index,
			Endpoint:  o.Request.Endpoint,
			Method:    o.Request.Method,
			State:     o.State.String(),
			Reason:    string(o.Reason),
			Error:     errString(o.Err),
			Duration:  ms(o.Duration),
			Extracted: o.Extracted,
		}
		for _, s := range o.Trace {
			req.Trace = append(req.Trace, s.String())
		}
		if o.ParseError != nil {
			req.ParseError = o.ParseError.Error()
		}
		if f.verbose {
			req.Rendered = string(o.Rendered)
		}
		if o.Response != nil {
			req.Response = &JSONResponse{
				StatusCode: o.Response.StatusCode,
				Status:     o.Response.Status,
				Duration:   ms(o.Response.Duration),
			}
			if f.verbose {
				req.Response.Headers = o.Response.Headers
			}
		}
		run.Requests = append(run.Requests, req)
	}

	f.runs = append(f.runs, run)
}

// FormatStats attaches the aggregate of a parallel run.
func (f *JSONFormatter) FormatStats(s *stats.Summary) {
	js := &JSONStats{
		Runs:      s.Runs,
		Requests:  s.Requests,
		ErrorRate: s.ErrorRate(),
		RPS:       s.RPS,
		P50:       ms(s.P50),
		P95:       ms(s.P95),
		P99:       ms(s.P99),
		Max:       ms(s.Max),
		Breakdown: make([]JSONRequestStats, 0, len(s.Breakdown)),
	}
	for _, r := range s.Breakdown {
		rs := JSONRequestStats{
			Name:    r.Name,
			Total:   r.Total,
			Applied: r.Applied,
			Failed:  r.Failed,
			P50:     ms(r.P50),
			P95:     ms(r.P95),
			P99:     ms(r.P99),
		}
		if len(r.Reasons) > 0 {
			rs.Reasons = make(map[string]int64, len(r.Reasons))
			for k, v := range r.Reasons {
				rs.Reasons[string(k)] = v
			}
		}
		js.Breakdown = append(js.Breakdown, rs)
	}
	f.stats = js
}

func (f *JSONFormatter) FormatError(err error) {
	f.errors = append(f.errors, err.Error())
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	var summary JSONSummary
	for _, r := range f.runs {
		summary.Runs++
		if r.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		for _, req := range r.Requests {
			summary.Requests++
			if req.State == sequencer.Applied.String() {
				summary.Applied++
			}
		}
	}

	output := JSONOutput{
		Summary:  summary,
		Runs:     f.runs,
		Stats:    f.stats,
		Errors:   f.errors,
		Duration: ms(totalDuration),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
