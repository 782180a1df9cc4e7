package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitseq/packages/core/sequencer"
)

type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite is one sequence run. Properties carry the run's final
// variable values.
type JUnitTestSuite struct {
	Name       string          `xml:"name,attr"`
	ID         string          `xml:"id,attr,omitempty"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// JUnitTestCase is one descriptor. A request the API answered but that was
// not applied is a failure; one that never got a response is an error.
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitProblem `xml:"failure,omitempty"`
	Error     *JUnitProblem `xml:"error,omitempty"`
}

type JUnitProblem struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitFormatter buffers runs and writes them as JUnit XML on Flush.
type JUnitFormatter struct {
	writer io.Writer
	doc    JUnitTestSuites
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
		doc:    JUnitTestSuites{Name: "hitseq"},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) FormatResult(result *sequencer.RunResult) {
	suite := newJUnitSuite(result)
	f.doc.Tests += suite.Tests
	f.doc.Failures += suite.Failures
	f.doc.Errors += suite.Errors
	f.doc.TestSuites = append(f.doc.TestSuites, suite)
}

func (f *JUnitFormatter) FormatError(err error) {}

func (f *JUnitFormatter) FormatHeader(version string) {}

func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	f.doc.Time = totalDuration.Seconds()
	f.doc.Timestamp = time.Now().Format(time.RFC3339)

	if _, err := io.WriteString(f.writer, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f.writer)
	enc.Indent("", "  ")
	if err := enc.Encode(f.doc); err != nil {
		return err
	}
	_, err := io.WriteString(f.writer, "\n")
	return err
}

func newJUnitSuite(result *sequencer.RunResult) JUnitTestSuite {
	suite := JUnitTestSuite{
		Name:      "sequence",
		ID:        result.ID,
		Tests:     len(result.Outcomes),
		Time:      result.Duration.Seconds(),
		Timestamp: result.Started.Format(time.RFC3339),
		TestCases: make([]JUnitTestCase, 0, len(result.Outcomes)),
	}

	names := make([]string, 0, len(result.Variables))
	for name := range result.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		suite.Properties = append(suite.Properties, JUnitProperty{
			Name:  name,
			Value: fmt.Sprint(result.Variables[name]),
		})
	}

	for _, o := range result.Outcomes {
		tc := JUnitTestCase{
			Name:      o.Request.Key(),
			ClassName: o.Request.Endpoint,
			Time:      o.Duration.Seconds(),
		}
		if o.State == sequencer.Applied {
			suite.TestCases = append(suite.TestCases, tc)
			continue
		}

		problem := &JUnitProblem{
			Message: errString(o.Err),
			Type:    string(o.Reason),
			Content: problemDetail(o),
		}
		if o.Response != nil {
			suite.Failures++
			tc.Failure = problem
		} else {
			suite.Errors++
			tc.Error = problem
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	return suite
}

func problemDetail(o *sequencer.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trace: %s", formatTrace(o.Trace))
	if o.Response != nil {
		fmt.Fprintf(&b, "\nstatus: %d", o.Response.StatusCode)
	}
	if o.ParseError != nil {
		fmt.Fprintf(&b, "\nparse: %v", o.ParseError)
	}
	return b.String()
}
