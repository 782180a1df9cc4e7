// Package output provides formatters for sequence run results.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: Machine-readable JSON output
//   - JUnit: JUnit XML, one suite per run and one case per request
//   - TAP: Test Anything Protocol, one test point per request
//
// Formatters that accumulate results write them on Flush.
package output
