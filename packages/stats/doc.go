// Package stats aggregates parallel sequence runs into per-request latency
// percentiles and failure counts, backed by HdrHistogram.
package stats
