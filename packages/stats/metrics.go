package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/hitseq/packages/core/sequencer"
)

const (
	// Latencies are recorded in microseconds between 1us and 60s.
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
	sigFigs      = 3
)

// Metrics aggregates finished runs. It implements sequencer.Recorder and is
// safe for use by concurrent sequences.
type Metrics struct {
	mu sync.Mutex

	runs       int
	passedRuns int
	failedRuns int

	histogram *hdrhistogram.Histogram
	requests  map[string]*requestMetrics

	startTime time.Time
	endTime   time.Time
}

type requestMetrics struct {
	index     int
	name      string
	total     int64
	applied   int64
	failed    int64
	reasons   map[sequencer.Reason]int64
	histogram *hdrhistogram.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs),
		requests:  make(map[string]*requestMetrics),
	}
}

// Start marks the beginning of the measured window.
func (m *Metrics) Start() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}

// Stop marks the end of the measured window.
func (m *Metrics) Stop() {
	m.mu.Lock()
	m.endTime = time.Now()
	m.mu.Unlock()
}

// Record adds every outcome of result. Only outcomes that received a
// response contribute a latency sample.
func (m *Metrics) Record(_ context.Context, result *sequencer.RunResult) error {
	if result == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startTime.IsZero() {
		m.startTime = result.Started
	}
	m.runs++
	if result.Passed() {
		m.passedRuns++
	} else {
		m.failedRuns++
	}

	for _, o := range result.Outcomes {
		key := o.Request.Key()
		rm, ok := m.requests[key]
		if !ok {
			rm = &requestMetrics{
				index:     o.Index,
				name:      key,
				reasons:   make(map[sequencer.Reason]int64),
				histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs),
			}
			m.requests[key] = rm
		}

		rm.total++
		if o.State == sequencer.Applied {
			rm.applied++
		} else {
			rm.failed++
			rm.reasons[o.Reason]++
		}

		if o.Response != nil {
			us := clamp(o.Response.Duration.Microseconds())
			_ = m.histogram.RecordValue(us)
			_ = rm.histogram.RecordValue(us)
		}
	}
	return nil
}

func clamp(us int64) int64 {
	if us < minLatencyUs {
		return minLatencyUs
	}
	if us > maxLatencyUs {
		return maxLatencyUs
	}
	return us
}

// Summary is the final aggregate over all recorded runs.
type Summary struct {
	Duration   time.Duration
	Runs       int
	PassedRuns int
	FailedRuns int

	Requests int64
	Failures int64
	RPS      float64

	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration

	// Breakdown lists requests in collection order.
	Breakdown []*RequestSummary
}

// RequestSummary holds the aggregate for one request of the collection.
type RequestSummary struct {
	Name    string
	Total   int64
	Applied int64
	Failed  int64
	Reasons map[sequencer.Reason]int64
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
	Mean    time.Duration
	Max     time.Duration
}

// Summary returns the aggregate so far.
func (m *Metrics) Summary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}
	if m.startTime.IsZero() {
		duration = 0
	}

	s := &Summary{
		Duration:   duration,
		Runs:       m.runs,
		PassedRuns: m.passedRuns,
		FailedRuns: m.failedRuns,
		P50:        us(m.histogram.ValueAtQuantile(50)),
		P95:        us(m.histogram.ValueAtQuantile(95)),
		P99:        us(m.histogram.ValueAtQuantile(99)),
		Min:        us(m.histogram.Min()),
		Max:        us(m.histogram.Max()),
		Mean:       us(int64(m.histogram.Mean())),
	}

	for _, rm := range m.requests {
		s.Requests += rm.total
		s.Failures += rm.failed

		reasons := make(map[sequencer.Reason]int64, len(rm.reasons))
		for k, v := range rm.reasons {
			reasons[k] = v
		}
		s.Breakdown = append(s.Breakdown, &RequestSummary{
			Name:    rm.name,
			Total:   rm.total,
			Applied: rm.applied,
			Failed:  rm.failed,
			Reasons: reasons,
			P50:     us(rm.histogram.ValueAtQuantile(50)),
			P95:     us(rm.histogram.ValueAtQuantile(95)),
			P99:     us(rm.histogram.ValueAtQuantile(99)),
			Mean:    us(int64(rm.histogram.Mean())),
			Max:     us(rm.histogram.Max()),
		})
	}
	sort.Slice(s.Breakdown, func(i, j int) bool {
		return m.requests[s.Breakdown[i].Name].index < m.requests[s.Breakdown[j].Name].index
	})

	if duration.Seconds() > 0 {
		s.RPS = float64(s.Requests) / duration.Seconds()
	}
	return s
}

// ErrorRate is the share of requests that did not reach Applied.
func (s *Summary) ErrorRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Requests)
}

func us(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
