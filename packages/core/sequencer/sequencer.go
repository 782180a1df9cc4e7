package sequencer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitseq/packages/core/registry"
	"github.com/abdul-hamid-achik/hitseq/packages/core/request"
	"github.com/abdul-hamid-achik/hitseq/packages/core/template"
	"github.com/abdul-hamid-achik/hitseq/packages/extract"
	"github.com/abdul-hamid-achik/hitseq/packages/http"
	"github.com/google/uuid"
)

const (
	// DefaultConcurrency is the default number of sequences run at once by RunParallel
	DefaultConcurrency = 5
)

// Transport delivers rendered request bytes.
type Transport interface {
	Send(ctx context.Context, raw []byte) (*http.Response, error)
}

// Renderer turns a template into wire bytes using the current variables.
type Renderer interface {
	Render(ctx context.Context, t template.Template, values template.Values) ([]byte, error)
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, result *RunResult) error
}

// Recorders fans a finished run out to several recorders. Every recorder is
// called; their errors are joined.
func Recorders(rs ...Recorder) Recorder {
	return multiRecorder(rs)
}

type multiRecorder []Recorder

func (m multiRecorder) Record(ctx context.Context, result *RunResult) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Event is emitted on every state transition.
type Event struct {
	RunID   string
	Index   int
	Request request.ID
	State   State
	Reason  Reason
}

// Observer receives transition events synchronously. Under RunParallel it is
// called from several goroutines.
type Observer func(Event)

type Sequencer struct {
	transport    Transport
	renderer     Renderer
	logger       *slog.Logger
	observer     Observer
	recorder     Recorder
	seed         map[string]any
	acceptStatus func(int) bool
}

type Option func(*Sequencer)

func New(transport Transport, renderer Renderer, opts ...Option) *Sequencer {
	s := &Sequencer{
		transport:    transport,
		renderer:     renderer,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		acceptStatus: Accept2xx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Sequencer) {
		s.observer = o
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Sequencer) {
		s.recorder = r
	}
}

// WithSeed sets values every run's registry starts with.
func WithSeed(vars map[string]any) Option {
	return func(s *Sequencer) {
		s.seed = make(map[string]any, len(vars))
		for k, v := range vars {
			s.seed[k] = v
		}
	}
}

// WithStatusPolicy decides which response codes count as a delivered
// request. A nil policy accepts every status.
func WithStatusPolicy(accept func(status int) bool) Option {
	return func(s *Sequencer) {
		if accept == nil {
			accept = func(int) bool { return true }
		}
		s.acceptStatus = accept
	}
}

// Accept2xx is the default status policy.
func Accept2xx(status int) bool {
	return status >= 200 && status < 300
}

// Outcome is the terminal report for one descriptor.
type Outcome struct {
	Index      int
	Request    request.ID
	State      State
	Reason     Reason
	Err        error
	Trace      []State
	Rendered   []byte
	Response   *http.Response
	Extracted  extract.Result
	Written    []string
	ParseError *extract.BodyParseError
	Duration   time.Duration
}

type RunResult struct {
	ID        string
	Outcomes  []*Outcome
	Variables map[string]any
	// Unresolved lists declared or written variables that never got a value.
	Unresolved []string
	Applied    int
	Failed     int
	Started    time.Time
	Duration   time.Duration
}

func (r *RunResult) Passed() bool {
	return r.Failed == 0
}

// Run executes coll strictly in declared order with a fresh registry. A failed
// descriptor never stops the run: later descriptors that need its variables
// fail when rendering. The collection is sealed before execution.
func (s *Sequencer) Run(ctx context.Context, coll *request.Collection) (*RunResult, error) {
	if coll == nil {
		return nil, fmt.Errorf("nil request collection")
	}
	coll.Seal()

	descriptors := coll.All()
	reg := registry.New()
	reg.Seed(s.seed)
	for _, v := range coll.Declared() {
		reg.Declare(v)
	}
	for _, d := range descriptors {
		for _, v := range d.Writes() {
			reg.Declare(v)
		}
	}

	result := &RunResult{
		ID:       uuid.NewString(),
		Outcomes: make([]*Outcome, 0, len(descriptors)),
		Started:  time.Now(),
	}
	logger := s.logger.With("run", result.ID)
	logger.Debug("run started", "requests", len(descriptors))

	for i, d := range descriptors {
		var o *Outcome
		if err := ctx.Err(); err != nil {
			o = s.cancelled(result.ID, i, d, err)
		} else {
			o = s.execute(ctx, logger, result.ID, i, d, reg)
		}

		result.Outcomes = append(result.Outcomes, o)
		if o.State == Applied {
			result.Applied++
		} else {
			result.Failed++
		}
	}

	result.Variables = reg.Snapshot()
	for _, name := range reg.Names() {
		if !reg.IsSet(name) {
			result.Unresolved = append(result.Unresolved, name)
		}
	}
	result.Duration = time.Since(result.Started)
	logger.Debug("run finished", "applied", result.Applied, "failed", result.Failed, "unresolved", result.Unresolved, "duration", result.Duration)

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, result); err != nil {
			logger.Warn("recording run failed", "error", err)
		}
	}

	return result, nil
}

// RunParallel runs n independent sequences of coll, each with its own
// registry, at most concurrency at a time. Results keep their start order.
func (s *Sequencer) RunParallel(ctx context.Context, coll *request.Collection, n, concurrency int) ([]*RunResult, error) {
	if coll == nil {
		return nil, fmt.Errorf("nil request collection")
	}
	if n <= 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	coll.Seal()

	results := make([]*RunResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			results[idx], errs[idx] = s.Run(ctx, coll)
		}(i)
	}

	wg.Wait()
	return results, errors.Join(errs...)
}

func (s *Sequencer) execute(ctx context.Context, logger *slog.Logger, runID string, index int, d *request.Descriptor, reg *registry.Registry) *Outcome {
	o := &Outcome{
		Index:   index,
		Request: d.ID(),
		State:   Pending,
		Trace:   []State{Pending},
	}
	log := logger.With("request", d.ID().Key(), "index", index)
	start := time.Now()
	defer func() { o.Duration = time.Since(start) }()

	s.transition(runID, log, o, Rendering)
	raw, err := s.renderer.Render(ctx, d.Template(), reg)
	if err != nil {
		s.fail(runID, log, o, renderReason(err), err)
		return o
	}
	o.Rendered = raw

	if err := ctx.Err(); err != nil {
		s.fail(runID, log, o, ReasonCanceled, err)
		return o
	}

	s.transition(runID, log, o, Sent)
	resp, err := s.transport.Send(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			s.fail(runID, log, o, ReasonCanceled, err)
		} else {
			s.fail(runID, log, o, ReasonTransport, err)
		}
		return o
	}
	o.Response = resp

	// A response that arrives after cancellation is never applied.
	if err := ctx.Err(); err != nil {
		s.fail(runID, log, o, ReasonCanceled, err)
		return o
	}

	if !s.acceptStatus(resp.StatusCode) {
		s.fail(runID, log, o, ReasonUnexpectedStatus, fmt.Errorf("unexpected status %d", resp.StatusCode))
		return o
	}

	s.transition(runID, log, o, Extracting)
	if d.HasPostSend() {
		extracted, parseErr, err := extract.Apply(d.Rules(), resp.Body, resp.Headers)
		o.ParseError = parseErr
		if parseErr != nil {
			log.Warn("response body could not be parsed", "content_type", resp.Header("Content-Type"), "error", parseErr)
		}
		if err != nil {
			s.fail(runID, log, o, ReasonNoDynamicObjects, err)
			return o
		}

		o.Extracted = extracted
		for name, value := range extracted {
			reg.Set(name, value)
			o.Written = append(o.Written, name)
		}
		sort.Strings(o.Written)
	}

	s.transition(runID, log, o, Applied)
	return o
}

func (s *Sequencer) cancelled(runID string, index int, d *request.Descriptor, err error) *Outcome {
	o := &Outcome{
		Index:   index,
		Request: d.ID(),
		State:   Failed,
		Reason:  ReasonCanceled,
		Err:     err,
		Trace:   []State{Pending, Failed},
	}
	s.notify(runID, o)
	return o
}

func (s *Sequencer) transition(runID string, log *slog.Logger, o *Outcome, next State) {
	o.State = next
	o.Trace = append(o.Trace, next)
	log.Debug("transition", "state", next.String())
	s.notify(runID, o)
}

func (s *Sequencer) fail(runID string, log *slog.Logger, o *Outcome, reason Reason, err error) {
	o.Reason = reason
	o.Err = err
	from := o.State
	o.State = Failed
	o.Trace = append(o.Trace, Failed)
	log.Info("request failed", "from", from.String(), "reason", string(reason), "error", err)
	s.notify(runID, o)
}

func (s *Sequencer) notify(runID string, o *Outcome) {
	if s.observer == nil {
		return
	}
	s.observer(Event{
		RunID:   runID,
		Index:   o.Index,
		Request: o.Request,
		State:   o.State,
		Reason:  o.Reason,
	})
}

func renderReason(err error) Reason {
	var missingDep *template.MissingDependencyError
	var missingPayload *template.MissingCustomPayloadError
	var authErr *template.AuthTokenError

	switch {
	case errors.As(err, &missingDep):
		return ReasonMissingDependency
	case errors.As(err, &missingPayload):
		return ReasonMissingCustomPayload
	case errors.As(err, &authErr):
		return ReasonAuthToken
	default:
		return ReasonRender
	}
}
