package sequencer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/abdul-hamid-achik/hitseq/packages/core/request"
	"github.com/abdul-hamid-achik/hitseq/packages/core/template"
	"github.com/abdul-hamid-achik/hitseq/packages/extract"
	hsclient "github.com/abdul-hamid-achik/hitseq/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport answers each request with the response or error returned
// by respond, keyed by the request line.
type scriptedTransport struct {
	mu      sync.Mutex
	sent    []string
	respond func(ctx context.Context, requestLine string, raw []byte) (*hsclient.Response, error)
}

func (s *scriptedTransport) Send(ctx context.Context, raw []byte) (*hsclient.Response, error) {
	line, _, _ := strings.Cut(string(raw), "\r\n")
	s.mu.Lock()
	s.sent = append(s.sent, string(raw))
	s.mu.Unlock()
	return s.respond(ctx, line, raw)
}

func jsonResponse(status int, body string) *hsclient.Response {
	return &hsclient.Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
	}
}

func createStore(t *testing.T) *request.Descriptor {
	t.Helper()
	d, err := request.NewDescriptor(
		request.ID{Endpoint: "/stores", Method: "POST"},
		[]template.Fragment{
			template.Static{Text: "POST "},
			template.BasePath{Path: "/api"},
			template.Static{Text: "/stores HTTP/1.1\r\n"},
			template.Static{Text: "Host: localhost:8888\r\n"},
			template.AuthToken{Tag: "authentication_token_tag"},
			template.Static{Text: "\r\n"},
		},
		request.WithPostSend(extract.Rule{Variable: "id", Path: "/id"}),
	)
	require.NoError(t, err)
	return d
}

func orderForStore(t *testing.T) *request.Descriptor {
	t.Helper()
	d, err := request.NewDescriptor(
		request.ID{Endpoint: "/stores/{storeId}/order", Method: "POST"},
		[]template.Fragment{
			template.Static{Text: "POST "},
			template.BasePath{Path: "/api"},
			template.Static{Text: "/stores/"},
			template.DynamicRef{Variable: "id", Quoted: false},
			template.Static{Text: "/order HTTP/1.1\r\n"},
			template.Static{Text: "Host: localhost:8888\r\n"},
			template.Static{Text: "\r\n"},
			template.Static{Text: `{"rush":`},
			template.Fuzzable{FuzzKind: template.FuzzBool, Seed: "true"},
			template.Static{Text: "}"},
		},
	)
	require.NoError(t, err)
	return d
}

func simpleGet(t *testing.T, endpoint string, opts ...request.Option) *request.Descriptor {
	t.Helper()
	d, err := request.NewDescriptor(
		request.ID{Endpoint: endpoint, Method: "GET"},
		[]template.Fragment{template.Static{Text: "GET " + endpoint + " HTTP/1.1\r\nHost: localhost\r\n\r\n"}},
		opts...,
	)
	require.NoError(t, err)
	return d
}

func collection(t *testing.T, descriptors ...*request.Descriptor) *request.Collection {
	t.Helper()
	c := request.NewCollection()
	for _, d := range descriptors {
		require.NoError(t, c.Add(d))
	}
	return c
}

func TestRun_PropagatesDynamicValue(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			if line == "POST /api/stores HTTP/1.1" {
				return jsonResponse(201, `{"id": "abc123"}`), nil
			}
			return jsonResponse(200, `{}`), nil
		},
	}

	s := New(transport, template.NewRenderer())
	result, err := s.Run(context.Background(), collection(t, createStore(t), orderForStore(t)))
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, Applied, result.Outcomes[0].State)
	assert.Equal(t, []string{"id"}, result.Outcomes[0].Written)
	assert.Equal(t, Applied, result.Outcomes[1].State)
	assert.Equal(t, 2, result.Applied)
	assert.True(t, result.Passed())
	assert.Equal(t, "abc123", result.Variables["id"])

	require.Len(t, transport.sent, 2)
	assert.True(t, strings.HasPrefix(transport.sent[1], "POST /api/stores/abc123/order HTTP/1.1\r\n"))
	assert.True(t, strings.HasSuffix(transport.sent[1], "\r\n\r\n"+`{"rush":true}`))
	assert.Equal(t, []State{Pending, Rendering, Sent, Extracting, Applied}, result.Outcomes[1].Trace)
}

func TestRun_TransportFailureBreaksDependents(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			if strings.HasPrefix(line, "POST /api/stores ") {
				return nil, &hsclient.TransportError{Op: "post", Err: errors.New("connection refused")}
			}
			return jsonResponse(200, `{"ok": true}`), nil
		},
	}

	s := New(transport, template.NewRenderer())
	result, err := s.Run(context.Background(), collection(t,
		createStore(t),
		orderForStore(t),
		simpleGet(t, "/health"),
	))
	require.NoError(t, err)

	create, order, health := result.Outcomes[0], result.Outcomes[1], result.Outcomes[2]

	assert.Equal(t, Failed, create.State)
	assert.Equal(t, ReasonTransport, create.Reason)
	assert.Equal(t, []State{Pending, Rendering, Sent, Failed}, create.Trace)

	assert.Equal(t, Failed, order.State)
	assert.Equal(t, ReasonMissingDependency, order.Reason)
	var missing *template.MissingDependencyError
	require.True(t, errors.As(order.Err, &missing))
	assert.Equal(t, "id", missing.Variable)
	assert.Nil(t, order.Rendered)

	assert.Equal(t, Applied, health.State)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 2, result.Failed)
	assert.NotContains(t, result.Variables, "id")

	// The dependent request was never sent.
	assert.Len(t, transport.sent, 2)
}

func TestRun_PartialExtraction(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			return jsonResponse(200, `{"id": 42}`), nil
		},
	}
	d := simpleGet(t, "/stores/1", request.WithPostSend(
		extract.Rule{Variable: "id", Path: "/id"},
		extract.Rule{Variable: "name", Path: "/name"},
	))

	result, err := New(transport, template.NewRenderer()).Run(context.Background(), collection(t, d))
	require.NoError(t, err)

	o := result.Outcomes[0]
	assert.Equal(t, Applied, o.State)
	assert.Equal(t, extract.Result{"id": "42"}, o.Extracted)
	assert.Equal(t, []string{"id"}, o.Written)
	assert.NotContains(t, result.Variables, "name")
}

func TestRun_NoDynamicObjectsExtracted(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			return &hsclient.Response{StatusCode: 201}, nil
		},
	}

	result, err := New(transport, template.NewRenderer()).Run(context.Background(), collection(t, createStore(t)))
	require.NoError(t, err)

	o := result.Outcomes[0]
	assert.Equal(t, Failed, o.State)
	assert.Equal(t, ReasonNoDynamicObjects, o.Reason)
	assert.ErrorIs(t, o.Err, extract.ErrNoDynamicObjects)
	assert.Equal(t, []State{Pending, Rendering, Sent, Extracting, Failed}, o.Trace)
}

func TestRun_BodyParseErrorIsRecoverable(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			return &hsclient.Response{
				StatusCode: 201,
				Headers:    map[string]string{"Location": "/stores/77"},
				Body:       []byte("created"),
			}, nil
		},
	}
	d := simpleGet(t, "/stores", request.WithPostSend(
		extract.Rule{Variable: "id", Path: "/id"},
		extract.Rule{Variable: "location", Path: "Location", Source: extract.SourceHeader},
	))

	result, err := New(transport, template.NewRenderer()).Run(context.Background(), collection(t, d))
	require.NoError(t, err)

	o := result.Outcomes[0]
	assert.Equal(t, Applied, o.State)
	assert.NotNil(t, o.ParseError)
	assert.Equal(t, "/stores/77", result.Variables["location"])
}

func TestRun_NoLookAhead(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			return jsonResponse(201, `{"id": "abc123"}`), nil
		},
	}

	// The reader is declared before the writer: order is never changed.
	result, err := New(transport, template.NewRenderer()).Run(context.Background(), collection(t, orderForStore(t), createStore(t)))
	require.NoError(t, err)

	assert.Equal(t, Failed, result.Outcomes[0].State)
	assert.Equal(t, ReasonMissingDependency, result.Outcomes[0].Reason)
	assert.Equal(t, Applied, result.Outcomes[1].State)
	assert.Len(t, transport.sent, 1)
}

func TestRun_UnexpectedStatus(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			return jsonResponse(500, `{"id": "abc123"}`), nil
		},
	}

	result, err := New(transport, template.NewRenderer()).Run(context.Background(), collection(t, createStore(t)))
	require.NoError(t, err)
	assert.Equal(t, ReasonUnexpectedStatus, result.Outcomes[0].Reason)
	assert.NotContains(t, result.Variables, "id")

	lenient := New(transport, template.NewRenderer(), WithStatusPolicy(nil))
	result, err = lenient.Run(context.Background(), collection(t, createStore(t)))
	require.NoError(t, err)
	assert.Equal(t, Applied, result.Outcomes[0].State)
}

func TestRun_MissingCustomPayload(t *testing.T) {
	d, err := request.NewDescriptor(
		request.ID{Endpoint: "/stores", Method: "PUT"},
		[]template.Fragment{
			template.Static{Text: "PUT /stores HTTP/1.1\r\nHost: x\r\n\r\n"},
			template.CustomPayload{Path: "/storeProperties/tags"},
		},
	)
	require.NoError(t, err)
	transport := &scriptedTransport{}

	result, err := New(transport, template.NewRenderer()).Run(context.Background(), collection(t, d))
	require.NoError(t, err)
	assert.Equal(t, ReasonMissingCustomPayload, result.Outcomes[0].Reason)
	assert.Empty(t, transport.sent)
}

func TestRun_CancelDuringSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			// The response arrives, but the run was cancelled while in flight.
			cancel()
			return jsonResponse(201, `{"id": "abc123"}`), nil
		},
	}

	result, err := New(transport, template.NewRenderer()).Run(ctx, collection(t,
		createStore(t),
		orderForStore(t),
		simpleGet(t, "/health"),
	))
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 3)
	for _, o := range result.Outcomes {
		assert.Equal(t, Failed, o.State)
		assert.Equal(t, ReasonCanceled, o.Reason)
	}
	assert.Empty(t, result.Variables)
	assert.Len(t, transport.sent, 1)
}

func TestRun_SeedAndObserver(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			return jsonResponse(200, `{}`), nil
		},
	}

	var events []Event
	s := New(transport, template.NewRenderer(),
		WithSeed(map[string]any{"id": "seeded"}),
		WithObserver(func(e Event) { events = append(events, e) }),
	)

	result, err := s.Run(context.Background(), collection(t, orderForStore(t)))
	require.NoError(t, err)

	assert.Equal(t, Applied, result.Outcomes[0].State)
	assert.Contains(t, transport.sent[0], "/stores/seeded/order")
	require.Len(t, events, 4)
	assert.Equal(t, Rendering, events[0].State)
	assert.Equal(t, Applied, events[3].State)
	assert.Equal(t, result.ID, events[0].RunID)
}

type memoryRecorder struct {
	runs []*RunResult
}

func (m *memoryRecorder) Record(ctx context.Context, result *RunResult) error {
	m.runs = append(m.runs, result)
	return nil
}

func TestRun_Recorder(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			return jsonResponse(200, `{}`), nil
		},
	}
	rec := &memoryRecorder{}

	result, err := New(transport, template.NewRenderer(), WithRecorder(rec)).Run(context.Background(), collection(t, simpleGet(t, "/health")))
	require.NoError(t, err)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, result.ID, rec.runs[0].ID)
}

type failingRecorder struct{}

func (failingRecorder) Record(ctx context.Context, result *RunResult) error {
	return errors.New("disk full")
}

func TestRecorders(t *testing.T) {
	first := &memoryRecorder{}
	second := &memoryRecorder{}
	rec := Recorders(first, nil, failingRecorder{}, second)

	err := rec.Record(context.Background(), &RunResult{ID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.Len(t, first.runs, 1)
	require.Len(t, second.runs, 1)
	assert.Equal(t, "run-1", second.runs[0].ID)
}

func TestRun_NilCollection(t *testing.T) {
	_, err := New(&scriptedTransport{}, template.NewRenderer()).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRun_SealsCollection(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			return jsonResponse(200, `{}`), nil
		},
	}
	c := collection(t, simpleGet(t, "/health"))

	_, err := New(transport, template.NewRenderer()).Run(context.Background(), c)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Add(simpleGet(t, "/other")), request.ErrSealed)
}

func TestRunParallel_IsolatedRegistries(t *testing.T) {
	var counter atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/stores" {
			n := counter.Add(1)
			w.WriteHeader(http.StatusCreated)
			_, _ = fmt.Fprintf(w, `{"id": "store-%d"}`, n)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := hsclient.NewClient(hsclient.WithTarget(server.URL))
	s := New(client, template.NewRenderer())

	results, err := s.RunParallel(context.Background(), collection(t, createStore(t), orderForStore(t)), 6, 3)
	require.NoError(t, err)
	require.Len(t, results, 6)

	seen := make(map[any]bool)
	for _, r := range results {
		require.True(t, r.Passed())
		id := r.Variables["id"]
		assert.False(t, seen[id], "registry shared between runs: %v", id)
		seen[id] = true
		assert.Contains(t, string(r.Outcomes[1].Rendered), fmt.Sprintf("/stores/%s/order", id))
	}
	assert.Equal(t, int64(6), counter.Load())
}

func TestRunParallel_Empty(t *testing.T) {
	results, err := New(&scriptedTransport{}, template.NewRenderer()).RunParallel(context.Background(), request.NewCollection(), 0, 1)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "applied", Applied.String())
	assert.True(t, Failed.Terminal())
	assert.False(t, Sent.Terminal())
}

func TestRun_ReportsUnresolvedVariables(t *testing.T) {
	transport := &scriptedTransport{
		respond: func(ctx context.Context, line string, raw []byte) (*hsclient.Response, error) {
			return jsonResponse(500, `{}`), nil
		},
	}

	coll := collection(t, createStore(t), simpleGet(t, "/health"))
	require.NoError(t, coll.Declare("region", "tenant"))

	s := New(transport, template.NewRenderer(), WithSeed(map[string]any{"tenant": "acme"}))
	result, err := s.Run(context.Background(), coll)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "region"}, result.Unresolved)
	assert.Equal(t, map[string]any{"tenant": "acme"}, result.Variables)
}
