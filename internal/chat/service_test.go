// ABOUTME: Tests for turn orchestration against a fake agent stream and an httptest server
// ABOUTME: Covers rollback on request failure, overlapping turns, SQL extraction, and metrics

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/auth"
	"github.com/2389/cortex-chat/internal/conversation"
	"github.com/2389/cortex-chat/internal/metrics"
	"github.com/2389/cortex-chat/internal/stream"
	"github.com/2389/cortex-chat/internal/warehouse"
)

// recorder is a stream.Renderer that keeps what it was told.
type recorder struct {
	mu       sync.Mutex
	writes   []stream.Content
	errors   []string
	warnings []string
	status   string
}

func (r *recorder) OpenRegion(index int, kind stream.RegionKind) stream.Handle {
	return stream.Handle{Index: index, Kind: kind}
}

func (r *recorder) Write(_ stream.Handle, c stream.Content) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, c)
}

func (r *recorder) Collapse(stream.Handle) {}

func (r *recorder) ShowStatus(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = msg
}

func (r *recorder) ClearStatus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = ""
}

func (r *recorder) ShowError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recorder) ShowWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
}

// fakeRunner returns a stream over a canned SSE body.
type fakeRunner struct {
	body      string
	requestID string
	err       error
	requests  []agent.RunRequest
	onRun     func()
}

func (f *fakeRunner) Run(_ context.Context, req agent.RunRequest) (*agent.Stream, error) {
	f.requests = append(f.requests, req)
	if f.onRun != nil {
		f.onRun()
	}
	if f.err != nil {
		return nil, f.err
	}
	return agent.NewStream(io.NopCloser(strings.NewReader(f.body)), f.requestID), nil
}

func sse(event, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

func responseBody(t *testing.T, msg agent.Message) string {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return sse(agent.EventResponse, string(b))
}

func newTestService(t *testing.T, runner Runner, m *metrics.Metrics) *Service {
	t.Helper()
	svc, err := NewService(ServiceOptions{
		Agent:   runner,
		Request: agent.RequestConfig{Tools: agent.ToolConfig{SemanticModelFile: "@stage/model.yaml"}},
		Metrics: m,
	})
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresRunner(t *testing.T) {
	_, err := NewService(ServiceOptions{})
	assert.Error(t, err)
}

func TestSubmit_Completed(t *testing.T) {
	reply := agent.Message{
		Role: agent.RoleAssistant,
		Content: []agent.ContentItem{
			agent.ToolResultContent{ToolResult: json.RawMessage(`{"content":[{"type":"json","json":{"sql":"SELECT 1;","text":"ok"}}]}`)},
			agent.TextContent{Text: "Sales were $1M"},
		},
	}
	runner := &fakeRunner{
		requestID: "req-42",
		body: sse(agent.EventStatus, `{"message":"Planning"}`) +
			sse(agent.EventTextDelta, `{"content_index":1,"text":"Sales were $1M"}`) +
			responseBody(t, reply) +
			"data: [DONE]\n\n",
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := newTestService(t, runner, m)
	conv := conversation.NewStore("c1", nil, nil)
	r := &recorder{}

	result, err := svc.Submit(context.Background(), conv, "  What were sales?  ", r)
	require.NoError(t, err)

	assert.True(t, result.Streamed)
	assert.Equal(t, "completed", result.Status())
	assert.Equal(t, "req-42", result.RequestID)
	assert.Equal(t, stream.OutcomeCompleted, result.Outcome)
	assert.Equal(t, "SELECT 1;", result.SQL)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "What were sales?", msgs[0].Text())
	assert.Equal(t, agent.RoleAssistant, msgs[1].Role)
	assert.False(t, conv.InTurn())
	assert.Empty(t, r.status)
	assert.Empty(t, r.errors)

	require.Len(t, runner.requests, 1)
	require.Len(t, runner.requests[0].Messages, 1)
	assert.Equal(t, "What were sales?", runner.requests[0].Messages[0].Text())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("completed")))
}

func TestSubmit_InlineEndpointStream(t *testing.T) {
	runner := &fakeRunner{
		requestID: "req-inline",
		body: sse(agent.EventMessageDelta, `{"delta":{"content":[{"index":0,"type":"tool_use","tool_use":{"name":"analyst1"}}]}}`) +
			sse(agent.EventMessageDelta, `{"delta":{"content":[{"index":1,"type":"tool_results","tool_results":{"content":[{"type":"json","json":{"text":"Revenue by region","sql":"SELECT region, SUM(amount) FROM sales GROUP BY region"}}]}}]}}`) +
			sse(agent.EventMessageDelta, `{"delta":{"content":[{"index":2,"type":"text","text":"AMER leads "}]}}`) +
			sse(agent.EventMessageDelta, `{"delta":{"content":[{"index":2,"type":"text","text":"with 52%."}]}}`) +
			"data: [DONE]\n\n",
	}
	svc := newTestService(t, runner, nil)
	conv := conversation.NewStore("c1", nil, nil)
	r := &recorder{}

	result, err := svc.Submit(context.Background(), conv, "Revenue by region?", r)
	require.NoError(t, err)

	assert.Equal(t, stream.OutcomeCompleted, result.Outcome)
	assert.Equal(t, "req-inline", result.RequestID)
	assert.Equal(t, "SELECT region, SUM(amount) FROM sales GROUP BY region", result.SQL)
	assert.Empty(t, r.warnings)
	assert.Empty(t, r.errors)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "AMER leads with 52%.", msgs[1].Text())
	assert.Contains(t, r.writes, stream.Content(stream.Markdown{Text: "AMER leads with 52%."}))
}

func TestSubmit_SendsFullHistory(t *testing.T) {
	runner := &fakeRunner{}
	svc := newTestService(t, runner, nil)
	conv := conversation.NewStore("c1", nil, nil)

	for i, q := range []string{"first", "second"} {
		runner.body = responseBody(t, agent.Message{
			Role:    agent.RoleAssistant,
			Content: []agent.ContentItem{agent.TextContent{Text: fmt.Sprintf("answer %d", i)}},
		})
		_, err := svc.Submit(context.Background(), conv, q, &recorder{})
		require.NoError(t, err)
	}

	require.Len(t, runner.requests, 2)
	second := runner.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, "first", second[0].Text())
	assert.Equal(t, "answer 0", second[1].Text())
	assert.Equal(t, "second", second[2].Text())
	assert.Equal(t, 4, conv.Len())
}

func TestSubmit_EmptyPrompt(t *testing.T) {
	runner := &fakeRunner{}
	svc := newTestService(t, runner, nil)
	conv := conversation.NewStore("c1", nil, nil)

	_, err := svc.Submit(context.Background(), conv, "   \n", &recorder{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, runner.requests)
	assert.Equal(t, 0, conv.Len())
}

func TestSubmit_RequestFailureLeavesHistoryUnchanged(t *testing.T) {
	runner := &fakeRunner{err: &agent.StatusError{StatusCode: http.StatusUnauthorized, Body: "bad token"}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := newTestService(t, runner, m)
	conv := conversation.NewStore("c1", nil, nil)
	conv.Append(context.Background(), agent.NewUserMessage("earlier"))
	r := &recorder{}

	result, err := svc.Submit(context.Background(), conv, "now", r)
	assert.False(t, result.Streamed)
	assert.Equal(t, "request_failed", result.Status())

	var statusErr *agent.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 1, conv.Len())
	assert.Equal(t, "earlier", conv.Messages()[0].Text())
	require.Len(t, r.errors, 1)
	assert.Equal(t, "Error: agent request failed with HTTP 401: bad token", r.errors[0])
	assert.False(t, conv.InTurn())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("request_failed")))

	// Retrying after the failure sends exactly one copy of the prompt.
	runner.err = nil
	runner.body = responseBody(t, agent.Message{
		Role:    agent.RoleAssistant,
		Content: []agent.ContentItem{agent.TextContent{Text: "done"}},
	})
	_, err = svc.Submit(context.Background(), conv, "now", r)
	require.NoError(t, err)
	assert.Len(t, runner.requests[1].Messages, 2)
}

func TestSubmit_ErrorEventRollsBack(t *testing.T) {
	runner := &fakeRunner{
		body: sse(agent.EventTextDelta, `{"content_index":0,"text":"partial"}`) +
			sse(agent.EventError, `{"message":"quota exceeded","code":"429"}`),
	}
	svc := newTestService(t, runner, nil)
	conv := conversation.NewStore("c1", nil, nil)
	r := &recorder{}

	result, err := svc.Submit(context.Background(), conv, "q", r)

	var perr *stream.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, stream.OutcomeFailed, result.Outcome)
	assert.Equal(t, 0, conv.Len())
	assert.Equal(t, []string{"Error: quota exceeded (code: 429)"}, r.errors)
}

func TestSubmit_EndedWithoutResponsePopsPrompt(t *testing.T) {
	runner := &fakeRunner{body: sse(agent.EventTextDelta, `{"content_index":0,"text":"partial"}`)}
	svc := newTestService(t, runner, nil)
	conv := conversation.NewStore("c1", nil, nil)
	r := &recorder{}

	result, err := svc.Submit(context.Background(), conv, "q", r)
	require.NoError(t, err)

	assert.Equal(t, stream.OutcomeEndedWithoutResponse, result.Outcome)
	assert.Equal(t, 0, conv.Len())
	assert.Len(t, r.warnings, 1)
	assert.NotEmpty(t, r.writes, "partial render stays in place")
}

func TestSubmit_OverlappingTurnRefused(t *testing.T) {
	conv := conversation.NewStore("c1", nil, nil)
	var innerErr error
	runner := &fakeRunner{}
	svc := newTestService(t, runner, nil)
	runner.onRun = func() {
		if innerErr == nil {
			_, innerErr = svc.Submit(context.Background(), conv, "second", &recorder{})
		}
	}
	runner.body = responseBody(t, agent.Message{
		Role:    agent.RoleAssistant,
		Content: []agent.ContentItem{agent.TextContent{Text: "ok"}},
	})

	_, err := svc.Submit(context.Background(), conv, "first", &recorder{})
	require.NoError(t, err)

	assert.ErrorIs(t, innerErr, conversation.ErrTurnInProgress)
	assert.Len(t, runner.requests, 1)
	assert.Equal(t, 2, conv.Len())
}

func TestStart_ReservesConversation(t *testing.T) {
	svc := newTestService(t, &fakeRunner{}, nil)
	conv := conversation.NewStore("c1", nil, nil)

	turn, err := svc.Start(conv, "  hello ")
	require.NoError(t, err)
	assert.Equal(t, "hello", turn.Prompt())
	assert.True(t, conv.InTurn())

	_, err = svc.Start(conv, "again")
	assert.ErrorIs(t, err, conversation.ErrTurnInProgress)

	turn.Cancel()
	assert.False(t, conv.InTurn())
	assert.Equal(t, 0, conv.Len())

	turn, err = svc.Start(conv, "again")
	require.NoError(t, err)
	turn.Cancel()
}

func TestSubmit_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pat-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set(agent.HeaderRequestID, "http-req")
		fmt.Fprint(w, sse(agent.EventTextDelta, `{"content_index":0,"text":"Hi"}`))
		fmt.Fprint(w, sse(agent.EventResponse, `{"role":"assistant","content":[{"type":"text","text":"Hi"}]}`))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	creds, err := auth.NewStaticToken("pat-token", auth.TokenTypePAT)
	require.NoError(t, err)
	client, err := agent.NewClient(agent.ClientOptions{
		BaseURL:     srv.URL,
		Credentials: creds,
	})
	require.NoError(t, err)

	svc := newTestService(t, client, nil)
	conv := conversation.NewStore("c1", nil, nil)

	result, err := svc.Submit(context.Background(), conv, "hello", &recorder{})
	require.NoError(t, err)
	assert.Equal(t, "http-req", result.RequestID)
	assert.Equal(t, 2, conv.Len())
}

type fakeExecutor struct {
	res *warehouse.Result
	err error
	got string
}

func (f *fakeExecutor) Query(_ context.Context, q string) (*warehouse.Result, error) {
	f.got = q
	return f.res, f.err
}

func TestRunSQL(t *testing.T) {
	svc := newTestService(t, &fakeRunner{}, nil)
	assert.False(t, svc.HasWarehouse())
	_, err := svc.RunSQL(context.Background(), "SELECT 1")
	assert.True(t, errors.Is(err, ErrWarehouseDisabled))

	exec := &fakeExecutor{res: &warehouse.Result{Columns: []string{"N"}, Rows: [][]any{{1}}}}
	svc, err = NewService(ServiceOptions{Agent: &fakeRunner{}, Warehouse: exec})
	require.NoError(t, err)

	res, err := svc.RunSQL(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", exec.got)
	assert.Equal(t, []string{"N"}, res.Columns)
}
