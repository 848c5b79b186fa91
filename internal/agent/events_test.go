package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Variants(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Event
	}{
		{EventStatus, `{"message":"Planning","status":"planning"}`, Status{Message: "Planning"}},
		{EventTextDelta, `{"content_index":0,"text":"Q1 "}`, TextDelta{ContentIndex: 0, Text: "Q1 "}},
		{EventThinkingDelta, `{"content_index":1,"text":"hm"}`, ThinkingDelta{ContentIndex: 1, Text: "hm"}},
		{EventThinking, `{"content_index":1,"text":"done"}`, Thinking{ContentIndex: 1, Text: "done"}},
		{EventChart, `{"content_index":4,"chart_spec":"{}"}`, Chart{ContentIndex: 4, ChartSpec: "{}"}},
		{EventError, `{"message":"bad","code":"399504"}`, Error{Message: "bad", Code: "399504"}},
		{EventError, `{"message":"bad","code":399504}`, Error{Message: "bad", Code: "399504"}},
		{EventError, `{"message":"bad"}`, Error{Message: "bad"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.name, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
			assert.Equal(t, tt.name, ev.Name())
		})
	}
}

func TestDecode_ToolPayloadKeepsWholeObject(t *testing.T) {
	data := `{"content_index":2,"type":"tool_use","tool_use":{"name":"analyst1"}}`

	ev, err := Decode(EventToolUse, data)
	require.NoError(t, err)

	use, ok := ev.(ToolUse)
	require.True(t, ok)
	assert.Equal(t, 2, use.ContentIndex)
	assert.JSONEq(t, data, string(use.Payload))

	ev, err = Decode(EventToolResult, `{"content_index":2,"content":[]}`)
	require.NoError(t, err)
	assert.IsType(t, ToolResult{}, ev)
}

func TestDecode_Table(t *testing.T) {
	data := `{"content_index":3,"result_set":{"data":[["Q1","1200000"]],"result_set_meta_data":{"row_type":[{"name":"QUARTER"},{"name":"TOTAL"}]}}}`

	ev, err := Decode(EventTable, data)
	require.NoError(t, err)

	table, ok := ev.(Table)
	require.True(t, ok)
	assert.Equal(t, 3, table.ContentIndex)
	assert.Equal(t, []string{"QUARTER", "TOTAL"}, table.ResultSet.Columns())
}

func TestDecode_Response(t *testing.T) {
	ev, err := Decode(EventResponse, `{"role":"assistant","content":[{"type":"text","text":"done"}]}`)
	require.NoError(t, err)

	resp, ok := ev.(Response)
	require.True(t, ok)
	assert.Equal(t, RoleAssistant, resp.Message.Role)
	assert.Equal(t, "done", resp.Message.Text())
}

func TestDecode_MessageDelta(t *testing.T) {
	data := `{"id":"msg_1","object":"message.delta","delta":{"content":[
		{"index":0,"type":"tool_use","tool_use":{"name":"analyst1"}},
		{"index":1,"type":"tool_results","tool_results":{"content":[{"type":"json","json":{"sql":"SELECT 1"}}]}},
		{"type":"text","text":"Q1 sales "}
	]}}`

	ev, err := Decode(EventMessageDelta, data)
	require.NoError(t, err)
	assert.Equal(t, EventMessageDelta, ev.Name())

	delta, ok := ev.(MessageDelta)
	require.True(t, ok)
	require.Len(t, delta.Items, 3)

	assert.Equal(t, 0, delta.Items[0].Index)
	assert.IsType(t, ToolUseContent{}, delta.Items[0].Item)

	assert.Equal(t, 1, delta.Items[1].Index)
	results, ok := delta.Items[1].Item.(UnknownContent)
	require.True(t, ok)
	assert.Equal(t, ContentTypeToolResults, results.Type)

	// No index: the item's position in the delta is used
	assert.Equal(t, 2, delta.Items[2].Index)
	assert.Equal(t, TextContent{Text: "Q1 sales "}, delta.Items[2].Item)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		desc  string
		name  string
		data  string
		isErr error
	}{
		{"malformed json", EventTextDelta, `{"content_index":0,"text":`, nil},
		{"missing index", EventTextDelta, `{"text":"x"}`, nil},
		{"missing text", EventTextDelta, `{"content_index":0}`, nil},
		{"null text", EventThinkingDelta, `{"content_index":0,"text":null}`, nil},
		{"missing chart spec", EventChart, `{"content_index":0}`, nil},
		{"missing result set", EventTable, `{"content_index":0}`, nil},
		{"tool use without index", EventToolUse, `{"tool_use":{}}`, nil},
		{"status without message", EventStatus, `{}`, nil},
		{"error without message", EventError, `{"code":1}`, nil},
		{"error with object code", EventError, `{"message":"x","code":{}}`, nil},
		{"response without role", EventResponse, `{"content":[]}`, nil},
		{"unknown event", "response.mystery", `{}`, ErrUnknownEvent},
		{"delta without delta", EventMessageDelta, `{"id":"msg_1"}`, nil},
		{"delta item without type", EventMessageDelta, `{"delta":{"content":[{"index":0,"text":"x"}]}}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			ev, err := Decode(tt.name, tt.data)
			require.Error(t, err)
			assert.Nil(t, ev)

			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr))
			assert.Equal(t, tt.name, decErr.Event)
			if tt.isErr != nil {
				assert.ErrorIs(t, err, tt.isErr)
			}
		})
	}
}

// countingVisitor records which method handled each event.
type countingVisitor struct {
	calls []string
}

func (v *countingVisitor) VisitStatus(Status) error { v.calls = append(v.calls, "status"); return nil }
func (v *countingVisitor) VisitTextDelta(TextDelta) error {
	v.calls = append(v.calls, "text.delta")
	return nil
}
func (v *countingVisitor) VisitThinkingDelta(ThinkingDelta) error {
	v.calls = append(v.calls, "thinking.delta")
	return nil
}
func (v *countingVisitor) VisitThinking(Thinking) error { v.calls = append(v.calls, "thinking"); return nil }
func (v *countingVisitor) VisitToolUse(ToolUse) error   { v.calls = append(v.calls, "tool_use"); return nil }
func (v *countingVisitor) VisitToolResult(ToolResult) error {
	v.calls = append(v.calls, "tool_result")
	return nil
}
func (v *countingVisitor) VisitChart(Chart) error       { v.calls = append(v.calls, "chart"); return nil }
func (v *countingVisitor) VisitTable(Table) error       { v.calls = append(v.calls, "table"); return nil }
func (v *countingVisitor) VisitError(Error) error       { v.calls = append(v.calls, "error"); return nil }
func (v *countingVisitor) VisitResponse(Response) error { v.calls = append(v.calls, "response"); return nil }
func (v *countingVisitor) VisitMessageDelta(MessageDelta) error {
	v.calls = append(v.calls, "message.delta")
	return nil
}

func TestEvent_AcceptDispatches(t *testing.T) {
	events := []Event{
		Status{}, TextDelta{}, ThinkingDelta{}, Thinking{}, ToolUse{},
		ToolResult{}, Chart{}, Table{}, Error{}, Response{}, MessageDelta{},
	}

	v := &countingVisitor{}
	for _, ev := range events {
		require.NoError(t, ev.Accept(v))
	}

	assert.Equal(t, []string{
		"status", "text.delta", "thinking.delta", "thinking", "tool_use",
		"tool_result", "chart", "table", "error", "response", "message.delta",
	}, v.calls)
}

func TestError_FormatCode(t *testing.T) {
	assert.Equal(t, "unknown", Error{}.FormatCode())
	assert.Equal(t, "399504", Error{Code: "399504"}.FormatCode())
}
