// ABOUTME: Typed stream events decoded from the agent's SSE frames
// ABOUTME: Event is a closed sum type consumed through an exhaustive Visitor

package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// SSE event names emitted by the agent run endpoint.
const (
	EventStatus        = "response.status"
	EventTextDelta     = "response.text.delta"
	EventThinkingDelta = "response.thinking.delta"
	EventThinking      = "response.thinking"
	EventToolUse       = "response.tool_use"
	EventToolResult    = "response.tool_result"
	EventChart         = "response.chart"
	EventTable         = "response.table"
	EventError         = "error"
	EventResponse      = "response"

	// EventMessageDelta is emitted by the inline run endpoint instead of the
	// response.* events. It carries whole or partial content items.
	EventMessageDelta = "message.delta"
)

// ErrUnknownEvent is wrapped by DecodeError when the event name is not in the table.
var ErrUnknownEvent = errors.New("unknown event")

// DecodeError reports a single frame that could not be decoded.
// It is recoverable: the stream can continue with the next frame.
type DecodeError struct {
	Event string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %q event: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Event is one decoded stream event.
type Event interface {
	// Name returns the SSE event name the variant was decoded from.
	Name() string
	// Accept dispatches to the matching Visitor method.
	Accept(v Visitor) error
}

// Visitor handles every Event variant. Adding a variant adds a method here,
// so every consumer fails to compile until it handles the new case.
type Visitor interface {
	VisitStatus(Status) error
	VisitTextDelta(TextDelta) error
	VisitThinkingDelta(ThinkingDelta) error
	VisitThinking(Thinking) error
	VisitToolUse(ToolUse) error
	VisitToolResult(ToolResult) error
	VisitChart(Chart) error
	VisitTable(Table) error
	VisitError(Error) error
	VisitResponse(Response) error
	VisitMessageDelta(MessageDelta) error
}

// Status is a progress update for the waiting indicator.
type Status struct {
	Message string `json:"message"`
}

// TextDelta appends text to a content slot.
type TextDelta struct {
	ContentIndex int    `json:"content_index"`
	Text         string `json:"text"`
}

// ThinkingDelta appends reasoning text to a content slot.
type ThinkingDelta struct {
	ContentIndex int    `json:"content_index"`
	Text         string `json:"text"`
}

// Thinking is the final reasoning text for a content slot.
type Thinking struct {
	ContentIndex int    `json:"content_index"`
	Text         string `json:"text"`
}

// ToolUse carries a complete tool invocation.
type ToolUse struct {
	ContentIndex int
	Payload      json.RawMessage
}

// ToolResult carries a complete tool result.
type ToolResult struct {
	ContentIndex int
	Payload      json.RawMessage
}

// Chart carries a chart spec serialized as a JSON string.
type Chart struct {
	ContentIndex int    `json:"content_index"`
	ChartSpec    string `json:"chart_spec"`
}

// Table carries a result set.
type Table struct {
	ContentIndex int       `json:"content_index"`
	ResultSet    ResultSet `json:"result_set"`
}

// Error is a protocol-level failure reported by the agent.
type Error struct {
	Message string
	Code    string
}

// Response is the final, fully materialized assistant message.
type Response struct {
	Message Message
}

// MessageDelta is one increment of the inline endpoint's answer. Text items
// append to their index; other items replace it.
type MessageDelta struct {
	Items []DeltaItem
}

// DeltaItem is a content item tagged with its position in the answer.
type DeltaItem struct {
	Index int
	Item  ContentItem
}

func (Status) Name() string        { return EventStatus }
func (TextDelta) Name() string     { return EventTextDelta }
func (ThinkingDelta) Name() string { return EventThinkingDelta }
func (Thinking) Name() string      { return EventThinking }
func (ToolUse) Name() string       { return EventToolUse }
func (ToolResult) Name() string    { return EventToolResult }
func (Chart) Name() string         { return EventChart }
func (Table) Name() string         { return EventTable }
func (Error) Name() string         { return EventError }
func (Response) Name() string      { return EventResponse }
func (MessageDelta) Name() string  { return EventMessageDelta }

func (e Status) Accept(v Visitor) error        { return v.VisitStatus(e) }
func (e TextDelta) Accept(v Visitor) error     { return v.VisitTextDelta(e) }
func (e ThinkingDelta) Accept(v Visitor) error { return v.VisitThinkingDelta(e) }
func (e Thinking) Accept(v Visitor) error      { return v.VisitThinking(e) }
func (e ToolUse) Accept(v Visitor) error       { return v.VisitToolUse(e) }
func (e ToolResult) Accept(v Visitor) error    { return v.VisitToolResult(e) }
func (e Chart) Accept(v Visitor) error         { return v.VisitChart(e) }
func (e Table) Accept(v Visitor) error         { return v.VisitTable(e) }
func (e Error) Accept(v Visitor) error         { return v.VisitError(e) }
func (e Response) Accept(v Visitor) error      { return v.VisitResponse(e) }
func (e MessageDelta) Accept(v Visitor) error  { return v.VisitMessageDelta(e) }

// Decode turns one SSE frame into its typed event.
// Every failure is returned as a *DecodeError.
func Decode(name, data string) (Event, error) {
	ev, err := decode(name, []byte(data))
	if err != nil {
		return nil, &DecodeError{Event: name, Err: err}
	}
	return ev, nil
}

func decode(name string, data []byte) (Event, error) {
	switch name {
	case EventStatus:
		var ev Status
		fields, err := unmarshalFields(data, &ev)
		if err != nil {
			return nil, err
		}
		return ev, require(fields, "message")

	case EventTextDelta:
		var ev TextDelta
		fields, err := unmarshalFields(data, &ev)
		if err != nil {
			return nil, err
		}
		return ev, require(fields, "content_index", "text")

	case EventThinkingDelta:
		var ev ThinkingDelta
		fields, err := unmarshalFields(data, &ev)
		if err != nil {
			return nil, err
		}
		return ev, require(fields, "content_index", "text")

	case EventThinking:
		var ev Thinking
		fields, err := unmarshalFields(data, &ev)
		if err != nil {
			return nil, err
		}
		return ev, require(fields, "content_index", "text")

	case EventToolUse:
		index, payload, err := decodeIndexed(data)
		if err != nil {
			return nil, err
		}
		return ToolUse{ContentIndex: index, Payload: payload}, nil

	case EventToolResult:
		index, payload, err := decodeIndexed(data)
		if err != nil {
			return nil, err
		}
		return ToolResult{ContentIndex: index, Payload: payload}, nil

	case EventChart:
		var ev Chart
		fields, err := unmarshalFields(data, &ev)
		if err != nil {
			return nil, err
		}
		return ev, require(fields, "content_index", "chart_spec")

	case EventTable:
		var ev Table
		fields, err := unmarshalFields(data, &ev)
		if err != nil {
			return nil, err
		}
		return ev, require(fields, "content_index", "result_set")

	case EventError:
		return decodeError(data)

	case EventResponse:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return Response{Message: msg}, nil

	case EventMessageDelta:
		return decodeMessageDelta(data)

	default:
		return nil, ErrUnknownEvent
	}
}

// unmarshalFields decodes data into v and also returns the set of top-level keys present.
func unmarshalFields(data []byte, v any) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return fields, nil
}

// require reports the first missing or null field.
func require(fields map[string]json.RawMessage, names ...string) error {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok || bytes.Equal(raw, []byte("null")) {
			return fmt.Errorf("missing required field %q", name)
		}
	}
	return nil
}

// decodeIndexed keeps the whole payload object and extracts its content_index.
func decodeIndexed(data []byte) (int, json.RawMessage, error) {
	var head struct {
		ContentIndex *int `json:"content_index"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return 0, nil, err
	}
	if head.ContentIndex == nil {
		return 0, nil, fmt.Errorf("missing required field %q", "content_index")
	}
	return *head.ContentIndex, append(json.RawMessage(nil), data...), nil
}

// decodeMessageDelta reads {"delta":{"content":[...]}}. An item without an
// index takes its position within the delta.
func decodeMessageDelta(data []byte) (Event, error) {
	var wire struct {
		Delta *struct {
			Content []json.RawMessage `json:"content"`
		} `json:"delta"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Delta == nil {
		return nil, fmt.Errorf("missing required field %q", "delta")
	}

	ev := MessageDelta{Items: make([]DeltaItem, 0, len(wire.Delta.Content))}
	for i, raw := range wire.Delta.Content {
		var head struct {
			Index *int `json:"index"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("content[%d]: %w", i, err)
		}
		item, err := UnmarshalContentItem(raw)
		if err != nil {
			return nil, fmt.Errorf("content[%d]: %w", i, err)
		}
		index := i
		if head.Index != nil {
			index = *head.Index
		}
		ev.Items = append(ev.Items, DeltaItem{Index: index, Item: item})
	}
	return ev, nil
}

// decodeError accepts a string or numeric code.
func decodeError(data []byte) (Event, error) {
	var wire struct {
		Message *string         `json:"message"`
		Code    json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Message == nil {
		return nil, fmt.Errorf("missing required field %q", "message")
	}

	ev := Error{Message: *wire.Message}
	if len(wire.Code) > 0 && !bytes.Equal(wire.Code, []byte("null")) {
		var s string
		if err := json.Unmarshal(wire.Code, &s); err == nil {
			ev.Code = s
		} else {
			var n json.Number
			if err := json.Unmarshal(wire.Code, &n); err != nil {
				return nil, fmt.Errorf("code: %w", err)
			}
			ev.Code = n.String()
		}
	}
	return ev, nil
}

// FormatCode renders an error code for display, "unknown" when absent.
func (e Error) FormatCode() string {
	if e.Code == "" {
		return "unknown"
	}
	return e.Code
}
