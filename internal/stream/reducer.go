// ABOUTME: Stream Reducer that applies agent events to render regions and history
// ABOUTME: Buffers are keyed by content index; Error rolls back, Response appends

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/conversation"
	"github.com/2389/cortex-chat/internal/metrics"
)

// WaitingMessage is shown until the agent reports its own status.
const WaitingMessage = "Waiting for response..."

// Source yields events in arrival order. agent.Stream implements it.
type Source interface {
	Next() (agent.Event, error)
}

// Outcome is how a stream ended.
type Outcome int

const (
	// OutcomeCompleted means a Response was received and appended, or the
	// stream ended after message.delta content that was assembled and appended.
	OutcomeCompleted Outcome = iota
	// OutcomeFailed means an Error event ended the turn and the last message was popped.
	OutcomeFailed
	// OutcomeEndedWithoutResponse means the stream closed before any terminal
	// event and without inline content. The chat service treats it as a failed
	// turn and pops the user message, so history stays in user/assistant pairs.
	OutcomeEndedWithoutResponse
	// OutcomeAborted means the transport failed or ctx was cancelled mid-stream.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeEndedWithoutResponse:
		return "ended_without_response"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ProtocolError is an error event reported by the agent.
type ProtocolError struct {
	Message string
	Code    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("agent error: %s (code: %s)", e.Message, e.codeOrUnknown())
}

func (e *ProtocolError) codeOrUnknown() string {
	if e.Code == "" {
		return "unknown"
	}
	return e.Code
}

// Reducer consumes one stream per Run call. It holds no per-stream state and
// may be shared.
type Reducer struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewReducer creates a reducer. Both arguments may be nil.
func NewReducer(logger *slog.Logger, m *metrics.Metrics) *Reducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reducer{
		logger:  logger.With("component", "reducer"),
		metrics: m,
	}
}

// Run applies every event from src until a terminal condition. On return the
// status indicator is closed. Partial renders are left in place on every path.
//
// The returned error is a *ProtocolError for OutcomeFailed, the transport or
// context error for OutcomeAborted, and nil otherwise.
func (rd *Reducer) Run(ctx context.Context, src Source, conv *conversation.Store, r Renderer) (Outcome, error) {
	t := &turn{
		ctx:     ctx,
		conv:    conv,
		r:       r,
		regions: make(map[int]*region),
		partial: make(map[int]agent.ContentItem),
		logger:  rd.logger.With("conversation_id", conv.ID()),
		metrics: rd.metrics,
	}
	t.showStatus(WaitingMessage)
	defer t.clearStatus()

	for {
		if err := ctx.Err(); err != nil {
			if t.completed {
				return OutcomeCompleted, nil
			}
			return OutcomeAborted, err
		}

		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			if t.completed {
				return OutcomeCompleted, nil
			}
			if len(t.partial) > 0 {
				t.finishInline()
				return OutcomeCompleted, nil
			}
			t.logger.Warn("stream ended without a response event")
			return OutcomeEndedWithoutResponse, nil
		}

		var decErr *agent.DecodeError
		if errors.As(err, &decErr) {
			if t.completed {
				t.logger.Debug("ignoring malformed event after response", "event", decErr.Event, "error", decErr.Err)
				continue
			}
			t.skip(decErr.Event, decErr.Err)
			continue
		}
		if err != nil {
			if t.completed {
				t.logger.Debug("stream error after response", "error", err)
				return OutcomeCompleted, nil
			}
			return OutcomeAborted, err
		}

		if t.completed {
			t.logger.Debug("ignoring event after response", "event", ev.Name())
			continue
		}

		rd.metrics.StreamEvent(ev.Name())
		if err := ev.Accept(t); err != nil {
			var protoErr *ProtocolError
			if errors.As(err, &protoErr) {
				return OutcomeFailed, protoErr
			}
			return OutcomeAborted, err
		}
	}
}

// region is the per-index state: where it renders and what has accumulated.
type region struct {
	handle Handle
	buf    strings.Builder
}

// turn is the state of one stream. It is never shared across turns.
type turn struct {
	ctx        context.Context
	conv       *conversation.Store
	r          Renderer
	regions    map[int]*region
	partial    map[int]agent.ContentItem
	statusOpen bool
	completed  bool
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// region returns the region for index, opening it on first use or reopening
// it with an empty buffer when the kind changes.
func (t *turn) region(index int, kind RegionKind) *region {
	if reg, ok := t.regions[index]; ok && reg.handle.Kind == kind {
		return reg
	}
	reg := &region{handle: t.r.OpenRegion(index, kind)}
	t.regions[index] = reg
	return reg
}

func (t *turn) showStatus(msg string) {
	if t.statusOpen {
		t.r.ClearStatus()
	}
	t.r.ShowStatus(msg)
	t.statusOpen = true
}

func (t *turn) clearStatus() {
	if t.statusOpen {
		t.r.ClearStatus()
		t.statusOpen = false
	}
}

// skip reports an event that could not be applied and lets the stream continue.
func (t *turn) skip(event string, err error) {
	t.metrics.DecodeError()
	t.logger.Warn("skipping malformed event", "event", event, "error", err)
	t.r.ShowWarning(fmt.Sprintf("Skipped a malformed %s event: %v", event, err))
}

func (t *turn) VisitStatus(ev agent.Status) error {
	t.showStatus(ev.Message)
	return nil
}

func (t *turn) VisitTextDelta(ev agent.TextDelta) error {
	reg := t.region(ev.ContentIndex, KindText)
	reg.buf.WriteString(ev.Text)
	t.r.Write(reg.handle, Markdown{Text: reg.buf.String()})
	return nil
}

func (t *turn) VisitThinkingDelta(ev agent.ThinkingDelta) error {
	reg := t.region(ev.ContentIndex, KindThinking)
	reg.buf.WriteString(ev.Text)
	t.r.Write(reg.handle, ThinkingText{Text: reg.buf.String(), Expanded: true})
	return nil
}

func (t *turn) VisitThinking(ev agent.Thinking) error {
	reg := t.region(ev.ContentIndex, KindThinking)
	reg.buf.Reset()
	reg.buf.WriteString(ev.Text)
	t.r.Write(reg.handle, ThinkingText{Text: ev.Text})
	t.r.Collapse(reg.handle)
	return nil
}

func (t *turn) VisitToolUse(ev agent.ToolUse) error {
	reg := t.region(ev.ContentIndex, KindToolUse)
	t.r.Write(reg.handle, JSONPayload{Label: LabelToolUse, Data: ev.Payload})
	t.r.Collapse(reg.handle)
	return nil
}

func (t *turn) VisitToolResult(ev agent.ToolResult) error {
	reg := t.region(ev.ContentIndex, KindToolResult)
	t.r.Write(reg.handle, JSONPayload{Label: LabelToolResult, Data: ev.Payload})
	t.r.Collapse(reg.handle)
	return nil
}

func (t *turn) VisitChart(ev agent.Chart) error {
	spec, err := ParseChartSpec(ev.ChartSpec)
	if err != nil {
		t.skip(ev.Name(), err)
		return nil
	}
	reg := t.region(ev.ContentIndex, KindChart)
	t.r.Write(reg.handle, spec)
	return nil
}

func (t *turn) VisitTable(ev agent.Table) error {
	reg := t.region(ev.ContentIndex, KindTable)
	t.r.Write(reg.handle, NewTableData(ev.ResultSet))
	return nil
}

func (t *turn) VisitError(ev agent.Error) error {
	t.clearStatus()

	protoErr := &ProtocolError{Message: ev.Message, Code: ev.Code}
	t.r.ShowError(fmt.Sprintf("Error: %s (code: %s)", ev.Message, protoErr.codeOrUnknown()))

	if _, ok := t.conv.Pop(context.WithoutCancel(t.ctx)); !ok {
		t.logger.Warn("error event with empty history")
	}
	t.logger.Warn("agent reported error", "message", ev.Message, "code", ev.Code)
	return protoErr
}

func (t *turn) VisitResponse(ev agent.Response) error {
	t.conv.Append(context.WithoutCancel(t.ctx), ev.Message)
	t.completed = true
	return nil
}

// ParseChartSpec decodes the JSON chart specification embedded in a chart event.
func ParseChartSpec(raw string) (ChartSpec, error) {
	var spec map[string]any
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return ChartSpec{}, fmt.Errorf("invalid chart spec: %w", err)
	}
	if spec == nil {
		return ChartSpec{}, errors.New("invalid chart spec: null")
	}
	return ChartSpec{Spec: spec}, nil
}

// NewTableData builds a table from a result set, taking column names from
// the row type metadata in order.
func NewTableData(rs agent.ResultSet) TableData {
	return TableData{Columns: rs.Columns(), Rows: rs.Data}
}
