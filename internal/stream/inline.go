// ABOUTME: Applies the inline endpoint's message.delta items to regions and
// ABOUTME: assembles the final assistant message when the stream ends

package stream

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/2389/cortex-chat/internal/agent"
)

type toolResultsBody struct {
	ToolResults struct {
		Content []struct {
			Type string `json:"type"`
			JSON struct {
				Text          string `json:"text"`
				SQL           string `json:"sql"`
				SearchResults []struct {
					Text string `json:"text"`
				} `json:"searchResults"`
			} `json:"json"`
		} `json:"content"`
	} `json:"tool_results"`
}

// ToolResultsSummary renders a tool_results item as markdown: the result
// text, one bullet per search hit, then the generated SQL in a code block.
// ok is false when the item is not tool_results or carries none of these.
func ToolResultsSummary(item agent.UnknownContent) (string, bool) {
	if item.Type != agent.ContentTypeToolResults {
		return "", false
	}
	var body toolResultsBody
	if err := json.Unmarshal(item.Raw, &body); err != nil {
		return "", false
	}

	var b strings.Builder
	var sql string
	for _, part := range body.ToolResults.Content {
		if part.Type != "json" {
			continue
		}
		b.WriteString(part.JSON.Text)
		for _, hit := range part.JSON.SearchResults {
			b.WriteString("\n• ")
			b.WriteString(hit.Text)
		}
		if s := strings.TrimSpace(part.JSON.SQL); s != "" {
			sql = s
		}
	}
	if sql != "" {
		b.WriteString("\n\n```sql\n")
		b.WriteString(sql)
		b.WriteString("\n```")
	}

	out := strings.TrimLeft(b.String(), "\n")
	return out, out != ""
}

func (t *turn) VisitMessageDelta(ev agent.MessageDelta) error {
	for _, d := range ev.Items {
		t.applyDelta(d)
	}
	return nil
}

// applyDelta renders one inline item and records its accumulated value.
func (t *turn) applyDelta(d agent.DeltaItem) {
	switch it := d.Item.(type) {
	case agent.TextContent:
		reg := t.region(d.Index, KindText)
		reg.buf.WriteString(it.Text)
		t.r.Write(reg.handle, Markdown{Text: reg.buf.String()})
		t.partial[d.Index] = agent.TextContent{Text: reg.buf.String()}

	case agent.ThinkingContent:
		reg := t.region(d.Index, KindThinking)
		reg.buf.WriteString(it.Thinking.Text)
		t.r.Write(reg.handle, ThinkingText{Text: reg.buf.String(), Expanded: true})
		t.partial[d.Index] = agent.ThinkingContent{Thinking: agent.ThinkingBody{Text: reg.buf.String()}}

	case agent.ToolUseContent:
		reg := t.region(d.Index, KindToolUse)
		t.r.Write(reg.handle, JSONPayload{Label: LabelToolUse, Data: it.ToolUse})
		t.r.Collapse(reg.handle)
		t.partial[d.Index] = it

	case agent.ToolResultContent:
		reg := t.region(d.Index, KindToolResult)
		t.r.Write(reg.handle, JSONPayload{Label: LabelToolResult, Data: it.ToolResult})
		t.r.Collapse(reg.handle)
		t.partial[d.Index] = it

	case agent.ChartContent:
		spec, err := ParseChartSpec(it.Chart.ChartSpec)
		if err != nil {
			t.skip(agent.EventMessageDelta, err)
			return
		}
		reg := t.region(d.Index, KindChart)
		t.r.Write(reg.handle, spec)
		t.partial[d.Index] = it

	case agent.TableContent:
		table := NewTableData(it.Table.ResultSet)
		table.Title = it.Table.Title
		reg := t.region(d.Index, KindTable)
		t.r.Write(reg.handle, table)
		t.partial[d.Index] = it

	case agent.UnknownContent:
		if summary, ok := ToolResultsSummary(it); ok {
			reg := t.region(d.Index, KindToolResult)
			t.r.Write(reg.handle, Markdown{Text: summary})
		} else {
			reg := t.region(d.Index, KindOther)
			t.r.Write(reg.handle, JSONPayload{Label: it.Type, Data: it.Raw})
			t.r.Collapse(reg.handle)
		}
		t.partial[d.Index] = it
	}
}

// finishInline appends the items gathered from message.delta events, in index
// order, as the assistant's answer.
func (t *turn) finishInline() {
	msg := agent.Message{Role: agent.RoleAssistant}
	for _, index := range slices.Sorted(maps.Keys(t.partial)) {
		msg.Content = append(msg.Content, t.partial[index])
	}
	t.conv.Append(context.WithoutCancel(t.ctx), msg)
	t.completed = true
	t.logger.Info("inline answer assembled", "items", len(msg.Content))
}
