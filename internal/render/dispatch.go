// ABOUTME: Maps finalized content items onto the same region kinds and content
// ABOUTME: values the live stream produces, so history and live output match

package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/stream"
)

// Dispatch converts one finalized content item into its region kind and content.
func Dispatch(item agent.ContentItem) (stream.RegionKind, stream.Content, error) {
	switch it := item.(type) {
	case agent.TextContent:
		return stream.KindText, stream.Markdown{Text: it.Text}, nil
	case agent.ThinkingContent:
		return stream.KindThinking, stream.ThinkingText{Text: it.Thinking.Text}, nil
	case agent.ToolUseContent:
		return stream.KindToolUse, stream.JSONPayload{Label: stream.LabelToolUse, Data: it.ToolUse}, nil
	case agent.ToolResultContent:
		return stream.KindToolResult, stream.JSONPayload{Label: stream.LabelToolResult, Data: it.ToolResult}, nil
	case agent.ChartContent:
		spec, err := stream.ParseChartSpec(it.Chart.ChartSpec)
		if err != nil {
			return stream.KindChart, nil, err
		}
		return stream.KindChart, spec, nil
	case agent.TableContent:
		table := stream.NewTableData(it.Table.ResultSet)
		table.Title = it.Table.Title
		return stream.KindTable, table, nil
	case agent.UnknownContent:
		if summary, ok := stream.ToolResultsSummary(it); ok {
			return stream.KindToolResult, stream.Markdown{Text: summary}, nil
		}
		return stream.KindOther, stream.JSONPayload{Label: it.Type, Data: it.Raw}, nil
	default:
		return stream.KindOther, nil, fmt.Errorf("unsupported content item %T", item)
	}
}

// FormatCell renders a result set value for display.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// FormatRows converts every cell of a table to its display string.
func FormatRows(rows [][]any) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, cell := range row {
			out[i][j] = FormatCell(cell)
		}
	}
	return out
}

// PrettyJSON indents a JSON payload, returning it unchanged if it is not valid JSON.
func PrettyJSON(data json.RawMessage) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(data)
	}
	return string(b)
}
