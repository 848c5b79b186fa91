// ABOUTME: Extracts analyst-generated SQL from tool results of a finished message
// ABOUTME: Handles both tool_result items and the inline endpoint's tool_results shape

package chat

import (
	"encoding/json"
	"strings"

	"github.com/2389/cortex-chat/internal/agent"
)

type toolResultBody struct {
	Content []struct {
		Type string `json:"type"`
		JSON struct {
			SQL string `json:"sql"`
		} `json:"json"`
	} `json:"content"`
}

// ExtractSQL returns the last non-empty SQL statement found in the JSON
// parts of msg's tool results, or "" if there is none.
func ExtractSQL(msg agent.Message) string {
	var sql string
	for _, item := range msg.Content {
		var raw json.RawMessage
		switch it := item.(type) {
		case agent.ToolResultContent:
			raw = it.ToolResult
		case agent.UnknownContent:
			if it.Type != agent.ContentTypeToolResults {
				continue
			}
			var wrapper struct {
				ToolResults json.RawMessage `json:"tool_results"`
			}
			if err := json.Unmarshal(it.Raw, &wrapper); err != nil {
				continue
			}
			raw = wrapper.ToolResults
		default:
			continue
		}

		if s := sqlFromToolResult(raw); s != "" {
			sql = s
		}
	}
	return sql
}

func sqlFromToolResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var body toolResultBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	var sql string
	for _, part := range body.Content {
		if part.Type != "json" {
			continue
		}
		if s := strings.TrimSpace(part.JSON.SQL); s != "" {
			sql = s
		}
	}
	return sql
}
