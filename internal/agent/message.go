// ABOUTME: Conversation message model exchanged with the agent service
// ABOUTME: ContentItem is a closed sum type discriminated by the JSON "type" field

package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content item type tags as they appear on the wire.
const (
	ContentTypeText       = "text"
	ContentTypeThinking   = "thinking"
	ContentTypeChart      = "chart"
	ContentTypeTable      = "table"
	ContentTypeToolUse    = "tool_use"
	ContentTypeToolResult = "tool_result"
)

// ContentTypeToolResults is the plural tool result item emitted by the inline
// run endpoint. It has no variant of its own and decodes as UnknownContent.
const ContentTypeToolResults = "tool_results"

// Message is one conversation turn.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentItem `json:"-"`
}

// ContentItem is one ordered piece of a message.
// The set of implementations is closed: only this package can add variants.
type ContentItem interface {
	ContentType() string
	isContentItem()
}

// TextContent is plain (markdown) text.
type TextContent struct {
	Text string `json:"text"`
}

// ThinkingContent is the agent's reasoning trace.
type ThinkingContent struct {
	Thinking ThinkingBody `json:"thinking"`
}

// ThinkingBody wraps the reasoning text.
type ThinkingBody struct {
	Text string `json:"text"`
}

// ChartContent holds a chart specification.
type ChartContent struct {
	Chart ChartBody `json:"chart"`
}

// ChartBody carries the chart spec as an embedded JSON string (vega-lite).
type ChartBody struct {
	ChartSpec string `json:"chart_spec"`
}

// TableContent holds a tabular query result.
type TableContent struct {
	Table TableBody `json:"table"`
}

// TableBody wraps a result set with an optional title.
type TableBody struct {
	ResultSet ResultSet `json:"result_set"`
	Title     string    `json:"title,omitempty"`
}

// ToolUseContent is an opaque tool invocation record.
type ToolUseContent struct {
	ToolUse json.RawMessage `json:"tool_use"`
}

// ToolResultContent is an opaque tool result record.
type ToolResultContent struct {
	ToolResult json.RawMessage `json:"tool_result"`
}

// UnknownContent preserves an item whose type this client does not model.
type UnknownContent struct {
	Type string
	Raw  json.RawMessage
}

func (TextContent) ContentType() string       { return ContentTypeText }
func (ThinkingContent) ContentType() string   { return ContentTypeThinking }
func (ChartContent) ContentType() string      { return ContentTypeChart }
func (TableContent) ContentType() string      { return ContentTypeTable }
func (ToolUseContent) ContentType() string    { return ContentTypeToolUse }
func (ToolResultContent) ContentType() string { return ContentTypeToolResult }
func (u UnknownContent) ContentType() string  { return u.Type }

func (TextContent) isContentItem()       {}
func (ThinkingContent) isContentItem()   {}
func (ChartContent) isContentItem()      {}
func (TableContent) isContentItem()      {}
func (ToolUseContent) isContentItem()    {}
func (ToolResultContent) isContentItem() {}
func (UnknownContent) isContentItem()    {}

// ResultSet is row-major data plus column metadata.
type ResultSet struct {
	Data [][]any       `json:"data"`
	Meta ResultSetMeta `json:"result_set_meta_data"`
}

// ResultSetMeta describes the columns of a result set.
type ResultSetMeta struct {
	RowType []Column `json:"row_type"`
}

// Column is a single column description.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Columns returns the column names in order.
func (rs ResultSet) Columns() []string {
	names := make([]string, len(rs.Meta.RowType))
	for i, col := range rs.Meta.RowType {
		names[i] = col.Name
	}
	return names
}

// NewUserMessage builds a user message with a single text item.
func NewUserMessage(text string) Message {
	return Message{
		Role:    RoleUser,
		Content: []ContentItem{TextContent{Text: text}},
	}
}

// Text concatenates the text items of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, item := range m.Content {
		if t, ok := item.(TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// Clone returns a copy whose content slice can be modified independently.
func (m Message) Clone() Message {
	content := make([]ContentItem, len(m.Content))
	copy(content, m.Content)
	return Message{Role: m.Role, Content: content}
}

type wireMessage struct {
	Role    Role              `json:"role"`
	Content []json.RawMessage `json:"content"`
}

// MarshalJSON writes the message with each content item tagged by its type.
func (m Message) MarshalJSON() ([]byte, error) {
	wire := wireMessage{Role: m.Role, Content: make([]json.RawMessage, 0, len(m.Content))}
	for i, item := range m.Content {
		raw, err := MarshalContentItem(item)
		if err != nil {
			return nil, fmt.Errorf("content[%d]: %w", i, err)
		}
		wire.Content = append(wire.Content, raw)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON reads a message and decodes every content item by its type tag.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Role == "" {
		return fmt.Errorf("message: missing role")
	}

	content := make([]ContentItem, 0, len(wire.Content))
	for i, raw := range wire.Content {
		item, err := UnmarshalContentItem(raw)
		if err != nil {
			return fmt.Errorf("content[%d]: %w", i, err)
		}
		content = append(content, item)
	}

	m.Role = wire.Role
	m.Content = content
	return nil
}

// MarshalContentItem encodes an item with its "type" tag set from the variant.
func MarshalContentItem(item ContentItem) (json.RawMessage, error) {
	if u, ok := item.(UnknownContent); ok {
		return u.Raw, nil
	}

	body, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}

	// Splice the type tag in front of the variant's fields
	tag, _ := json.Marshal(item.ContentType())
	if string(body) == "{}" {
		return json.RawMessage(`{"type":` + string(tag) + `}`), nil
	}
	return json.RawMessage(`{"type":` + string(tag) + `,` + string(body[1:])), nil
}

// UnmarshalContentItem decodes a tagged content item into its variant.
func UnmarshalContentItem(raw json.RawMessage) (ContentItem, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case ContentTypeText:
		return decodeItem[TextContent](raw)
	case ContentTypeThinking:
		return decodeItem[ThinkingContent](raw)
	case ContentTypeChart:
		return decodeItem[ChartContent](raw)
	case ContentTypeTable:
		return decodeItem[TableContent](raw)
	case ContentTypeToolUse:
		return decodeItem[ToolUseContent](raw)
	case ContentTypeToolResult:
		return decodeItem[ToolResultContent](raw)
	case "":
		return nil, fmt.Errorf("content item: missing type")
	default:
		return UnknownContent{Type: head.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func decodeItem[T ContentItem](raw json.RawMessage) (ContentItem, error) {
	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decoding %s item: %w", item.ContentType(), err)
	}
	return item, nil
}
