// ABOUTME: Renderer capability set the reducer draws into, plus its content values
// ABOUTME: Concrete UIs (browser, terminal) live elsewhere and implement Renderer

package stream

import "encoding/json"

// RegionKind says what a region displays.
type RegionKind int

const (
	KindText RegionKind = iota
	KindThinking
	KindToolUse
	KindToolResult
	KindChart
	KindTable
	// KindOther holds content of a type this client does not know.
	KindOther
)

func (k RegionKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindThinking:
		return "thinking"
	case KindToolUse:
		return "tool_use"
	case KindToolResult:
		return "tool_result"
	case KindChart:
		return "chart"
	case KindTable:
		return "table"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Handle identifies an open region.
type Handle struct {
	Index int
	Kind  RegionKind
}

// Renderer is the drawing surface for one streamed response.
type Renderer interface {
	// OpenRegion creates the region for a content index, or replaces the
	// existing one when the kind changes.
	OpenRegion(index int, kind RegionKind) Handle
	// Write replaces the region's content.
	Write(h Handle, c Content)
	// Collapse folds a collapsible region.
	Collapse(h Handle)

	// ShowStatus opens the waiting indicator, replacing any open one.
	ShowStatus(msg string)
	// ClearStatus closes the waiting indicator.
	ClearStatus()
	// ShowError reports a failure that ended the turn.
	ShowError(msg string)
	// ShowWarning reports a problem the stream recovered from.
	ShowWarning(msg string)
}

// Content is what a region displays. The set of variants is closed.
type Content interface {
	isContent()
}

// Markdown is accumulated answer text.
type Markdown struct {
	Text string
}

// ThinkingText is reasoning shown in a collapsible region.
type ThinkingText struct {
	Text     string
	Expanded bool
}

// JSONPayload is a structured tool payload shown under a label.
type JSONPayload struct {
	Label string
	Data  json.RawMessage
}

// ChartSpec is a parsed chart specification.
type ChartSpec struct {
	Spec map[string]any
}

// TableData is a result set with named columns.
type TableData struct {
	Title   string
	Columns []string
	Rows    [][]any
}

func (Markdown) isContent()     {}
func (ThinkingText) isContent() {}
func (JSONPayload) isContent()  {}
func (ChartSpec) isContent()    {}
func (TableData) isContent()    {}

// Labels used for collapsible regions.
const (
	LabelThinking   = "Thinking"
	LabelToolUse    = "Tool use"
	LabelToolResult = "Tool result"
)
