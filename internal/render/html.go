// ABOUTME: Browser renderer producing HTML fragments for live regions and history
// ABOUTME: Live updates are emitted as named SSE events through a Sink

package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/stream"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	fragments = template.Must(template.ParseFS(templateFS, "templates/content.html"))
	markdown  = goldmark.New(goldmark.WithExtensions(extension.GFM))
)

// Browser event names emitted by HTML.
const (
	EventRegionOpen  = "region-open"
	EventRegion      = "region"
	EventCollapse    = "collapse"
	EventStatus      = "status"
	EventStatusClear = "status-clear"
	EventError       = "turn-error"
	EventWarning     = "turn-warning"
)

// Update is the JSON payload of a browser event.
type Update struct {
	ID   string `json:"id,omitempty"`
	Kind string `json:"kind,omitempty"`
	HTML string `json:"html,omitempty"`
	Text string `json:"text,omitempty"`
}

// Sink receives browser events.
type Sink func(event string, data []byte)

// HTML renders one streamed turn for the browser.
type HTML struct {
	turnID string
	sink   Sink
	logger *slog.Logger
}

// NewHTML creates a renderer whose region IDs are scoped to turnID.
func NewHTML(turnID string, sink Sink, logger *slog.Logger) *HTML {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTML{
		turnID: turnID,
		sink:   sink,
		logger: logger.With("component", "html_renderer", "turn_id", turnID),
	}
}

// RegionID returns the DOM id for a content index in this turn.
func (h *HTML) RegionID(index int) string {
	return fmt.Sprintf("r-%s-%d", h.turnID, index)
}

func (h *HTML) OpenRegion(index int, kind stream.RegionKind) stream.Handle {
	h.emit(EventRegionOpen, Update{ID: h.RegionID(index), Kind: kind.String()})
	return stream.Handle{Index: index, Kind: kind}
}

func (h *HTML) Write(hd stream.Handle, c stream.Content) {
	body, err := ContentHTML(c)
	if err != nil {
		h.logger.Warn("failed to render content", "index", hd.Index, "error", err)
		h.ShowWarning(fmt.Sprintf("Could not display %s content: %v", hd.Kind, err))
		return
	}
	h.emit(EventRegion, Update{ID: h.RegionID(hd.Index), Kind: hd.Kind.String(), HTML: string(body)})
}

func (h *HTML) Collapse(hd stream.Handle) {
	h.emit(EventCollapse, Update{ID: h.RegionID(hd.Index)})
}

func (h *HTML) ShowStatus(msg string) {
	h.emit(EventStatus, Update{Text: msg})
}

func (h *HTML) ClearStatus() {
	h.emit(EventStatusClear, Update{})
}

func (h *HTML) ShowError(msg string) {
	h.emit(EventError, Update{Text: msg})
}

func (h *HTML) ShowWarning(msg string) {
	h.emit(EventWarning, Update{Text: msg})
}

func (h *HTML) emit(event string, u Update) {
	data, err := json.Marshal(u)
	if err != nil {
		h.logger.Error("failed to encode update", "event", event, "error", err)
		return
	}
	h.sink(event, data)
}

// ContentHTML renders one content value as an HTML fragment.
func ContentHTML(c stream.Content) (template.HTML, error) {
	switch v := c.(type) {
	case stream.Markdown:
		body, err := Markdown(v.Text)
		if err != nil {
			return "", err
		}
		return execute("markdown", body)

	case stream.ThinkingText:
		body, err := Markdown(v.Text)
		if err != nil {
			return "", err
		}
		return execute("thinking", struct {
			Expanded bool
			Body     template.HTML
		}{v.Expanded, body})

	case stream.JSONPayload:
		return execute("payload", struct {
			Label string
			JSON  string
		}{v.Label, PrettyJSON(v.Data)})

	case stream.ChartSpec:
		spec, err := json.Marshal(v.Spec)
		if err != nil {
			return "", fmt.Errorf("encoding chart spec: %w", err)
		}
		return execute("chart", string(spec))

	case stream.TableData:
		return execute("table", struct {
			Title   string
			Columns []string
			Rows    [][]string
		}{v.Title, v.Columns, FormatRows(v.Rows)})

	default:
		return "", fmt.Errorf("unsupported content %T", c)
	}
}

// Markdown converts markdown text to HTML. Raw HTML in the source is not passed through.
func Markdown(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Alert renders a standalone notice; level is "error" or "warning".
func Alert(level, text string) template.HTML {
	out, err := execute("alert", struct{ Level, Text string }{level, text})
	if err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return out
}

// RenderMessage renders every content item of a finalized message.
// Items that cannot be rendered become inline warnings.
func RenderMessage(msg agent.Message, idPrefix string) template.HTML {
	var buf bytes.Buffer
	for i, item := range msg.Content {
		kind, content, err := Dispatch(item)
		var body template.HTML
		if err == nil {
			body, err = ContentHTML(content)
		}
		if err != nil {
			body = Alert("warning", fmt.Sprintf("Could not display %s content: %v", item.ContentType(), err))
		}

		region, err := execute("region", struct {
			Kind string
			ID   string
			Body template.HTML
		}{kind.String(), fmt.Sprintf("%s-%d", idPrefix, i), body})
		if err != nil {
			buf.WriteString(string(Alert("warning", err.Error())))
			continue
		}
		buf.WriteString(string(region))
	}
	return template.HTML(buf.String())
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("executing %s template: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}
