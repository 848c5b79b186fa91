// ABOUTME: Terminal renderer that streams regions to a writer with color
// ABOUTME: Growing buffers print only their new suffix since a terminal cannot redraw in place

package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/stream"
)

var (
	statusColor  = color.New(color.FgYellow, color.Faint)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	labelColor   = color.New(color.FgCyan, color.Bold)
	thinkColor   = color.New(color.Faint, color.Italic)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	tableBorders = lipgloss.NormalBorder()
)

type termRegion struct {
	kind    stream.RegionKind
	printed string
}

// Terminal renders a streamed turn to a text terminal.
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	regions map[int]*termRegion
	current int
	midLine bool
}

// NewTerminal creates a renderer writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w, regions: make(map[int]*termRegion), current: -1}
}

func (t *Terminal) OpenRegion(index int, kind stream.RegionKind) stream.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.regions[index] = &termRegion{kind: kind}
	return stream.Handle{Index: index, Kind: kind}
}

func (t *Terminal) Write(h stream.Handle, c stream.Content) {
	t.mu.Lock()
	defer t.mu.Unlock()

	reg, ok := t.regions[h.Index]
	if !ok {
		reg = &termRegion{kind: h.Kind}
		t.regions[h.Index] = reg
	}

	switch v := c.(type) {
	case stream.Markdown:
		t.appendText(h.Index, reg, v.Text, nil)
	case stream.ThinkingText:
		t.appendText(h.Index, reg, v.Text, thinkColor)
	case stream.JSONPayload:
		t.block(h.Index, labelColor.Sprint(v.Label)+"\n"+PrettyJSON(v.Data))
	case stream.ChartSpec:
		t.block(h.Index, labelColor.Sprint("Chart")+" "+chartSummary(v))
	case stream.TableData:
		t.block(h.Index, TableText(v))
	}
}

// appendText prints the part of text not yet shown for this region.
func (t *Terminal) appendText(index int, reg *termRegion, text string, c *color.Color) {
	suffix := text
	if strings.HasPrefix(text, reg.printed) {
		suffix = text[len(reg.printed):]
	} else if reg.printed != "" {
		// Replaced rather than extended: start the region over
		t.newline()
		t.current = -1
	}
	reg.printed = text
	if suffix == "" {
		return
	}

	if t.current != index {
		t.newline()
		if reg.kind == stream.KindThinking {
			fmt.Fprintln(t.w, labelColor.Sprint(stream.LabelThinking))
		}
		t.current = index
	}

	if c != nil {
		suffix = c.Sprint(suffix)
	}
	fmt.Fprint(t.w, suffix)
	t.midLine = !strings.HasSuffix(text, "\n")
}

func (t *Terminal) block(index int, text string) {
	t.newline()
	fmt.Fprintln(t.w, text)
	t.current = index
	t.midLine = false
}

func (t *Terminal) newline() {
	if t.midLine {
		fmt.Fprintln(t.w)
		t.midLine = false
	}
}

func (t *Terminal) Collapse(stream.Handle) {}

func (t *Terminal) ShowStatus(msg string) {
	t.line(statusColor.Sprint("… " + msg))
}

func (t *Terminal) ClearStatus() {}

func (t *Terminal) ShowError(msg string) {
	t.line(errorColor.Sprint(msg))
}

func (t *Terminal) ShowWarning(msg string) {
	t.line(warnColor.Sprint(msg))
}

func (t *Terminal) line(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.newline()
	fmt.Fprintln(t.w, s)
	t.current = -1
}

// Finish ends any partial line.
func (t *Terminal) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.newline()
}

// TableText draws a table with box borders.
func TableText(td stream.TableData) string {
	tbl := table.New().
		Border(tableBorders).
		Headers(td.Columns...).
		Rows(FormatRows(td.Rows)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	out := tbl.Render()
	if td.Title != "" {
		out = labelColor.Sprint(td.Title) + "\n" + out
	}
	return out
}

func chartSummary(c stream.ChartSpec) string {
	var parts []string
	if title, ok := c.Spec["title"].(string); ok && title != "" {
		parts = append(parts, title)
	}
	switch mark := c.Spec["mark"].(type) {
	case string:
		parts = append(parts, "("+mark+")")
	case map[string]any:
		if typ, ok := mark["type"].(string); ok {
			parts = append(parts, "("+typ+")")
		}
	}
	if len(parts) == 0 {
		return "(open in the web UI to view)"
	}
	return strings.Join(parts, " ")
}

// Transcript renders finalized messages for reading in a terminal, with
// markdown formatted by glamour.
type Transcript struct {
	md *glamour.TermRenderer
}

// NewTranscript creates a transcript renderer. style is a glamour standard
// style name such as "dark", "light" or "notty".
func NewTranscript(style string, width int) (*Transcript, error) {
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	return &Transcript{md: md}, nil
}

// WriteMessage renders one message to w.
func (tr *Transcript) WriteMessage(w io.Writer, msg agent.Message) error {
	fmt.Fprintln(w, labelColor.Sprint(strings.ToUpper(string(msg.Role))))

	for _, item := range msg.Content {
		kind, content, err := Dispatch(item)
		if err != nil {
			fmt.Fprintln(w, warnColor.Sprintf("Could not display %s content: %v", item.ContentType(), err))
			continue
		}

		switch v := content.(type) {
		case stream.Markdown:
			out, err := tr.md.Render(v.Text)
			if err != nil {
				out = v.Text + "\n"
			}
			fmt.Fprint(w, out)
		case stream.ThinkingText:
			fmt.Fprintln(w, labelColor.Sprint(stream.LabelThinking))
			fmt.Fprintln(w, thinkColor.Sprint(v.Text))
		case stream.JSONPayload:
			fmt.Fprintln(w, labelColor.Sprint(v.Label))
			fmt.Fprintln(w, PrettyJSON(v.Data))
		case stream.ChartSpec:
			fmt.Fprintln(w, labelColor.Sprint("Chart")+" "+chartSummary(v))
		case stream.TableData:
			fmt.Fprintln(w, TableText(v))
		default:
			fmt.Fprintln(w, warnColor.Sprintf("Unsupported %s content", kind))
		}
	}
	fmt.Fprintln(w)
	return nil
}
