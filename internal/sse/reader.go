// ABOUTME: Pull-based Server-Sent-Events frame reader over an io.Reader
// ABOUTME: Handles event/data/id fields, comments, multi-line data and the [DONE] sentinel

package sse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDone is returned by Next when the stream sends the literal [DONE] sentinel.
var ErrDone = errors.New("sse: stream done")

// DoneSentinel is the data payload some endpoints send as the final frame.
const DoneSentinel = "[DONE]"

// DefaultEvent is the event name used when a frame has no event field.
const DefaultEvent = "message"

// maxLineSize bounds a single SSE line. Table payloads arrive as one data
// line and can be large.
const maxLineSize = 4 * 1024 * 1024

// Frame is one dispatched Server-Sent Event.
type Frame struct {
	Event string
	Data  string
	ID    string
}

// Reader parses frames from an SSE body.
type Reader struct {
	scanner *bufio.Scanner
	lastID  string
	done    bool
}

// NewReader creates a Reader over body.
func NewReader(body io.Reader) *Reader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next blocks until the next frame is complete.
// It returns io.EOF when the body ends and ErrDone after a [DONE] frame.
func (r *Reader) Next() (Frame, error) {
	if r.done {
		return Frame{}, io.EOF
	}

	var (
		eventName string
		dataLines []string
		hasData   bool
	)

	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		// Empty line dispatches the pending frame
		if line == "" {
			if !hasData {
				eventName = ""
				continue
			}
			return r.dispatch(eventName, dataLines)
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			eventName = value
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "id":
			r.lastID = value
		case "retry":
			// Reconnection is not supported, the delay is irrelevant
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("reading SSE stream: %w", err)
	}

	r.done = true
	// Connection closed without a trailing blank line
	if hasData {
		return r.dispatch(eventName, dataLines)
	}
	return Frame{}, io.EOF
}

func (r *Reader) dispatch(eventName string, dataLines []string) (Frame, error) {
	data := strings.Join(dataLines, "\n")
	if data == DoneSentinel {
		r.done = true
		return Frame{}, ErrDone
	}
	if eventName == "" {
		eventName = DefaultEvent
	}
	return Frame{Event: eventName, Data: data, ID: r.lastID}, nil
}

// splitField splits "field: value" and strips a single leading space from the value.
func splitField(line string) (string, string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
