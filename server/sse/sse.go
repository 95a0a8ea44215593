// Package sse encodes and decodes task event streams in the Server-Sent
// Events framing used by the daemon: one "data: <json>" line per event,
// terminated by a blank line.
package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/GoCodeAlone/nexus/task"
)

const dataPrefix = "data: "

// ContentType is the media type of an event stream.
const ContentType = "text/event-stream"

// Encoder writes events to an event stream, flushing after each one when
// the writer supports it.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	f, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: f}
}

// Encode writes ev as a single frame.
func (e *Encoder) Encode(ev task.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sse: encode event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "%s%s\n\n", dataPrefix, data); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Decoder reads events from an event stream. Partial lines are buffered
// across reads; lines that are not data lines are ignored.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next event. It returns io.EOF once the stream ends.
func (d *Decoder) Next() (task.Event, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return task.Event{}, fmt.Errorf("sse: read stream: %w", err)
		}
		// A final line without a newline is an incomplete frame.
		if errors.Is(err, io.EOF) {
			return task.Event{}, io.EOF
		}

		line = strings.TrimRight(line, "\r\n")
		payload, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" {
			continue
		}

		var ev task.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return task.Event{}, fmt.Errorf("sse: decode event: %w", err)
		}
		return ev, nil
	}
}
