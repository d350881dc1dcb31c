// Package sse decodes Server-Sent-Events streams into frames.
//
// The decoder is lenient: besides regular event:/data:/id: frames it accepts
// bodies that carry one JSON document per line, which is what the generation
// API sends when the client did not ask for text/event-stream.
package sse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DoneSentinel is the data value some producers send as the last frame.
const DoneSentinel = "[DONE]"

// DefaultMaxFrameBytes bounds a single line and the data of one frame.
const DefaultMaxFrameBytes = 1 << 20

// ErrFrameTooLarge is returned when a line or a frame exceeds the limit.
var ErrFrameTooLarge = errors.New("sse: frame too large")

// Frame is one dispatched event.
type Frame struct {
	Event string `json:"event,omitempty"`
	Data  string `json:"data"`
	ID    string `json:"id,omitempty"`
}

// Decoder reads frames from a stream.
type Decoder struct {
	scanner  *bufio.Scanner
	maxBytes int

	event string
	id    string
	data  []string
	size  int
}

// NewDecoder returns a decoder reading from r. A non-positive maxFrameBytes
// selects DefaultMaxFrameBytes.
func NewDecoder(r io.Reader, maxFrameBytes int) *Decoder {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	scanner := bufio.NewScanner(r)
	initial := 64 * 1024
	if initial > maxFrameBytes {
		initial = maxFrameBytes
	}
	scanner.Buffer(make([]byte, 0, initial), maxFrameBytes)
	return &Decoder{scanner: scanner, maxBytes: maxFrameBytes}
}

// Next returns the next frame. It returns io.EOF once the stream is
// exhausted and no frame is pending.
func (d *Decoder) Next() (Frame, error) {
	for d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")

		if line == "" {
			if frame, ok := d.dispatch(); ok {
				return frame, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, isField := splitField(line)
		if !isField {
			if frame, ok := finish(Frame{Data: line}); ok {
				return frame, nil
			}
			continue
		}
		switch field {
		case "event":
			d.event = strings.ToLower(strings.TrimSpace(value))
		case "id":
			d.id = value
		case "data":
			d.size += len(value) + 1
			if d.size > d.maxBytes {
				d.reset()
				return Frame{}, ErrFrameTooLarge
			}
			d.data = append(d.data, value)
		}
	}

	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return Frame{}, ErrFrameTooLarge
		}
		return Frame{}, fmt.Errorf("sse: read: %w", err)
	}
	if frame, ok := d.dispatch(); ok {
		return frame, nil
	}
	return Frame{}, io.EOF
}

// dispatch emits the pending frame, if any, and resets the frame state.
func (d *Decoder) dispatch() (Frame, bool) {
	if len(d.data) == 0 {
		d.reset()
		return Frame{}, false
	}
	frame := Frame{Event: d.event, Data: strings.Join(d.data, "\n"), ID: d.id}
	d.reset()
	return finish(frame)
}

func (d *Decoder) reset() {
	d.event = ""
	d.id = ""
	d.data = d.data[:0]
	d.size = 0
}

// finish drops frames without data and maps the done sentinel.
func finish(frame Frame) (Frame, bool) {
	if strings.TrimSpace(frame.Data) == "" {
		return Frame{}, false
	}
	if strings.TrimSpace(frame.Data) == DoneSentinel {
		frame.Event = "done"
		frame.Data = ""
	}
	return frame, true
}

// splitField parses "field: value". Lines whose field name is not an SSE
// field are reported as plain lines.
func splitField(line string) (string, string, bool) {
	name, value, found := strings.Cut(line, ":")
	if !found {
		name, value = line, ""
	}
	switch name {
	case "event", "data", "id", "retry":
	default:
		return "", "", false
	}
	return name, strings.TrimPrefix(value, " "), true
}

// ReadAll decodes every frame of r.
func ReadAll(r io.Reader, maxFrameBytes int) ([]Frame, error) {
	dec := NewDecoder(r, maxFrameBytes)
	var frames []Frame
	for {
		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}
