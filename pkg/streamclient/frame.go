package streamclient

import (
	"strings"
)

// Frame is one decoded server-sent event.
type Frame struct {
	Event string
	Data  string
}

const defaultEvent = "message"

// SplitFrames appends incoming to the unterminated tail of the previous call
// and returns every complete frame plus the new tail. It holds no state, so
// the result does not depend on how the stream was chunked.
func SplitFrames(pending, incoming string) ([]Frame, string) {
	text := strings.ReplaceAll(pending+incoming, "\r\n", "\n")
	blocks := strings.Split(text, "\n\n")
	remaining := blocks[len(blocks)-1]

	var frames []Frame
	for _, block := range blocks[:len(blocks)-1] {
		if f, ok := parseFrame(block); ok {
			frames = append(frames, f)
		}
	}
	return frames, remaining
}

// parseFrame decodes one blank-line-delimited block. Blocks carrying no data
// line, such as keep-alive comments, are skipped.
func parseFrame(block string) (Frame, bool) {
	f := Frame{Event: defaultEvent}
	var data []string
	hasData := false
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			if value != "" {
				f.Event = value
			}
		case "data":
			data = append(data, value)
			hasData = true
		}
	}
	if !hasData {
		return Frame{}, false
	}
	f.Data = strings.Join(data, "\n")
	return f, true
}

// FrameReader turns a transport that only reports "the whole body so far"
// into a sequence of frames. Each Advance consumes just the unseen suffix.
type FrameReader struct {
	seen    int
	pending string
}

// Advance takes the cumulative buffer and returns frames completed by the
// bytes added since the previous call.
func (r *FrameReader) Advance(buffer []byte) []Frame {
	if len(buffer) <= r.seen {
		return nil
	}
	incoming := string(buffer[r.seen:])
	r.seen = len(buffer)
	frames, remaining := SplitFrames(r.pending, incoming)
	r.pending = remaining
	return frames
}

// Finish parses whatever is left once the body has ended, for servers that
// omit the final blank line.
func (r *FrameReader) Finish() []Frame {
	rest := strings.TrimRight(strings.ReplaceAll(r.pending, "\r\n", "\n"), "\n")
	r.pending = ""
	if rest == "" {
		return nil
	}
	if f, ok := parseFrame(rest); ok {
		return []Frame{f}
	}
	return nil
}

// Pending reports the unterminated tail currently held.
func (r *FrameReader) Pending() string {
	return r.pending
}
