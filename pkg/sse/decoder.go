package sse

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/logger"
	"github.com/papercomputeco/streamline/pkg/utils"
)

// maxLoggedFragment bounds how much of a malformed line ends up in the logs.
const maxLoggedFragment = 120

// Decoder turns a fragmented byte stream into stream events. It is not safe
// for concurrent use; each stream attempt owns its own Decoder.
type Decoder struct {
	buf        []byte
	terminated bool

	keepAlive []string
	logger    *slog.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithKeepAliveMarkers replaces the substrings that identify keep-alive
// comment lines. Lines starting with ':' are always treated as comments.
func WithKeepAliveMarkers(markers ...string) Option {
	return func(d *Decoder) {
		d.keepAlive = markers
	}
}

// WithLogger sets the logger used for dropped lines.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		d.logger = l
	}
}

// NewDecoder returns a decoder in the ACCUMULATING state.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		keepAlive: []string{OpenRouterKeepAlive},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logger.OrNop(d.logger)
	return d
}

// Feed appends chunk to the pending buffer and returns the events produced by
// every complete line now in it. Incomplete trailing bytes stay buffered for
// the next call. Once the sentinel has been seen Feed returns nil.
func (d *Decoder) Feed(chunk []byte) []llm.StreamEvent {
	if d.terminated {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var events []llm.StreamEvent
	start := 0
	for !d.terminated {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := d.buf[start : start+i]
		start += i + 1
		if ev, ok := d.processLine(line); ok {
			events = append(events, ev)
		}
	}

	if d.terminated {
		d.buf = nil
		return events
	}

	// Compact so the buffer only holds the unterminated tail.
	n := copy(d.buf, d.buf[start:])
	d.buf = d.buf[:n]
	return events
}

// Flush processes whatever is left in the buffer as a final line. It is
// called when the underlying byte stream ends, since end of input is also a
// line boundary.
func (d *Decoder) Flush() []llm.StreamEvent {
	if d.terminated || len(d.buf) == 0 {
		d.buf = nil
		return nil
	}

	line := d.buf
	d.buf = nil
	if ev, ok := d.processLine(line); ok {
		return []llm.StreamEvent{ev}
	}
	return nil
}

// Terminated reports whether the sentinel has been seen.
func (d *Decoder) Terminated() bool {
	return d.terminated
}

// Buffered returns the number of bytes waiting for a line terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset discards buffered bytes and returns the decoder to ACCUMULATING.
func (d *Decoder) Reset() {
	d.buf = nil
	d.terminated = false
}

// processLine applies the per-line rules. The bool is false when the line
// produced no event.
func (d *Decoder) processLine(raw []byte) (llm.StreamEvent, bool) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return llm.StreamEvent{}, false
	}
	if d.isKeepAlive(line) {
		d.logger.Debug("skipping keep-alive", "line", line)
		return llm.StreamEvent{}, false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, DataPrefix))
	if payload == DoneSentinel {
		d.terminated = true
		return llm.EndOfStream(), true
	}
	if payload == "" || d.isKeepAlive(payload) {
		return llm.StreamEvent{}, false
	}

	return d.decodePayload(payload)
}

func (d *Decoder) isKeepAlive(line string) bool {
	if strings.HasPrefix(line, ":") {
		return true
	}
	for _, marker := range d.keepAlive {
		if marker != "" && strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// wireChunk defers usage decoding so that "usage": null and a missing usage
// key are both treated as absent.
type wireChunk struct {
	llm.ChunkPayload
	Usage json.RawMessage `json:"usage,omitempty"`
}

func (d *Decoder) decodePayload(payload string) (llm.StreamEvent, bool) {
	var chunk wireChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		d.logger.Warn("dropping malformed stream line",
			"error", err,
			"fragment", utils.Truncate(payload, maxLoggedFragment),
		)
		return llm.StreamEvent{}, false
	}

	usage := bytes.TrimSpace(chunk.Usage)
	if len(usage) > 0 && usage[0] == '{' {
		var u llm.Usage
		if err := json.Unmarshal(usage, &u); err != nil {
			d.logger.Warn("dropping stream line with malformed usage",
				"error", err,
				"fragment", utils.Truncate(payload, maxLoggedFragment),
			)
			return llm.StreamEvent{}, false
		}
		chunk.ChunkPayload.Usage = &u
		return llm.MetadataRecord(llm.MetadataFromChunk(&chunk.ChunkPayload)), true
	}

	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return llm.StreamEvent{}, false
	}
	return llm.ContentFragment(chunk.Choices[0].Delta.Content), true
}
