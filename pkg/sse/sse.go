// Package sse decodes the server-sent event stream of a chat completions
// endpoint into llm.StreamEvent values.
//
// The decoder is a line state machine fed with raw byte fragments of
// arbitrary size:
//
//	┌──────────────┐  '\n'   ┌────────────┐
//	│ ACCUMULATING │───────▶│ LINE_READY │──┐
//	└──────────────┘◀───────└────────────┘  │ [DONE]
//	       ▲          processed              ▼
//	       │ Reset                    ┌────────────┐
//	       └──────────────────────────│ TERMINATED │
//	                                  └────────────┘
//
// Lines are split on raw bytes, so a multi-byte UTF-8 rune split across two
// fragments decodes the same as if it arrived whole.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

const (
	// DataPrefix is the field name carrying the JSON payload of a line.
	DataPrefix = "data:"

	// DoneSentinel is the payload that marks the end of a stream.
	DoneSentinel = "[DONE]"

	// OpenRouterKeepAlive is the comment OpenRouter sends while a model is
	// still processing.
	OpenRouterKeepAlive = ": OPENROUTER"
)
