package llm

import "slices"

// CompletionRequest is the JSON body sent to the chat completions endpoint:
//
//	{"model": "...", "messages": [{"role": "...", "content": "..."}], "stream": true}
//
// A request is built fresh for every call and is never mutated after it has
// been handed to a transport.
type CompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// NewCompletionRequest builds a request from a model identifier and an
// ordered message list. The messages are copied. An empty list is forwarded
// as-is; the remote decides whether it is acceptable.
func NewCompletionRequest(model string, messages []Message, stream bool) *CompletionRequest {
	msgs := slices.Clone(messages)
	if msgs == nil {
		msgs = []Message{}
	}

	return &CompletionRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
	}
}

// WithStream returns a copy of r with the stream flag set. r is left untouched.
func (r *CompletionRequest) WithStream(stream bool) *CompletionRequest {
	return NewCompletionRequest(r.Model, r.Messages, stream)
}

// LastUserMessage returns the most recent user message in the request, if any.
func (r *CompletionRequest) LastUserMessage() (Message, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i], true
		}
	}
	return Message{}, false
}
