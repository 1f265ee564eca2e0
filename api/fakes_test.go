package api

import (
	"context"
	"iter"
	"sync"

	"github.com/papercomputeco/streamline/pkg/llm"
)

// fakeStreamer replays a fixed list of events, then err if set.
type fakeStreamer struct {
	mu     sync.Mutex
	events []llm.StreamEvent
	err    error
	last   *llm.CompletionRequest
}

func (f *fakeStreamer) Complete(_ context.Context, req *llm.CompletionRequest) iter.Seq2[llm.StreamEvent, error] {
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()

	return func(yield func(llm.StreamEvent, error) bool) {
		for _, ev := range f.events {
			if !yield(ev, nil) {
				return
			}
		}
		if f.err != nil {
			yield(llm.StreamEvent{}, f.err)
		}
	}
}

func (f *fakeStreamer) Model() string { return "default-model" }

func (f *fakeStreamer) lastRequest() *llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakeCompleter struct {
	comp *llm.Completion
	err  error
	last *llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.comp, nil
}
