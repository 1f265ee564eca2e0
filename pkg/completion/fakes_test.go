package completion_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/transport"
)

var errConnReset = errors.New("connection reset by peer")

// scriptedBody returns one chunk per Read, then fails with err or io.EOF.
type scriptedBody struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error
	closed bool
}

func (b *scriptedBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *scriptedBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *scriptedBody) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// step describes one attempt: either an open error or a body.
type step struct {
	openErr error
	chunks  []string
	readErr error
}

// fakeTransport plays one step per Open call and repeats the last step once
// the script runs out.
type fakeTransport struct {
	mu       sync.Mutex
	steps    []step
	opens    int
	requests []*llm.CompletionRequest
	bodies   []*scriptedBody
}

func newFakeTransport(steps ...step) *fakeTransport {
	return &fakeTransport{steps: steps}
}

func (f *fakeTransport) Open(ctx context.Context, req *llm.CompletionRequest) (*transport.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	s := f.steps[min(f.opens, len(f.steps)-1)]
	f.opens++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.openErr != nil {
		return nil, s.openErr
	}

	chunks := make([][]byte, len(s.chunks))
	for i, c := range s.chunks {
		chunks[i] = []byte(c)
	}
	body := &scriptedBody{chunks: chunks, err: s.readErr}
	f.bodies = append(f.bodies, body)
	return transport.NewSession(ctx, body), nil
}

func (f *fakeTransport) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTransport) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bodies {
		if !b.isClosed() {
			return false
		}
	}
	return true
}

// timerRecorder records backoff delays and fires at once.
type timerRecorder struct {
	delays []time.Duration
}

func (r *timerRecorder) After(d time.Duration) <-chan time.Time {
	r.delays = append(r.delays, d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// timerFunc adapts a function to retry.Timer.
type timerFunc func(time.Duration) <-chan time.Time

func (f timerFunc) After(d time.Duration) <-chan time.Time {
	return f(d)
}

func staticEnv(vals map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vals[k]
		return v, ok
	}
}

func unavailable() error {
	return &transport.TransportError{Status: 503, Body: "overloaded"}
}

func content(text string) string {
	return `data: {"id":"gen-42","choices":[{"index":0,"delta":{"content":"` + text + `"}}],"usage":null}` + "\n\n"
}

const usageChunk = `data: {"id":"gen-42","model":"openai/gpt-3.5-turbo","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}` + "\n\n"

const done = "data: [DONE]\n\n"
