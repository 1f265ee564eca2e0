package completion

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/retry"
	"github.com/papercomputeco/streamline/pkg/sse"
)

// readBufferSize is the size of a single read from the response body.
const readBufferSize = 4 << 10

// errStopped ends the retry loop when the consumer leaves the range loop.
var errStopped = errors.New("stream consumer stopped")

// StreamingClient delivers completions incrementally. It is safe for
// concurrent use; every call owns its own session, decoder and attempt
// counter.
type StreamingClient struct {
	*core
}

// NewStreamingClient resolves the credential and builds a client. It fails
// with *ConfigError when no credential is available.
func NewStreamingClient(opts ...Option) (*StreamingClient, error) {
	c, err := newCore(opts)
	if err != nil {
		return nil, err
	}
	return &StreamingClient{core: c}, nil
}

// Complete returns a lazy, single-pass sequence of stream events for req. No
// request is sent until the sequence is ranged over.
//
// A successful stream ends with exactly one llm.KindEnd event. A failed one
// ends with a single non-nil error: *retry.ExhaustedError when every attempt
// failed, the error itself when it is not retryable, or the context error
// when ctx is cancelled. Breaking out of the loop closes the session.
//
// The request is sent with stream set to true regardless of req.Stream.
func (c *StreamingClient) Complete(ctx context.Context, req *llm.CompletionRequest) iter.Seq2[llm.StreamEvent, error] {
	req = req.WithStream(true)

	var consumed atomic.Bool
	return func(yield func(llm.StreamEvent, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(llm.StreamEvent{}, ErrStreamConsumed)
			return
		}
		c.run(ctx, req, yield)
	}
}

// Stream is Complete with a request built from the client's model.
func (c *StreamingClient) Stream(ctx context.Context, messages []llm.Message) iter.Seq2[llm.StreamEvent, error] {
	return c.Complete(ctx, llm.NewCompletionRequest(c.model, messages, true))
}

func (c *StreamingClient) run(ctx context.Context, req *llm.CompletionRequest, yield func(llm.StreamEvent, error) bool) {
	log := c.logger.With("model", req.Model)

	_, err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) (struct{}, error) {
		if attempt > 0 && c.restart == RestartMarked {
			if !yield(llm.AttemptRestarted(attempt), nil) {
				return struct{}{}, retry.Final(errStopped)
			}
		}

		delivered, err := c.attempt(ctx, req, yield)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, errStopped):
			return struct{}{}, retry.Final(err)
		case c.restart == ResumeUnsupported && delivered > 0 && ctx.Err() == nil:
			log.Error("stream failed after delivering events",
				"attempt", attempt+1,
				"delivered", delivered,
				"error", err,
			)
			return struct{}{}, retry.Final(err)
		}
		return struct{}{}, err
	},
		retry.WithTimer(c.timer),
		retry.WithLogger(log),
	)

	switch {
	case err == nil, errors.Is(err, errStopped):
		return
	case ctx.Err() != nil:
		log.Debug("stream cancelled", "error", err)
	}
	yield(llm.StreamEvent{}, err)
}

// attempt runs one request/decode cycle and returns the number of events it
// yielded. It returns errStopped when the consumer ends the loop and the
// context error as soon as ctx is done; no event is yielded after that.
func (c *StreamingClient) attempt(ctx context.Context, req *llm.CompletionRequest, yield func(llm.StreamEvent, error) bool) (delivered int, err error) {
	session, err := c.transport.Open(ctx, req)
	if err != nil {
		return 0, err
	}
	defer session.Close()

	dec := sse.NewDecoder(c.decoderOpts...)
	emit := func(events []llm.StreamEvent) error {
		for _, ev := range events {
			if ev.Kind == llm.KindMetadata && !c.includeMetadata {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if !yield(ev, nil) {
				return errStopped
			}
			delivered++
		}
		return nil
	}

	buf := make([]byte, readBufferSize)
	for {
		n, readErr := session.Read(buf)
		if n > 0 {
			if err := emit(dec.Feed(buf[:n])); err != nil {
				return delivered, err
			}
			if dec.Terminated() {
				return delivered, nil
			}
			if err := ctx.Err(); err != nil {
				return delivered, err
			}
		}

		switch {
		case readErr == nil:
			continue
		case errors.Is(readErr, io.EOF):
			if err := emit(dec.Flush()); err != nil {
				return delivered, err
			}
			if !dec.Terminated() {
				c.logger.Debug("stream ended without sentinel", "model", req.Model)
				err := emit([]llm.StreamEvent{llm.EndOfStream()})
				return delivered, err
			}
			return delivered, nil
		default:
			return delivered, readErr
		}
	}
}
