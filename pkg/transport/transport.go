// Package transport sends completion requests and hands back the response
// body as a scoped byte stream.
package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/streamline/pkg/llm"
)

// Transport sends a completion request and returns the open response.
//
// Open must return the context error, unwrapped, when ctx is cancelled, and a
// *TransportError for every other failure to obtain a successful response.
type Transport interface {
	Open(ctx context.Context, req *llm.CompletionRequest) (*Session, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *llm.CompletionRequest) (*Session, error)

func (f TransportFunc) Open(ctx context.Context, req *llm.CompletionRequest) (*Session, error) {
	return f(ctx, req)
}

// Session is one open response body. It is owned by a single attempt and
// must be closed on every exit path; Close is idempotent. The session also
// closes itself when its context is done, which unblocks a pending Read.
type Session struct {
	ctx  context.Context
	body io.ReadCloser
	stop func() bool

	// StatusCode is the HTTP status of the response, 0 for non-HTTP sessions.
	StatusCode int

	once     sync.Once
	closeErr error
	closed   atomic.Bool
}

// NewSession wraps body. Read errors other than io.EOF are reported as
// *TransportError, or as ctx.Err() once ctx is done.
func NewSession(ctx context.Context, body io.ReadCloser) *Session {
	s := &Session{ctx: ctx, body: body}
	s.stop = context.AfterFunc(ctx, func() {
		_ = s.Close()
	})
	return s
}

// Read reads raw response bytes.
func (s *Session) Read(p []byte) (int, error) {
	if s.closed.Load() {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, ErrSessionClosed
	}

	n, err := s.body.Read(p)
	if err == nil || errors.Is(err, io.EOF) {
		return n, err
	}
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return n, ctxErr
	}
	return n, &TransportError{Cause: err}
}

// ReadAll reads the remaining body and closes the session.
func (s *Session) ReadAll() ([]byte, error) {
	defer s.Close()
	return io.ReadAll(s)
}

// Close releases the underlying connection.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.stop()
		s.closed.Store(true)
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}
