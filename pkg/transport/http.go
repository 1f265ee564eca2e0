package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/logger"
)

const (
	// DefaultEndpoint is the OpenRouter chat completions endpoint.
	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

	// DefaultTimeout bounds a whole exchange, streaming included.
	DefaultTimeout = 5 * time.Minute

	// maxErrorBody bounds how much of a failed response is kept.
	maxErrorBody = 4 << 10
)

// HTTPTransport posts requests to a chat completions endpoint. It is
// read-only after construction and safe for concurrent use.
type HTTPTransport struct {
	endpoint string
	apiKey   string
	referer  string
	title    string
	client   *http.Client
	logger   *slog.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithAttribution sets the OpenRouter HTTP-Referer and X-Title headers.
func WithAttribution(referer, title string) HTTPOption {
	return func(t *HTTPTransport) {
		t.referer = referer
		t.title = title
	}
}

// WithLogger sets the transport logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(t *HTTPTransport) {
		t.logger = l
	}
}

// NewHTTPTransport returns a transport posting to endpoint with a bearer key.
// An empty endpoint means DefaultEndpoint.
func NewHTTPTransport(endpoint, apiKey string, opts ...HTTPOption) *HTTPTransport {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	t := &HTTPTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			// Generation of long answers can be slow
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logger.OrNop(t.logger)
	return t
}

// Endpoint returns the URL requests are posted to.
func (t *HTTPTransport) Endpoint() string {
	return t.endpoint
}

// Open posts req and returns the response body of a 2xx reply.
func (t *HTTPTransport) Open(ctx context.Context, req *llm.CompletionRequest) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating completion request: %w", err)
	}
	t.setHeaders(httpReq, req.Stream)

	t.logger.Debug("sending completion request",
		"url", t.endpoint,
		"model", req.Model,
		"stream", req.Stream,
		"messages", len(req.Messages),
	)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		t.logger.Debug("completion endpoint returned error",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, &TransportError{
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(respBody)),
		}
	}

	s := NewSession(ctx, resp.Body)
	s.StatusCode = resp.StatusCode
	return s, nil
}

func (t *HTTPTransport) setHeaders(r *http.Request, stream bool) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+t.apiKey)
	if stream {
		r.Header.Set("Accept", "text/event-stream")
	} else {
		r.Header.Set("Accept", "application/json")
	}
	if t.referer != "" {
		r.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		r.Header.Set("X-Title", t.title)
	}
}
