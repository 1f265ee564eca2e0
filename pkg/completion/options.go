// Package completion provides the streaming and non-streaming chat completion
// clients.
package completion

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/papercomputeco/streamline/pkg/logger"
	"github.com/papercomputeco/streamline/pkg/retry"
	"github.com/papercomputeco/streamline/pkg/sse"
	"github.com/papercomputeco/streamline/pkg/transport"
)

const (
	// DefaultModel is used by Stream and Chat when no model is configured.
	DefaultModel = "openai/gpt-3.5-turbo"

	// DefaultAPIKeyEnv is the environment variable holding the credential.
	DefaultAPIKeyEnv = "OPENROUTER_API_KEY"
)

// RestartPolicy decides what a streaming caller observes when a failed
// attempt is re-issued.
type RestartPolicy string

const (
	// RestartMarked yields an AttemptRestarted event before the events of
	// each retry attempt.
	RestartMarked RestartPolicy = "restart-marked"

	// RestartFresh re-issues silently. Content already delivered by the
	// failed attempt may be delivered again.
	RestartFresh RestartPolicy = "restart-fresh"

	// ResumeUnsupported retries only attempts that failed before delivering
	// any event; later failures end the stream with the error.
	ResumeUnsupported RestartPolicy = "resume-unsupported"
)

// Valid reports whether p is a known policy.
func (p RestartPolicy) Valid() bool {
	switch p {
	case RestartMarked, RestartFresh, ResumeUnsupported:
		return true
	default:
		return false
	}
}

type options struct {
	apiKey    string
	apiKeyEnv string
	envLookup func(string) (string, bool)

	endpoint   string
	model      string
	referer    string
	title      string
	httpClient *http.Client
	transport  transport.Transport

	policy          retry.Policy
	restart         RestartPolicy
	includeMetadata bool
	keepAlive       []string
	timer           retry.Timer

	logger *slog.Logger
}

func defaultOptions() *options {
	return &options{
		apiKeyEnv:       DefaultAPIKeyEnv,
		envLookup:       os.LookupEnv,
		model:           DefaultModel,
		policy:          retry.DefaultPolicy(),
		restart:         RestartMarked,
		includeMetadata: true,
	}
}

// Option configures a client.
type Option func(*options)

// WithAPIKey sets the credential explicitly. It takes precedence over the
// environment.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithAPIKeyEnv changes the environment variable consulted when no explicit
// key is given.
func WithAPIKeyEnv(name string) Option {
	return func(o *options) {
		o.apiKeyEnv = name
	}
}

// WithEnvLookup replaces os.LookupEnv for credential resolution.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(o *options) {
		o.envLookup = fn
	}
}

// WithEndpoint sets the chat completions URL.
func WithEndpoint(url string) Option {
	return func(o *options) {
		o.endpoint = url
	}
}

// WithModel sets the model used by Stream and Chat.
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithAttribution sets the OpenRouter HTTP-Referer and X-Title headers.
func WithAttribution(referer, title string) Option {
	return func(o *options) {
		o.referer = referer
		o.title = title
	}
}

// WithHTTPClient replaces the HTTP client of the default transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTransport replaces the HTTP transport entirely.
func WithTransport(t transport.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithRestartPolicy sets how streaming retries are surfaced.
func WithRestartPolicy(p RestartPolicy) Option {
	return func(o *options) {
		o.restart = p
	}
}

// WithMetadata controls whether metadata records are delivered. It is on by
// default.
func WithMetadata(include bool) Option {
	return func(o *options) {
		o.includeMetadata = include
	}
}

// WithKeepAliveMarkers replaces the keep-alive markers of the stream decoder.
func WithKeepAliveMarkers(markers ...string) Option {
	return func(o *options) {
		o.keepAlive = markers
	}
}

// WithTimer replaces the wall-clock timer used for backoff waits.
func WithTimer(t retry.Timer) Option {
	return func(o *options) {
		o.timer = t
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// core is the configuration shared by both clients. It is read-only after
// construction.
type core struct {
	model           string
	transport       transport.Transport
	policy          retry.Policy
	restart         RestartPolicy
	includeMetadata bool
	decoderOpts     []sse.Option
	timer           retry.Timer
	logger          *slog.Logger
}

func newCore(opts []Option) (*core, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	key, err := resolveAPIKey(o)
	if err != nil {
		return nil, err
	}
	if !o.restart.Valid() {
		return nil, &ConfigError{Field: "restart_policy", Reason: "unknown policy " + string(o.restart)}
	}
	if err := o.policy.Validate(); err != nil {
		return nil, &ConfigError{Field: "max_attempts", Reason: "must be at least 1"}
	}

	log := logger.OrNop(o.logger)

	t := o.transport
	if t == nil {
		httpOpts := []transport.HTTPOption{
			transport.WithLogger(log),
			transport.WithAttribution(o.referer, o.title),
		}
		if o.httpClient != nil {
			httpOpts = append(httpOpts, transport.WithHTTPClient(o.httpClient))
		}
		t = transport.NewHTTPTransport(o.endpoint, key, httpOpts...)
	}

	decoderOpts := []sse.Option{sse.WithLogger(log)}
	if o.keepAlive != nil {
		decoderOpts = append(decoderOpts, sse.WithKeepAliveMarkers(o.keepAlive...))
	}

	return &core{
		model:           o.model,
		transport:       t,
		policy:          o.policy,
		restart:         o.restart,
		includeMetadata: o.includeMetadata,
		decoderOpts:     decoderOpts,
		timer:           o.timer,
		logger:          log,
	}, nil
}

// resolveAPIKey returns the explicit key, else the environment variable,
// else a ConfigError.
func resolveAPIKey(o *options) (string, error) {
	if o.apiKey != "" {
		return o.apiKey, nil
	}
	if o.envLookup != nil && o.apiKeyEnv != "" {
		if v, ok := o.envLookup(o.apiKeyEnv); ok && v != "" {
			return v, nil
		}
	}
	return "", &ConfigError{
		Field:  "api_key",
		Reason: "no API key given and " + o.apiKeyEnv + " is not set",
	}
}

// Model returns the default model of the client.
func (c *core) Model() string {
	return c.model
}
