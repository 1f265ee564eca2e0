package completion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/retry"
	"github.com/papercomputeco/streamline/pkg/utils"
)

// Client performs single-shot completions under the same retry policy as
// StreamingClient. It is safe for concurrent use.
type Client struct {
	*core
}

// NewClient resolves the credential and builds a client. It fails with
// *ConfigError when no credential is available.
func NewClient(opts ...Option) (*Client, error) {
	c, err := newCore(opts)
	if err != nil {
		return nil, err
	}
	return &Client{core: c}, nil
}

// Complete sends req with stream set to false and returns the whole reply.
// Exhaustion is reported as *retry.ExhaustedError and cancellation as the
// context error. A reply that is not a chat completion returns
// ErrMalformedResponse without retrying.
func (c *Client) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
	req = req.WithStream(false)

	return retry.Do(ctx, c.policy, func(ctx context.Context, _ int) (*llm.Completion, error) {
		session, err := c.transport.Open(ctx, req)
		if err != nil {
			return nil, err
		}
		body, err := session.ReadAll()
		if err != nil {
			return nil, err
		}
		return c.parse(body)
	},
		retry.WithTimer(c.timer),
		retry.WithLogger(c.logger.With("model", req.Model)),
	)
}

// Chat is Complete with a request built from the client's model.
func (c *Client) Chat(ctx context.Context, messages []llm.Message) (*llm.Completion, error) {
	return c.Complete(ctx, llm.NewCompletionRequest(c.model, messages, false))
}

func (c *Client) parse(body []byte) (*llm.Completion, error) {
	var payload llm.CompletionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v (body %q)", ErrMalformedResponse, err, utils.Truncate(string(body), 120))
	}
	if len(payload.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	out := &llm.Completion{Content: payload.Choices[0].Message.Content}
	if c.includeMetadata {
		out.Metadata = llm.MetadataFromCompletion(&payload)
	}
	return out, nil
}
