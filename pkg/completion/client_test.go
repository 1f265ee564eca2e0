package completion_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamline/pkg/completion"
	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/retry"
)

const completionBody = `{
  "id": "gen-99",
  "model": "openai/gpt-3.5-turbo",
  "created": 1700000000,
  "object": "chat.completion",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello there"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 4, "completion_tokens": 2, "total_tokens": 6}
}`

var _ = Describe("Client", func() {
	var (
		upstream *httptest.Server
		calls    atomic.Int32
		failFor  int32
		status   int
		body     string
		lastReq  map[string]any
		timer    *timerRecorder
	)

	newClient := func(opts ...completion.Option) *completion.Client {
		base := []completion.Option{
			completion.WithAPIKey("sk-test"),
			completion.WithEndpoint(upstream.URL),
			completion.WithTimer(timer),
		}
		c, err := completion.NewClient(append(base, opts...)...)
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		calls.Store(0)
		failFor = 0
		status = http.StatusBadGateway
		body = completionBody
		timer = &timerRecorder{}

		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &lastReq)

			if n <= failFor {
				w.WriteHeader(status)
				_, _ = io.WriteString(w, `{"error":"try later"}`)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, body)
		}))
	})

	AfterEach(func() {
		upstream.Close()
	})

	It("returns content and metadata", func() {
		out, err := newClient().Chat(context.Background(), []llm.Message{llm.UserMessage("hi")})
		Expect(err).NotTo(HaveOccurred())

		Expect(out.Content).To(Equal("Hello there"))
		Expect(out.Metadata.GenerationID).To(Equal("gen-99"))
		Expect(out.Metadata.Model).To(Equal("openai/gpt-3.5-turbo"))
		Expect(*out.Metadata.PromptTokens).To(Equal(4))
		Expect(*out.Metadata.CompletionTokens).To(Equal(2))
		Expect(*out.Metadata.ObjectKind).To(Equal("chat.completion"))
		Expect(out.Metadata.CreatedAt.Equal(time.Unix(1700000000, 0))).To(BeTrue())

		Expect(lastReq["stream"]).To(BeFalse())
		Expect(lastReq["model"]).To(Equal(completion.DefaultModel))
	})

	It("forces stream off even when the request asks for it", func() {
		req := llm.NewCompletionRequest("m", []llm.Message{llm.UserMessage("hi")}, true)
		_, err := newClient().Complete(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(lastReq["stream"]).To(BeFalse())
		Expect(req.Stream).To(BeTrue())
	})

	It("omits metadata when disabled", func() {
		out, err := newClient(completion.WithMetadata(false)).Chat(context.Background(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Metadata).To(BeNil())
		Expect(lastReq["messages"]).To(BeEmpty())
	})

	It("retries transient failures with backoff", func() {
		failFor = 2
		out, err := newClient().Chat(context.Background(), []llm.Message{llm.UserMessage("hi")})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Content).To(Equal("Hello there"))
		Expect(calls.Load()).To(Equal(int32(3)))
		Expect(timer.delays).To(Equal([]time.Duration{500 * time.Millisecond, time.Second}))
	})

	It("reports exhaustion when every attempt fails", func() {
		failFor = 10
		_, err := newClient().Chat(context.Background(), []llm.Message{llm.UserMessage("hi")})
		Expect(errors.Is(err, retry.ErrExhausted)).To(BeTrue())
		Expect(calls.Load()).To(Equal(int32(3)))
	})

	It("does not retry a malformed reply", func() {
		body = `<html>oops</html>`
		_, err := newClient().Chat(context.Background(), []llm.Message{llm.UserMessage("hi")})
		Expect(err).To(MatchError(completion.ErrMalformedResponse))
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("rejects a reply without choices", func() {
		body = `{"id":"gen-1","choices":[]}`
		_, err := newClient().Chat(context.Background(), []llm.Message{llm.UserMessage("hi")})
		Expect(errors.Is(err, completion.ErrMalformedResponse)).To(BeTrue())
	})

	It("returns the context error when cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newClient().Chat(ctx, []llm.Message{llm.UserMessage("hi")})
		Expect(err).To(MatchError(context.Canceled))
		Expect(calls.Load()).To(BeZero())
	})
})
