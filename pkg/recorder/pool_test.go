package recorder_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamline/pkg/eventstream"
	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/logger"
	"github.com/papercomputeco/streamline/pkg/recorder"
	"github.com/papercomputeco/streamline/pkg/storage"
	"github.com/papercomputeco/streamline/pkg/storage/inmemory"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.CompletionRecordedEvent
	err    error
}

func (c *capturingPublisher) PublishCompletion(_ context.Context, ev *eventstream.CompletionRecordedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *capturingPublisher) Close() error { return nil }

func ptr(v int) *int { return &v }

func job(conversationID, question, answer, generationID string) recorder.Job {
	return recorder.Job{
		ConversationID: conversationID,
		Request: llm.NewCompletionRequest("openai/gpt-3.5-turbo", []llm.Message{
			llm.SystemMessage("You are a helpful assistant."),
			llm.UserMessage(question),
		}, true),
		Completion: &llm.Completion{
			Content: answer,
			Metadata: &llm.Metadata{
				GenerationID:     generationID,
				Model:            "openai/gpt-3.5-turbo-0125",
				PromptTokens:     ptr(12),
				CompletionTokens: ptr(3),
			},
		},
		Streaming: true,
	}
}

// newTestPool creates a worker pool backed by an in-memory driver.
// Callers should "wp.Close()" to drain enqueued jobs before asserting storage state.
func newTestPool(pub eventstream.Publisher) (*recorder.Pool, *inmemory.Driver) {
	driver := inmemory.NewDriver()
	wp, err := recorder.NewPool(&recorder.Config{
		Driver:    driver,
		Publisher: pub,
		Logger:    logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())
	return wp, driver
}

var _ = Describe("Pool", func() {
	var (
		ctx context.Context
		pub *capturingPublisher
	)

	BeforeEach(func() {
		ctx = context.Background()
		pub = &capturingPublisher{}
	})

	It("requires a driver", func() {
		_, err := recorder.NewPool(&recorder.Config{})
		Expect(err).To(HaveOccurred())
	})

	Describe("Enqueue", func() {
		It("stores the user and assistant turns once drained", func() {
			wp, driver := newTestPool(pub)
			Expect(wp.Enqueue(job("conv-1", "What is 2+2?", "4", "gen-1"))).To(BeTrue())
			wp.Close()

			turns, err := driver.List(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))

			Expect(turns[0].Role).To(Equal(llm.RoleUser))
			Expect(turns[0].Content).To(Equal("What is 2+2?"))
			Expect(turns[0].GenerationID).To(BeEmpty())

			Expect(turns[1].Role).To(Equal(llm.RoleAssistant))
			Expect(turns[1].Content).To(Equal("4"))
			Expect(turns[1].GenerationID).To(Equal("gen-1"))
			Expect(turns[1].Model).To(Equal("openai/gpt-3.5-turbo-0125"))
			Expect(*turns[1].PromptTokens).To(Equal(12))
		})

		It("publishes an event with the stored turn ids", func() {
			wp, driver := newTestPool(pub)
			wp.Enqueue(job("conv-1", "hi", "hello", "gen-2"))
			wp.Close()

			Expect(pub.events).To(HaveLen(1))
			ev := pub.events[0]
			Expect(ev.ConversationID).To(Equal("conv-1"))
			Expect(ev.GenerationID).To(Equal("gen-2"))
			Expect(ev.Streaming).To(BeTrue())
			Expect(ev.TurnIDs).To(HaveLen(2))

			stored, err := driver.Get(ctx, ev.TurnIDs[1])
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Content).To(Equal("hello"))
		})

		It("keeps storing when publishing fails", func() {
			pub.err = errors.New("broker down")
			wp, driver := newTestPool(pub)
			wp.Enqueue(job("conv-1", "hi", "hello", "gen-3"))
			wp.Close()

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("works without a publisher", func() {
			wp, driver := newTestPool(nil)
			wp.Enqueue(job("conv-1", "hi", "hello", "gen-4"))
			wp.Close()

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("drops jobs when the queue is full", func() {
			driver := inmemory.NewDriver()
			blocking := &blockingDriver{Driver: driver, release: make(chan struct{})}
			wp, err := recorder.NewPool(&recorder.Config{
				Driver:     blocking,
				NumWorkers: 1,
				QueueSize:  1,
				Logger:     logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(wp.Enqueue(job("a", "1", "1", "g-1"))).To(BeTrue())
			Eventually(blocking.waiting).Should(BeTrue())
			Expect(wp.Enqueue(job("b", "2", "2", "g-2"))).To(BeTrue())
			Expect(wp.Enqueue(job("c", "3", "3", "g-3"))).To(BeFalse())

			close(blocking.release)
			wp.Close()
		})

		It("tolerates Close being called twice", func() {
			wp, _ := newTestPool(pub)
			wp.Close()
			Expect(wp.Close).NotTo(Panic())
		})
	})
})

var _ = Describe("Record", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
	})

	It("refreshes usage instead of duplicating a known generation", func() {
		_, err := recorder.Record(ctx, driver, job("conv-1", "hi", "hello", "gen-1"), nil)
		Expect(err).NotTo(HaveOccurred())

		again := job("conv-1", "hi", "hello", "gen-1")
		again.Completion.Metadata.CompletionTokens = ptr(40)
		ids, err := recorder.Record(ctx, driver, again, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(HaveLen(2))

		got, err := driver.GetByGenerationID(ctx, "gen-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(*got.CompletionTokens).To(Equal(40))

		assistants := 0
		turns, _ := driver.List(ctx, "conv-1")
		for _, t := range turns {
			if t.Role == llm.RoleAssistant {
				assistants++
			}
		}
		Expect(assistants).To(Equal(1))
	})

	It("stores a reply without metadata", func() {
		j := job("conv-1", "hi", "hello", "")
		j.Completion.Metadata = nil
		ids, err := recorder.Record(ctx, driver, j, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(HaveLen(2))

		got, err := driver.Get(ctx, ids[1])
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Model).To(Equal("openai/gpt-3.5-turbo"))
		Expect(got.PromptTokens).To(BeNil())
	})

	It("rejects an incomplete job", func() {
		_, err := recorder.Record(ctx, driver, recorder.Job{ConversationID: "x"}, nil)
		Expect(err).To(HaveOccurred())
	})
})

// blockingDriver parks the first Insert until release is closed.
type blockingDriver struct {
	*inmemory.Driver
	release chan struct{}

	mu      sync.Mutex
	blocked bool
}

func (b *blockingDriver) Insert(ctx context.Context, t *storage.Turn) (storage.InsertResult, error) {
	b.mu.Lock()
	b.blocked = true
	b.mu.Unlock()
	<-b.release
	return b.Driver.Insert(ctx, t)
}

func (b *blockingDriver) waiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocked
}
