package kafka

import (
	"context"
	"encoding/json"
	"errors"

	kafkago "github.com/segmentio/kafka-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamline/pkg/eventstream"
	"github.com/papercomputeco/streamline/pkg/logger"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		w *fakeWriter
		p *Publisher
	)

	BeforeEach(func() {
		w = &fakeWriter{}
		p = newPublisher(w, Config{Topic: "events"}, logger.Nop())
	})

	It("writes the event as JSON keyed by conversation id", func() {
		ev := eventstream.NewCompletionRecordedEvent("conv-9", "openai/gpt-3.5-turbo", true, nil, []int64{3, 4})
		Expect(p.PublishCompletion(context.Background(), ev)).To(Succeed())

		Expect(w.messages).To(HaveLen(1))
		msg := w.messages[0]
		Expect(string(msg.Key)).To(Equal("conv-9"))

		var decoded eventstream.CompletionRecordedEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(ev.EventID))
		Expect(decoded.TurnIDs).To(Equal([]int64{3, 4}))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeCompletionRecorded)}))
	})

	It("rejects nil events", func() {
		Expect(p.PublishCompletion(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(w.messages).To(BeEmpty())
	})

	It("wraps writer failures", func() {
		w.err = errors.New("broker down")
		err := p.PublishCompletion(context.Background(), eventstream.NewCompletionRecordedEvent("c", "m", false, nil, nil))
		Expect(err).To(MatchError(ContainSubstring("broker down")))
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})

	Describe("NewPublisher", func() {
		It("requires brokers", func() {
			_, err := NewPublisher(Config{})
			Expect(err).To(HaveOccurred())
		})

		It("defaults the topic", func() {
			pub, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(pub.Topic()).To(Equal(DefaultTopic))
			Expect(pub.Close()).To(Succeed())
		})
	})
})
