package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamline/pkg/logger"
)

// jsonLine decodes the single JSON record in buf.
func jsonLine(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	ExpectWithOffset(1, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

var _ = Describe("New", func() {
	var buf bytes.Buffer

	BeforeEach(func() {
		buf.Reset()
	})

	It("writes text records at info level by default", func() {
		l := logger.New(logger.WithWriter(&buf))
		l.Debug("hidden")
		l.Info("retrying", "attempt", 2)

		Expect(buf.String()).NotTo(ContainSubstring("hidden"))
		Expect(buf.String()).To(ContainSubstring("msg=retrying"))
		Expect(buf.String()).To(ContainSubstring("attempt=2"))
	})

	It("enables debug records with WithDebug", func() {
		l := logger.New(logger.WithWriter(&buf), logger.WithDebug(true))
		l.Debug("keep-alive skipped")

		Expect(buf.String()).To(ContainSubstring("keep-alive skipped"))
	})

	It("honors WithLevel", func() {
		l := logger.New(logger.WithWriter(&buf), logger.WithLevel(slog.LevelWarn))
		l.Info("quiet")
		l.Warn("malformed frame")

		Expect(buf.String()).NotTo(ContainSubstring("quiet"))
		Expect(buf.String()).To(ContainSubstring("malformed frame"))
	})

	It("writes JSON with FormatJSON", func() {
		l := logger.New(logger.WithWriter(&buf), logger.WithFormat(logger.FormatJSON))
		l.With("model", "openai/gpt-4o").WithGroup("usage").Info("recorded", "prompt_tokens", 3)

		parsed := jsonLine(&buf)
		Expect(parsed["msg"]).To(Equal("recorded"))
		Expect(parsed["model"]).To(Equal("openai/gpt-4o"))
		Expect(parsed["usage"]).To(HaveKeyWithValue("prompt_tokens", BeNumerically("==", 3)))
	})

	It("writes through the charm handler with FormatPretty", func() {
		l := logger.New(logger.WithWriter(&buf), logger.WithFormat(logger.FormatPretty))
		l.Warn("connection lost", "attempt", 1)

		Expect(buf.String()).To(ContainSubstring("connection lost"))
		Expect(buf.String()).To(ContainSubstring("attempt=1"))
	})

	It("filters the pretty handler by level", func() {
		l := logger.New(
			logger.WithWriter(&buf),
			logger.WithFormat(logger.FormatPretty),
			logger.WithLevel(slog.LevelError),
		)
		l.Warn("dropped")

		Expect(buf.String()).To(BeEmpty())
	})
})

var _ = Describe("ParseFormat", func() {
	DescribeTable("accepted names",
		func(in string, want logger.Format) {
			f, err := logger.ParseFormat(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(f).To(Equal(want))
		},
		Entry("pretty", "pretty", logger.FormatPretty),
		Entry("text", "text", logger.FormatText),
		Entry("json upper case", " JSON ", logger.FormatJSON),
	)

	It("rejects unknown names", func() {
		_, err := logger.ParseFormat("xml")
		Expect(err).To(MatchError(ContainSubstring(`unknown log format "xml"`)))
	})
})

var _ = Describe("Nop and OrNop", func() {
	It("discards every level", func() {
		l := logger.Nop()
		Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		Expect(func() { l.With("k", "v").WithGroup("g").Error("x") }).NotTo(Panic())
	})

	It("keeps a non-nil logger", func() {
		var buf bytes.Buffer
		logger.OrNop(logger.New(logger.WithWriter(&buf))).Info("kept")
		Expect(buf.String()).To(ContainSubstring("kept"))
	})

	It("substitutes Nop for nil", func() {
		Expect(logger.OrNop(nil).Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
	})
})

var _ = Describe("Multi", func() {
	It("sends each record to every logger at its own level", func() {
		var console, file bytes.Buffer
		l := logger.Multi(
			logger.New(logger.WithWriter(&console)),
			logger.New(logger.WithWriter(&file), logger.WithFormat(logger.FormatJSON), logger.WithDebug(true)),
		)

		l.Debug("frame decoded")

		Expect(console.String()).To(BeEmpty())
		Expect(jsonLine(&file)["msg"]).To(Equal("frame decoded"))
	})

	It("carries attrs and groups to every logger", func() {
		var a, b bytes.Buffer
		l := logger.Multi(
			logger.New(logger.WithWriter(&a), logger.WithFormat(logger.FormatJSON)),
			logger.New(logger.WithWriter(&b), logger.WithFormat(logger.FormatJSON)),
		)

		l.With("conversation_id", "c1").WithGroup("req").Info("chat", "stream", true)

		for _, buf := range []*bytes.Buffer{&a, &b} {
			parsed := jsonLine(buf)
			Expect(parsed["conversation_id"]).To(Equal("c1"))
			Expect(parsed["req"]).To(HaveKeyWithValue("stream", true))
		}
	})

	It("skips nil loggers", func() {
		var buf bytes.Buffer
		l := logger.Multi(nil, logger.New(logger.WithWriter(&buf)))
		l.Info("one")
		Expect(buf.String()).To(ContainSubstring("one"))
	})

	It("keeps delivering when one handler fails", func() {
		var buf bytes.Buffer
		l := logger.Multi(
			slog.New(failingHandler{}),
			logger.New(logger.WithWriter(&buf)),
		)

		err := l.Handler().Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "still here", 0))
		Expect(err).To(MatchError("disk full"))
		Expect(buf.String()).To(ContainSubstring("still here"))
	})
})
