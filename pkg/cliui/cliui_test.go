package cliui_test

import (
	"bytes"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamline/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("FormatDuration", func() {
		It("formats sub-second durations in milliseconds", func() {
			Expect(cliui.FormatDuration(42 * time.Millisecond)).To(Equal("42ms"))
		})

		It("formats longer durations in seconds", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("Mark", func() {
		It("distinguishes success from failure", func() {
			Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
			Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
		})
	})

	Describe("Step", func() {
		It("returns the error of fn and prints the final mark", func() {
			var buf bytes.Buffer
			err := cliui.Step(&buf, "connecting", func() error {
				return errors.New("refused")
			})
			Expect(err).To(MatchError("refused"))
			Expect(buf.String()).To(ContainSubstring(cliui.FailMark + " connecting"))
			Expect(buf.String()).To(HaveSuffix("\n"))
		})

		It("writes a single line without spinner frames to non-terminals", func() {
			var buf bytes.Buffer
			Expect(cliui.Step(&buf, "fetching", func() error { return nil })).To(Succeed())
			Expect(buf.String()).NotTo(ContainSubstring("\r"))
			Expect(strings.Count(buf.String(), "\n")).To(Equal(1))
			Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark + " fetching"))
		})
	})

	Describe("RenderMarkdown", func() {
		It("keeps the text of the document", func() {
			out, err := cliui.RenderMarkdown("# Title\n\nsome *text*")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Title"))
			Expect(out).To(ContainSubstring("text"))
		})
	})
})
