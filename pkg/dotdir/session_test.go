package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamline/pkg/dotdir"
	"github.com/papercomputeco/streamline/pkg/llm"
)

var _ = Describe("dotdir.Manager session", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-session-*")
		Expect(err).NotTo(HaveOccurred())
		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadSession", func() {
		It("returns nil when no session file exists", func() {
			state, err := m.LoadSession(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})

		It("loads a valid session", func() {
			data := `{"conversation_id":"c-1","model":"openai/gpt-4o","messages":[{"role":"user","content":"hello"},{"role":"assistant","content":"hi there"}]}`
			Expect(os.WriteFile(filepath.Join(tmpDir, "session.json"), []byte(data), 0o600)).To(Succeed())

			state, err := m.LoadSession(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.ConversationID).To(Equal("c-1"))
			Expect(state.Model).To(Equal("openai/gpt-4o"))
			Expect(state.Messages).To(Equal([]llm.Message{
				llm.UserMessage("hello"),
				llm.AssistantMessage("hi there"),
			}))
		})

		It("returns error for invalid JSON", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "session.json"), []byte("not json"), 0o600)).To(Succeed())

			state, err := m.LoadSession(tmpDir)
			Expect(err).To(HaveOccurred())
			Expect(state).To(BeNil())
		})
	})

	Describe("SaveSession", func() {
		It("persists the session and reads it back", func() {
			state := &dotdir.SessionState{
				ConversationID: "c-2",
				Messages: []llm.Message{
					llm.UserMessage("what is Go?"),
					llm.AssistantMessage("Go is a programming language."),
				},
			}
			Expect(m.SaveSession(state, tmpDir)).To(Succeed())

			loaded, err := m.LoadSession(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(state))
		})

		It("rejects a nil state", func() {
			Expect(m.SaveSession(nil, tmpDir)).To(HaveOccurred())
		})
	})

	Describe("ClearSession", func() {
		It("removes the session file", func() {
			Expect(m.SaveSession(&dotdir.SessionState{ConversationID: "c-3"}, tmpDir)).To(Succeed())
			Expect(m.ClearSession(tmpDir)).To(Succeed())

			state, err := m.LoadSession(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})

		It("is a no-op when nothing is saved", func() {
			Expect(m.ClearSession(tmpDir)).To(Succeed())
		})
	})
})
