// Package storagetest holds the ginkgo behaviors every storage.Driver must
// satisfy. Driver packages call DriverBehaviors from their own suites.
package storagetest

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/storage"
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// AssistantTurn builds an assistant turn with usage.
func AssistantTurn(conversationID, generationID, content string) *storage.Turn {
	return &storage.Turn{
		ConversationID:   conversationID,
		Role:             llm.RoleAssistant,
		Content:          content,
		GenerationID:     generationID,
		Model:            "openai/gpt-3.5-turbo",
		PromptTokens:     Ptr(10),
		CompletionTokens: Ptr(4),
	}
}

// UserTurn builds a user turn without a generation id.
func UserTurn(conversationID, content string) *storage.Turn {
	return &storage.Turn{
		ConversationID: conversationID,
		Role:           llm.RoleUser,
		Content:        content,
	}
}

// DriverBehaviors registers the shared driver specs. newDriver is called
// before each spec and must return an empty store.
func DriverBehaviors(newDriver func(ctx context.Context) storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver(ctx)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Insert", func() {
		It("stores a turn and assigns an id", func() {
			turn := AssistantTurn("conv-1", "gen-1", "hello")
			res, err := driver.Insert(ctx, turn)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(storage.StatusInserted))
			Expect(res.ID).To(BeNumerically(">", 0))
			Expect(turn.ID).To(Equal(res.ID))

			got, err := driver.Get(ctx, res.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ConversationID).To(Equal("conv-1"))
			Expect(got.Role).To(Equal(llm.RoleAssistant))
			Expect(got.Content).To(Equal("hello"))
			Expect(got.GenerationID).To(Equal("gen-1"))
			Expect(got.Model).To(Equal("openai/gpt-3.5-turbo"))
			Expect(*got.PromptTokens).To(Equal(10))
			Expect(*got.CompletionTokens).To(Equal(4))
			Expect(got.CreatedAt).NotTo(BeZero())
		})

		It("reports a duplicate generation id without writing", func() {
			first, err := driver.Insert(ctx, AssistantTurn("conv-1", "gen-dup", "first"))
			Expect(err).NotTo(HaveOccurred())

			second, err := driver.Insert(ctx, AssistantTurn("conv-2", "gen-dup", "second"))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Status).To(Equal(storage.StatusAlreadyExists))
			Expect(second.ID).To(Equal(first.ID))

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			got, err := driver.GetByGenerationID(ctx, "gen-dup")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("first"))
		})

		It("allows many turns without a generation id", func() {
			for range 3 {
				res, err := driver.Insert(ctx, UserTurn("conv-1", "hi"))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(storage.StatusInserted))
			}
			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
		})

		It("keeps nil token counts nil", func() {
			res, err := driver.Insert(ctx, UserTurn("conv-1", "hi"))
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, res.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PromptTokens).To(BeNil())
			Expect(got.CompletionTokens).To(BeNil())
			Expect(got.GenerationID).To(BeEmpty())
		})

		It("keeps an explicit creation time", func() {
			at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			turn := UserTurn("conv-1", "hi")
			turn.CreatedAt = at

			res, err := driver.Insert(ctx, turn)
			Expect(err).NotTo(HaveOccurred())
			got, err := driver.Get(ctx, res.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.CreatedAt.Equal(at)).To(BeTrue())
		})

		It("rejects a nil turn", func() {
			_, err := driver.Insert(ctx, nil)
			Expect(err).To(MatchError(storage.ErrNilTurn))
		})
	})

	Describe("UpdateUsage", func() {
		It("updates the matching turn", func() {
			_, err := driver.Insert(ctx, &storage.Turn{
				ConversationID: "conv-1",
				Role:           llm.RoleAssistant,
				Content:        "hi",
				GenerationID:   "gen-7",
			})
			Expect(err).NotTo(HaveOccurred())

			ok, err := driver.UpdateUsage(ctx, "gen-7", &llm.Metadata{
				Model:            "openai/gpt-4o",
				PromptTokens:     Ptr(12),
				CompletionTokens: Ptr(30),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			got, err := driver.GetByGenerationID(ctx, "gen-7")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Model).To(Equal("openai/gpt-4o"))
			Expect(*got.PromptTokens).To(Equal(12))
			Expect(*got.CompletionTokens).To(Equal(30))
		})

		It("reports false when nothing matched", func() {
			ok, err := driver.UpdateUsage(ctx, "missing", &llm.Metadata{PromptTokens: Ptr(1)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("leaves absent fields untouched", func() {
			_, err := driver.Insert(ctx, AssistantTurn("conv-1", "gen-8", "hi"))
			Expect(err).NotTo(HaveOccurred())

			ok, err := driver.UpdateUsage(ctx, "gen-8", &llm.Metadata{CompletionTokens: Ptr(99)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			got, err := driver.GetByGenerationID(ctx, "gen-8")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Model).To(Equal("openai/gpt-3.5-turbo"))
			Expect(*got.PromptTokens).To(Equal(10))
			Expect(*got.CompletionTokens).To(Equal(99))
		})
	})

	Describe("Get", func() {
		It("returns NotFoundError for unknown ids", func() {
			_, err := driver.Get(ctx, 424242)
			var nf storage.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
			Expect(nf.Key).To(Equal("424242"))
		})

		It("returns NotFoundError for unknown generation ids", func() {
			_, err := driver.GetByGenerationID(ctx, "nope")
			var nf storage.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
		})
	})

	Describe("List", func() {
		It("returns a conversation's turns in insertion order", func() {
			_, err := driver.Insert(ctx, UserTurn("conv-a", "q1"))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Insert(ctx, UserTurn("conv-b", "other"))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Insert(ctx, AssistantTurn("conv-a", "gen-a1", "a1"))
			Expect(err).NotTo(HaveOccurred())

			turns, err := driver.List(ctx, "conv-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Content).To(Equal("q1"))
			Expect(turns[1].Content).To(Equal("a1"))
		})

		It("returns nothing for an unknown conversation", func() {
			turns, err := driver.List(ctx, "ghost")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})
	})

	Describe("DeleteConversation", func() {
		It("removes only that conversation and frees its generation ids", func() {
			_, err := driver.Insert(ctx, AssistantTurn("conv-a", "gen-x", "a"))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Insert(ctx, UserTurn("conv-b", "b"))
			Expect(err).NotTo(HaveOccurred())

			n, err := driver.DeleteConversation(ctx, "conv-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			count, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			res, err := driver.Insert(ctx, AssistantTurn("conv-c", "gen-x", "again"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(storage.StatusInserted))
		})
	})
}
