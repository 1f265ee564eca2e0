// Package storage persists the turns of recorded completions.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/streamline/pkg/llm"
)

// Turn is one stored message of a conversation. Assistant turns carry the
// generation id and token usage of the completion that produced them.
type Turn struct {
	ID               int64     `json:"id"`
	ConversationID   string    `json:"conversation_id"`
	Role             llm.Role  `json:"role"`
	Content          string    `json:"content"`
	GenerationID     string    `json:"generation_id,omitempty"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty"`
	CompletionTokens *int      `json:"completion_tokens,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// InsertStatus tells whether Insert created a row.
type InsertStatus int

const (
	// StatusInserted means a new row was written.
	StatusInserted InsertStatus = iota

	// StatusAlreadyExists means a turn with the same generation id was
	// already stored and nothing was written.
	StatusAlreadyExists
)

func (s InsertStatus) String() string {
	if s == StatusAlreadyExists {
		return "already_exists"
	}
	return "inserted"
}

// InsertResult is the outcome of Insert. ID is the id of the new row, or of
// the existing row when Status is StatusAlreadyExists.
type InsertResult struct {
	ID     int64
	Status InsertStatus
}

// Driver defines the interface for persisting and retrieving turns in a
// storage backend. Implementations own their connection and release it in
// Close.
type Driver interface {
	// Insert stores a turn. A non-empty generation id is unique: inserting
	// it again is a no-op reported as StatusAlreadyExists.
	Insert(ctx context.Context, turn *Turn) (InsertResult, error)

	// UpdateUsage sets model and token counts on the turn with the given
	// generation id. It returns false when no turn matched.
	UpdateUsage(ctx context.Context, generationID string, md *llm.Metadata) (bool, error)

	// Get retrieves a turn by id.
	Get(ctx context.Context, id int64) (*Turn, error)

	// GetByGenerationID retrieves the turn produced by a completion.
	GetByGenerationID(ctx context.Context, generationID string) (*Turn, error)

	// List returns the turns of a conversation in insertion order.
	List(ctx context.Context, conversationID string) ([]*Turn, error)

	// Count returns the number of stored turns.
	Count(ctx context.Context) (int, error)

	// DeleteConversation removes every turn of a conversation and returns
	// how many were removed.
	DeleteConversation(ctx context.Context, conversationID string) (int, error)

	// Close closes the store and releases any resources.
	Close() error
}
