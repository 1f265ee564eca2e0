package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/streamline/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeCompletionRecorded is emitted after a completion's turns are
	// persisted.
	EventTypeCompletionRecorded = "streamline.completion.recorded"
)

// CompletionRecordedEvent is a transport-neutral event payload for a
// recorded completion.
type CompletionRecordedEvent struct {
	SchemaVersion    int       `json:"schema_version"`
	EventType        string    `json:"event_type"`
	EventID          string    `json:"event_id"`
	EmittedAt        time.Time `json:"emitted_at"`
	ConversationID   string    `json:"conversation_id"`
	Model            string    `json:"model"`
	GenerationID     string    `json:"generation_id,omitempty"`
	Streaming        bool      `json:"streaming"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty"`
	CompletionTokens *int      `json:"completion_tokens,omitempty"`
	TurnIDs          []int64   `json:"turn_ids"`
}

// NewCompletionRecordedEvent builds an event with a fresh id. md may be nil.
func NewCompletionRecordedEvent(conversationID, model string, streaming bool, md *llm.Metadata, turnIDs []int64) *CompletionRecordedEvent {
	ev := &CompletionRecordedEvent{
		SchemaVersion:  SchemaVersionV1,
		EventType:      EventTypeCompletionRecorded,
		EventID:        uuid.NewString(),
		EmittedAt:      time.Now().UTC(),
		ConversationID: conversationID,
		Model:          model,
		Streaming:      streaming,
		TurnIDs:        turnIDs,
	}
	if md != nil {
		if md.Model != "" {
			ev.Model = md.Model
		}
		ev.GenerationID = md.GenerationID
		ev.PromptTokens = md.PromptTokens
		ev.CompletionTokens = md.CompletionTokens
	}
	return ev
}
