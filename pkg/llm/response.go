package llm

import "time"

// Metadata is the accounting record attached to a completion: generation id,
// model and token usage. Every field besides GenerationID and Model is
// optional and stays nil when the remote did not send it.
type Metadata struct {
	// GenerationID is the remote's id for the completion ("" when absent).
	GenerationID string `json:"generation_id,omitempty"`

	// Model is the model that actually served the request ("" when absent).
	Model string `json:"model,omitempty"`

	CreatedAt        *time.Time `json:"created_at,omitempty"`
	PromptTokens     *int       `json:"prompt_tokens,omitempty"`
	CompletionTokens *int       `json:"completion_tokens,omitempty"`
	TotalTokens      *int       `json:"total_tokens,omitempty"`
	ObjectKind       *string    `json:"object,omitempty"`
	Fingerprint      *string    `json:"system_fingerprint,omitempty"`
}

// Completion is the result of a non-streaming call.
type Completion struct {
	Content  string    `json:"content"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Usage contains token usage as it appears on the wire.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
}

// ChunkPayload is one decoded data line of a streaming response.
type ChunkPayload struct {
	ID                string        `json:"id,omitempty"`
	Model             string        `json:"model,omitempty"`
	Created           *int64        `json:"created,omitempty"`
	Object            *string       `json:"object,omitempty"`
	SystemFingerprint *string       `json:"system_fingerprint,omitempty"`
	Choices           []ChunkChoice `json:"choices,omitempty"`
	Usage             *Usage        `json:"usage,omitempty"`
}

// ChunkChoice carries the incremental delta of a streaming choice.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason,omitempty"`
}

// ChunkDelta is the text added by one streaming chunk.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// CompletionPayload is the body of a non-streaming response.
type CompletionPayload struct {
	ID                string             `json:"id,omitempty"`
	Model             string             `json:"model,omitempty"`
	Created           *int64             `json:"created,omitempty"`
	Object            *string            `json:"object,omitempty"`
	SystemFingerprint *string            `json:"system_fingerprint,omitempty"`
	Choices           []CompletionChoice `json:"choices"`
	Usage             *Usage             `json:"usage,omitempty"`
}

// CompletionChoice is a single choice of a non-streaming response.
type CompletionChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// MetadataFromChunk extracts the metadata record of a streaming chunk.
func MetadataFromChunk(p *ChunkPayload) *Metadata {
	return newMetadata(p.ID, p.Model, p.Created, p.Object, p.SystemFingerprint, p.Usage)
}

// MetadataFromCompletion extracts the metadata record of a full response.
func MetadataFromCompletion(p *CompletionPayload) *Metadata {
	return newMetadata(p.ID, p.Model, p.Created, p.Object, p.SystemFingerprint, p.Usage)
}

func newMetadata(id, model string, created *int64, object, fingerprint *string, usage *Usage) *Metadata {
	md := &Metadata{
		GenerationID: id,
		Model:        model,
		ObjectKind:   object,
		Fingerprint:  fingerprint,
	}
	if created != nil {
		t := time.Unix(*created, 0).UTC()
		md.CreatedAt = &t
	}
	if usage != nil {
		md.PromptTokens = usage.PromptTokens
		md.CompletionTokens = usage.CompletionTokens
		md.TotalTokens = usage.TotalTokens
	}
	return md
}
