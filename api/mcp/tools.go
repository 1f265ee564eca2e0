package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/storage"
)

var (
	completeToolName    = "complete"
	completeDescription = "Ask an LLM through streamline. Sends the prompt (with an optional system message) as a chat completion and returns the reply together with its generation id and token usage."

	turnsToolName    = "conversation_turns"
	turnsDescription = "List the recorded turns of a streamline conversation in the order they were stored."
)

// CompleteInput represents the input arguments for the complete tool.
type CompleteInput struct {
	Prompt string `json:"prompt" jsonschema:"the user message to send"`
	System string `json:"system,omitempty" jsonschema:"optional system message sent before the prompt"`
	Model  string `json:"model,omitempty" jsonschema:"model to use instead of the server default"`
}

// CompleteOutput is the structured result of the complete tool.
type CompleteOutput struct {
	Content  string        `json:"content"`
	Metadata *llm.Metadata `json:"metadata,omitempty"`
}

// TurnsInput represents the input arguments for the conversation_turns tool.
type TurnsInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"id of the conversation to list"`
}

// TurnsOutput is the structured result of the conversation_turns tool.
type TurnsOutput struct {
	Turns []*storage.Turn `json:"turns"`
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// handleComplete runs a single non-streaming completion.
func (s *Server) handleComplete(ctx context.Context, _ *mcp.CallToolRequest, input CompleteInput) (*mcp.CallToolResult, CompleteOutput, error) {
	if input.Prompt == "" {
		return toolError("prompt is required"), CompleteOutput{}, nil
	}

	model := input.Model
	if model == "" {
		model = s.config.Model
	}

	var messages []llm.Message
	if input.System != "" {
		messages = append(messages, llm.SystemMessage(input.System))
	}
	messages = append(messages, llm.UserMessage(input.Prompt))

	s.config.Logger.Debug("MCP complete request", "model", model)

	comp, err := s.config.Completer.Complete(ctx, llm.NewCompletionRequest(model, messages, false))
	if err != nil {
		s.config.Logger.Error("MCP completion failed", "model", model, "error", err)
		return toolError("Completion failed: %v", err), CompleteOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: comp.Content},
		},
	}, CompleteOutput{Content: comp.Content, Metadata: comp.Metadata}, nil
}

// handleTurns lists the stored turns of a conversation.
func (s *Server) handleTurns(ctx context.Context, _ *mcp.CallToolRequest, input TurnsInput) (*mcp.CallToolResult, TurnsOutput, error) {
	if input.ConversationID == "" {
		return toolError("conversation_id is required"), TurnsOutput{}, nil
	}

	turns, err := s.config.Driver.List(ctx, input.ConversationID)
	if err != nil {
		return toolError("Listing turns failed: %v", err), TurnsOutput{}, nil
	}
	if turns == nil {
		turns = []*storage.Turn{}
	}

	return nil, TurnsOutput{Turns: turns}, nil
}
