package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/streamline/pkg/completion"
	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/recorder"
	"github.com/papercomputeco/streamline/pkg/storage"
)

// HeaderConversationID carries the conversation id of a chat reply.
const HeaderConversationID = "X-Conversation-ID"

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Model          string        `json:"model,omitempty"`
	Messages       []llm.Message `json:"messages"`
	Stream         bool          `json:"stream"`
	ConversationID string        `json:"conversation_id,omitempty"`
}

func (r *ChatRequest) validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
	}
	return nil
}

// ChatResponse is the reply to a non-streaming POST /chat.
type ChatResponse struct {
	ConversationID string        `json:"conversation_id"`
	Content        string        `json:"content"`
	Metadata       *llm.Metadata `json:"metadata,omitempty"`
}

// TurnsResponse lists the stored turns of a conversation.
type TurnsResponse struct {
	ConversationID string          `json:"conversation_id"`
	Count          int             `json:"count"`
	Turns          []*storage.Turn `json:"turns"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStats reports how many turns are stored.
func (s *Server) handleStats(c *fiber.Ctx) error {
	n, err := s.config.Driver.Count(c.UserContext())
	if err != nil {
		s.logger.Error("failed to count turns", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to count turns"})
	}
	return c.JSON(fiber.Map{"turns": n})
}

// handleChat runs a completion for the posted messages.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var body ChatRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if err := body.validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	convID := body.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	model := body.Model
	if model == "" {
		model = s.config.Streamer.Model()
	}

	req := llm.NewCompletionRequest(model, body.Messages, body.Stream)
	c.Set(HeaderConversationID, convID)

	if body.Stream {
		return s.streamChat(c, convID, req)
	}

	comp, err := s.config.Completer.Complete(c.UserContext(), req)
	if err != nil {
		s.logger.Error("completion failed",
			"conversation_id", convID,
			"model", model,
			"error", err,
		)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: err.Error()})
	}

	s.record(convID, req, comp, false)

	return c.JSON(ChatResponse{
		ConversationID: convID,
		Content:        comp.Content,
		Metadata:       comp.Metadata,
	})
}

// streamChat waits for the first event so that a request failing up front
// still gets a proper error status, then streams content fragments as plain
// text.
func (s *Server) streamChat(c *fiber.Ctx, convID string, req *llm.CompletionRequest) error {
	// fasthttp recycles its RequestCtx once the handler returns while the
	// body is still being written, so the stream gets its own context.
	ctx, cancel := context.WithCancel(context.Background())

	next, stop := iter.Pull2(s.config.Streamer.Complete(ctx, req))
	first, err, ok := next()
	if !ok || err != nil {
		stop()
		cancel()
		if err == nil {
			err = errors.New("stream ended without events")
		}
		s.logger.Error("stream failed before first event",
			"conversation_id", convID,
			"model", req.Model,
			"error", err,
		)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: err.Error()})
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")

	// io.Pipe gives per-fragment backpressure: pw.Write blocks until
	// fasthttp's chunked writer consumes the bytes.
	pr, pw := io.Pipe()
	go s.pipeStream(pw, convID, req, first, next, func() {
		stop()
		cancel()
	})

	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// pipeStream writes content fragments to pw until the stream ends, the
// stream fails or the client goes away. A complete stream is recorded.
func (s *Server) pipeStream(
	pw *io.PipeWriter,
	convID string,
	req *llm.CompletionRequest,
	ev llm.StreamEvent,
	next func() (llm.StreamEvent, error, bool),
	release func(),
) {
	defer release()
	defer pw.Close()

	log := s.logger.With("conversation_id", convID, "model", req.Model)

	var col completion.Collector
	for {
		col.Add(ev)

		switch ev.Kind {
		case llm.KindContent:
			if _, err := pw.Write([]byte(ev.Text)); err != nil {
				log.Debug("client went away mid-stream", "error", err)
				return
			}
		case llm.KindAttemptRestarted:
			log.Warn("stream restarted after partial delivery", "attempt", ev.Attempt)
		}

		var err error
		var ok bool
		ev, err, ok = next()
		if !ok {
			break
		}
		if err != nil {
			log.Error("stream failed", "error", err)
			pw.CloseWithError(err)
			return
		}
	}

	if col.Done() {
		s.record(convID, req, col.Completion(), true)
	}
}

// record enqueues a finished exchange on the recorder, if one is configured.
func (s *Server) record(convID string, req *llm.CompletionRequest, comp *llm.Completion, streaming bool) {
	if s.config.Recorder == nil {
		return
	}
	s.config.Recorder.Enqueue(recorder.Job{
		ConversationID: convID,
		Request:        req,
		Completion:     comp,
		Streaming:      streaming,
	})
}

// handleListTurns returns the stored turns of a conversation.
func (s *Server) handleListTurns(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "conversation id required"})
	}

	turns, err := s.config.Driver.List(c.UserContext(), id)
	if err != nil {
		s.logger.Error("failed to list turns", "conversation_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list turns"})
	}
	if len(turns) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "conversation not found"})
	}

	return c.JSON(TurnsResponse{
		ConversationID: id,
		Count:          len(turns),
		Turns:          turns,
	})
}

// handleDeleteConversation removes every stored turn of a conversation.
func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	id := c.Params("id")

	n, err := s.config.Driver.DeleteConversation(c.UserContext(), id)
	if err != nil {
		s.logger.Error("failed to delete conversation", "conversation_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to delete conversation"})
	}
	if n == 0 {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "conversation not found"})
	}

	return c.JSON(fiber.Map{"deleted": n})
}
