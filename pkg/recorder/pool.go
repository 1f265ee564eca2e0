// Package recorder provides an asynchronous worker pool that persists
// finished completions as conversation turns using the provided
// storage.Driver and announces them on an eventstream.Publisher.
//
// The pool decouples storage from the streaming hot path so that a caller
// rendering fragments never waits on the database.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/streamline/pkg/eventstream"
	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/logger"
	"github.com/papercomputeco/streamline/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// ConversationID groups the stored turns.
	ConversationID string

	// Request is the request that produced Completion. Its last user
	// message is stored as the user turn.
	Request *llm.CompletionRequest

	// Completion is the collected reply.
	Completion *llm.Completion

	// Streaming records whether the reply was streamed.
	Streaming bool
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting turns.
	Driver storage.Driver

	// Publisher optionally announces recorded completions.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, fmt.Errorf("recorder requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"conversation_id", job.ConversationID,
			"model", job.Request.Model,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"conversation_id", job.ConversationID,
			"model", job.Request.Model,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
// Enqueue must not be called after Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("recorder worker stopped", "worker_id", id)
}

// processJob stores the turns of a job and publishes the resulting event.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	ids, err := Record(ctx, p.config.Driver, job, p.logger)
	if err != nil {
		p.logger.Error("async turn storage failed",
			"conversation_id", job.ConversationID,
			"error", err,
		)
		return
	}

	p.logger.Info("completion recorded",
		"conversation_id", job.ConversationID,
		"turns", len(ids),
	)

	if p.config.Publisher == nil {
		return
	}

	var md *llm.Metadata
	if job.Completion != nil {
		md = job.Completion.Metadata
	}
	event := eventstream.NewCompletionRecordedEvent(job.ConversationID, job.Request.Model, job.Streaming, md, ids)
	if err := p.config.Publisher.PublishCompletion(ctx, event); err != nil {
		p.logger.Warn("failed to publish completion event",
			"conversation_id", job.ConversationID,
			"error", err,
		)
	}
}

// Record synchronously stores the last user message of job.Request and the
// assistant reply. An assistant turn whose generation id is already stored
// only has its usage refreshed. It returns the ids of the stored turns.
func Record(ctx context.Context, driver storage.Driver, job Job, log *slog.Logger) ([]int64, error) {
	log = logger.OrNop(log)
	if job.Request == nil || job.Completion == nil {
		return nil, fmt.Errorf("incomplete job for conversation %q", job.ConversationID)
	}

	var ids []int64

	if msg, ok := job.Request.LastUserMessage(); ok {
		res, err := driver.Insert(ctx, &storage.Turn{
			ConversationID: job.ConversationID,
			Role:           llm.RoleUser,
			Content:        msg.Content,
			Model:          job.Request.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("storing user turn: %w", err)
		}
		ids = append(ids, res.ID)
	}

	assistant := &storage.Turn{
		ConversationID: job.ConversationID,
		Role:           llm.RoleAssistant,
		Content:        job.Completion.Content,
		Model:          job.Request.Model,
	}
	if md := job.Completion.Metadata; md != nil {
		assistant.GenerationID = md.GenerationID
		if md.Model != "" {
			assistant.Model = md.Model
		}
		assistant.PromptTokens = md.PromptTokens
		assistant.CompletionTokens = md.CompletionTokens
	}

	res, err := driver.Insert(ctx, assistant)
	if err != nil {
		return nil, fmt.Errorf("storing assistant turn: %w", err)
	}

	if res.Status == storage.StatusAlreadyExists {
		if _, err := driver.UpdateUsage(ctx, assistant.GenerationID, job.Completion.Metadata); err != nil {
			return nil, fmt.Errorf("updating usage: %w", err)
		}
	}

	log.Debug("stored assistant turn",
		"id", res.ID,
		"generation_id", assistant.GenerationID,
		"status", res.Status.String(),
	)

	return append(ids, res.ID), nil
}
