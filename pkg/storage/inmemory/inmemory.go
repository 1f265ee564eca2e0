// Package inmemory provides a map-backed storage driver for tests and
// ephemeral runs.
package inmemory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex guarding every map below
	mu sync.RWMutex

	nextID int64

	// turns is keyed by turn id
	turns map[int64]*storage.Turn

	// byGeneration maps a generation id to the id of its turn
	byGeneration map[string]int64
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		turns:        make(map[int64]*storage.Turn),
		byGeneration: make(map[string]int64),
	}
}

// Insert stores a copy of turn. A repeated generation id is a no-op.
func (s *Driver) Insert(_ context.Context, turn *storage.Turn) (storage.InsertResult, error) {
	if turn == nil {
		return storage.InsertResult{}, storage.ErrNilTurn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.GenerationID != "" {
		if id, ok := s.byGeneration[turn.GenerationID]; ok {
			return storage.InsertResult{ID: id, Status: storage.StatusAlreadyExists}, nil
		}
	}

	s.nextID++
	stored := *turn
	stored.ID = s.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.CreatedAt = stored.CreatedAt.UTC()

	s.turns[stored.ID] = &stored
	if stored.GenerationID != "" {
		s.byGeneration[stored.GenerationID] = stored.ID
	}

	turn.ID = stored.ID
	turn.CreatedAt = stored.CreatedAt
	return storage.InsertResult{ID: stored.ID, Status: storage.StatusInserted}, nil
}

// UpdateUsage sets model and token counts by generation id.
func (s *Driver) UpdateUsage(_ context.Context, generationID string, md *llm.Metadata) (bool, error) {
	if generationID == "" || md == nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byGeneration[generationID]
	if !ok {
		return false, nil
	}
	t := s.turns[id]
	if md.Model != "" {
		t.Model = md.Model
	}
	if md.PromptTokens != nil {
		v := *md.PromptTokens
		t.PromptTokens = &v
	}
	if md.CompletionTokens != nil {
		v := *md.CompletionTokens
		t.CompletionTokens = &v
	}
	return true, nil
}

// Get retrieves a turn by id.
func (s *Driver) Get(_ context.Context, id int64) (*storage.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.turns[id]
	if !ok {
		return nil, storage.NotFoundError{Key: strconv.FormatInt(id, 10)}
	}
	out := *t
	return &out, nil
}

// GetByGenerationID retrieves a turn by generation id.
func (s *Driver) GetByGenerationID(ctx context.Context, generationID string) (*storage.Turn, error) {
	s.mu.RLock()
	id, ok := s.byGeneration[generationID]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.NotFoundError{Key: generationID}
	}
	return s.Get(ctx, id)
}

// List returns the turns of a conversation ordered by id.
func (s *Driver) List(_ context.Context, conversationID string) ([]*storage.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var turns []*storage.Turn
	for _, t := range s.turns {
		if t.ConversationID == conversationID {
			out := *t
			turns = append(turns, &out)
		}
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].ID < turns[j].ID })
	return turns, nil
}

// Count returns the number of turns in the in-memory store.
func (s *Driver) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns), nil
}

// DeleteConversation removes every turn of a conversation.
func (s *Driver) DeleteConversation(_ context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, t := range s.turns {
		if t.ConversationID != conversationID {
			continue
		}
		if t.GenerationID != "" {
			delete(s.byGeneration, t.GenerationID)
		}
		delete(s.turns, id)
		n++
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *Driver) Close() error {
	return nil
}
