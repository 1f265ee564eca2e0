// Package sqlstore implements storage.Driver on top of database/sql using
// ent's dialect-aware query builder. The sqlite and postgres drivers open
// their connection and hand it to New.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/storage"
)

// TableTurns is the table holding storage.Turn rows.
const TableTurns = "turns"

var turnColumns = []string{
	"id",
	"conversation_id",
	"role",
	"content",
	"generation_id",
	"model",
	"prompt_tokens",
	"completion_tokens",
	"created_at",
}

var schema = map[string][]string{
	dialect.SQLite: {
		`CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			generation_id TEXT UNIQUE,
			model TEXT NOT NULL DEFAULT '',
			prompt_tokens INTEGER,
			completion_tokens INTEGER,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS turns_conversation_id ON turns (conversation_id)`,
	},
	dialect.Postgres: {
		`CREATE TABLE IF NOT EXISTS turns (
			id BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			generation_id TEXT UNIQUE,
			model TEXT NOT NULL DEFAULT '',
			prompt_tokens INTEGER,
			completion_tokens INTEGER,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS turns_conversation_id ON turns (conversation_id)`,
	},
}

// Store implements storage.Driver for one SQL dialect.
type Store struct {
	drv     *entsql.Driver
	dialect string
	now     func() time.Time
}

// New wraps db, creates the schema when missing and returns the store. The
// store owns db from here on and closes it in Close.
func New(ctx context.Context, dialectName string, db *sql.DB) (*Store, error) {
	stmts, ok := schema[dialectName]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q", dialectName)
	}

	s := &Store{
		drv:     entsql.OpenDB(dialectName, db),
		dialect: dialectName,
		now:     time.Now,
	}
	for _, stmt := range stmts {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return s, nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.drv.DB()
}

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() string {
	return s.dialect
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

// Insert stores turn. The row is written with ON CONFLICT DO NOTHING on the
// generation id; an empty RETURNING set means the id was already present.
func (s *Store) Insert(ctx context.Context, turn *storage.Turn) (storage.InsertResult, error) {
	if turn == nil {
		return storage.InsertResult{}, storage.ErrNilTurn
	}

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	query, args := s.builder().Insert(TableTurns).
		Columns(turnColumns[1:]...).
		Values(
			turn.ConversationID,
			string(turn.Role),
			turn.Content,
			nullString(turn.GenerationID),
			turn.Model,
			nullInt(turn.PromptTokens),
			nullInt(turn.CompletionTokens),
			createdAt.UTC(),
		).
		OnConflict(entsql.ConflictColumns("generation_id"), entsql.DoNothing()).
		Returning("id").
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return storage.InsertResult{}, fmt.Errorf("failed to insert turn: %w", err)
	}
	id, err := entsql.ScanInt64(rows)
	closeErr := rows.Close()

	switch {
	case err == nil:
		if closeErr != nil {
			return storage.InsertResult{}, fmt.Errorf("failed to insert turn: %w", closeErr)
		}
		turn.ID = id
		turn.CreatedAt = createdAt.UTC()
		return storage.InsertResult{ID: id, Status: storage.StatusInserted}, nil
	case errors.Is(err, sql.ErrNoRows) && turn.GenerationID != "":
		existing, err := s.GetByGenerationID(ctx, turn.GenerationID)
		if err != nil {
			return storage.InsertResult{}, err
		}
		return storage.InsertResult{ID: existing.ID, Status: storage.StatusAlreadyExists}, nil
	default:
		return storage.InsertResult{}, fmt.Errorf("failed to insert turn: %w", err)
	}
}

// UpdateUsage sets model and token counts by generation id. Fields absent
// from md are left untouched.
func (s *Store) UpdateUsage(ctx context.Context, generationID string, md *llm.Metadata) (bool, error) {
	if generationID == "" || md == nil {
		return false, nil
	}

	u := s.builder().Update(TableTurns).Where(entsql.EQ("generation_id", generationID))
	set := 0
	if md.Model != "" {
		u.Set("model", md.Model)
		set++
	}
	if md.PromptTokens != nil {
		u.Set("prompt_tokens", *md.PromptTokens)
		set++
	}
	if md.CompletionTokens != nil {
		u.Set("completion_tokens", *md.CompletionTokens)
		set++
	}
	if set == 0 {
		_, err := s.GetByGenerationID(ctx, generationID)
		if errors.As(err, new(storage.NotFoundError)) {
			return false, nil
		}
		return err == nil, err
	}

	query, args := u.Query()
	var res sql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		return false, fmt.Errorf("failed to update usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update usage: %w", err)
	}
	return n > 0, nil
}

// Get retrieves a turn by id.
func (s *Store) Get(ctx context.Context, id int64) (*storage.Turn, error) {
	turns, err := s.query(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, storage.NotFoundError{Key: strconv.FormatInt(id, 10)}
	}
	return turns[0], nil
}

// GetByGenerationID retrieves a turn by generation id.
func (s *Store) GetByGenerationID(ctx context.Context, generationID string) (*storage.Turn, error) {
	turns, err := s.query(ctx, entsql.EQ("generation_id", generationID))
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, storage.NotFoundError{Key: generationID}
	}
	return turns[0], nil
}

// List returns the turns of a conversation ordered by id.
func (s *Store) List(ctx context.Context, conversationID string) ([]*storage.Turn, error) {
	return s.query(ctx, entsql.EQ("conversation_id", conversationID))
}

// Count returns the number of stored turns.
func (s *Store) Count(ctx context.Context) (int, error) {
	query, args := s.builder().Select(entsql.Count("*")).From(entsql.Table(TableTurns)).Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	defer rows.Close()

	n, err := entsql.ScanInt(rows)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return n, nil
}

// DeleteConversation removes every turn of a conversation.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	query, args := s.builder().Delete(TableTurns).Where(entsql.EQ("conversation_id", conversationID)).Query()

	var res sql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, fmt.Errorf("failed to delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversation: %w", err)
	}
	return int(n), nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.drv.Close()
}

func (s *Store) query(ctx context.Context, where *entsql.Predicate) ([]*storage.Turn, error) {
	query, args := s.builder().
		Select(turnColumns...).
		From(entsql.Table(TableTurns)).
		Where(where).
		OrderBy("id").
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []*storage.Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}
	return turns, nil
}

func scanTurn(rows entsql.ColumnScanner) (*storage.Turn, error) {
	var (
		t                storage.Turn
		role             string
		generationID     sql.NullString
		promptTokens     sql.NullInt64
		completionTokens sql.NullInt64
	)
	err := rows.Scan(
		&t.ID,
		&t.ConversationID,
		&role,
		&t.Content,
		&generationID,
		&t.Model,
		&promptTokens,
		&completionTokens,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan turn: %w", err)
	}

	t.Role = llm.Role(role)
	t.GenerationID = generationID.String
	t.PromptTokens = intPtr(promptTokens)
	t.CompletionTokens = intPtr(completionTokens)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
