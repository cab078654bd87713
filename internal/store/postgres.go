package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps conversation state in Postgres behind a pgx pool.
// Connections are acquired per operation and returned on every exit path.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("failed to ping postgres", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        thread_id TEXT NOT NULL,
        seq BIGINT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'tool')),
        content TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (thread_id, seq)
    );

    CREATE TABLE IF NOT EXISTS checkpoints (
        thread_id TEXT PRIMARY KEY,
        state BYTEA NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    `
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// appendRetries bounds how often an insert is retried when concurrent
// writers on the same thread race for the next seq and trip the
// UNIQUE (thread_id, seq) constraint.
const appendRetries = 3

func (s *PostgresStore) AppendMessage(ctx context.Context, threadID, role, content string) (*Message, error) {
	msg := &Message{
		ID:       uuid.NewString(),
		ThreadID: threadID,
		Role:     role,
		Content:  content,
	}

	var err error
	for attempt := 0; attempt <= appendRetries; attempt++ {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO messages (id, thread_id, seq, role, content)
			 VALUES ($1, $2, COALESCE((SELECT MAX(seq) FROM messages WHERE thread_id = $2), 0) + 1, $3, $4)
			 RETURNING seq, created_at`,
			msg.ID, threadID, role, content,
		).Scan(&msg.Seq, &msg.CreatedAt)
		if err == nil {
			return msg, nil
		}
		if !isUniqueViolation(err) {
			break
		}
	}
	return nil, unavailable("failed to insert message", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" // unique_violation
}

func (s *PostgresStore) Messages(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, seq, role, content, created_at
		 FROM messages WHERE thread_id = $1 ORDER BY seq ASC`,
		threadID,
	)
	if err != nil {
		return nil, unavailable("failed to query messages", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Seq, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to read messages", err)
	}
	return visibleMessages(messages), nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, threadID string, state []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints (thread_id, state, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (thread_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		threadID, state, time.Now().UTC(),
	)
	if err != nil {
		return unavailable("failed to save checkpoint", err)
	}
	return nil
}

func (s *PostgresStore) Checkpoint(ctx context.Context, threadID string) ([]byte, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		"SELECT state FROM checkpoints WHERE thread_id = $1", threadID,
	).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No checkpoint yet
		}
		return nil, unavailable("failed to query checkpoint", err)
	}
	return state, nil
}

func (s *PostgresStore) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM messages WHERE thread_id = $1", threadID); err != nil {
		return unavailable("failed to delete messages", err)
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM checkpoints WHERE thread_id = $1", threadID); err != nil {
		return unavailable("failed to delete checkpoint", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
