package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time; a single pooled connection keeps
	// concurrent requests from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, unavailable("failed to ping database", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        thread_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'tool')),
        content TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages (thread_id, seq);

    CREATE TABLE IF NOT EXISTS checkpoints (
        thread_id TEXT PRIMARY KEY,
        state BLOB NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, threadID, role, content string) (*Message, error) {
	msg := &Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (id, thread_id, seq, role, content, created_at)
		 VALUES (?, ?, COALESCE((SELECT MAX(seq) FROM messages WHERE thread_id = ?), 0) + 1, ?, ?, ?)
		 RETURNING seq`,
		msg.ID, threadID, threadID, role, content, msg.CreatedAt,
	).Scan(&msg.Seq)
	if err != nil {
		return nil, unavailable("failed to insert message", err)
	}
	return msg, nil
}

func (s *SQLiteStore) Messages(ctx context.Context, threadID string) ([]Message, error) {
	msgs, err := s.allMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return visibleMessages(msgs), nil
}

func (s *SQLiteStore) allMessages(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, seq, role, content, created_at
		 FROM messages WHERE thread_id = ? ORDER BY seq ASC`,
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
	return messages, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, threadID string, state []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		threadID, state, time.Now().UTC(),
	)
	if err != nil {
		return unavailable("failed to save checkpoint", err)
	}
	return nil
}

func (s *SQLiteStore) Checkpoint(ctx context.Context, threadID string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM checkpoints WHERE thread_id = ?", threadID,
	).Scan(&state)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No checkpoint yet
		}
		return nil, unavailable("failed to query checkpoint", err)
	}
	return state, nil
}

func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE thread_id = ?", threadID); err != nil {
		return unavailable("failed to delete messages", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = ?", threadID); err != nil {
		return unavailable("failed to delete checkpoint", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
