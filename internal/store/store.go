package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable marks persistence-layer connectivity or permission
// failures so callers can distinguish an unreachable store from ordinary
// empty results.
var ErrUnavailable = errors.New("store unavailable")

// Store is the contract for persisting per-thread conversation state.
// A thread exists implicitly from its first append; there is no explicit
// creation step.
type Store interface {
	// AppendMessage adds one message to the end of the thread's sequence.
	AppendMessage(ctx context.Context, threadID, role, content string) (*Message, error)

	// Messages returns the thread's visible history in insertion order:
	// user and assistant roles with non-whitespace content. An unknown
	// thread yields an empty slice, not an error.
	Messages(ctx context.Context, threadID string) ([]Message, error)

	// SaveCheckpoint stores the latest interaction snapshot for a thread,
	// replacing any previous one.
	SaveCheckpoint(ctx context.Context, threadID string, state []byte) error

	// Checkpoint returns the thread's snapshot, or nil when none exists.
	Checkpoint(ctx context.Context, threadID string) ([]byte, error)

	// DeleteThread removes all rows for the thread from every table.
	// Deleting an unknown thread succeeds.
	DeleteThread(ctx context.Context, threadID string) error

	Close() error
}

// Open selects a backend from the DSN: postgres:// and postgresql://
// schemes connect to Postgres, anything else is treated as a SQLite file
// path.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(ctx, dsn)
	}
	return NewSQLiteStore(dsn)
}

// unavailable tags a backend failure so both the operation context and
// ErrUnavailable survive errors.Is/As checks.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}

// visibleMessages filters a thread's raw history down to what callers see.
// Tool invocation records and blank turns stay internal.
func visibleMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
