package store

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// newPostgresTestStore connects to the database named by TEST_POSTGRES_DSN.
// Tests against it use random thread IDs so they can share a database
// without stepping on each other, and clean up the threads they write.
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestThread(t *testing.T, s *PostgresStore) string {
	t.Helper()
	threadID := uuid.NewString()
	t.Cleanup(func() { s.DeleteThread(context.Background(), threadID) })
	return threadID
}

func TestPostgresAppendMessage_PreservesInsertionOrder(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()
	threadID := newTestThread(t, s)

	turns := []struct{ role, content string }{
		{RoleUser, "What is the leave policy?"},
		{RoleAssistant, "Employees get 20 days leave. [Source: hr_policy.pdf]"},
		{RoleUser, "And sick leave?"},
		{RoleAssistant, "Sick leave is unlimited with a doctor's note. [Source: hr_policy.pdf]"},
	}
	for _, turn := range turns {
		if _, err := s.AppendMessage(ctx, threadID, turn.role, turn.content); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	msgs, err := s.Messages(ctx, threadID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(msgs) != len(turns) {
		t.Fatalf("expected %d messages, got %d", len(turns), len(msgs))
	}
	for i, turn := range turns {
		if msgs[i].Role != turn.role || msgs[i].Content != turn.content {
			t.Fatalf("message %d out of order: got %s %q", i, msgs[i].Role, msgs[i].Content)
		}
	}
}

func TestPostgresMessages_FiltersToolRolesAndBlankContent(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()
	threadID := newTestThread(t, s)

	if _, err := s.AppendMessage(ctx, threadID, RoleUser, "question"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := s.AppendMessage(ctx, threadID, RoleTool, "Content: excerpt\nSource: hr_policy.pdf"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := s.AppendMessage(ctx, threadID, RoleAssistant, "answer"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	msgs, err := s.Messages(ctx, threadID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected tool row filtered, got %d messages", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Fatalf("unexpected visible history: %+v", msgs)
	}
}

func TestPostgresDeleteThread_Idempotent(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()
	threadID := newTestThread(t, s)

	// Never-used thread deletes cleanly.
	if err := s.DeleteThread(ctx, uuid.NewString()); err != nil {
		t.Fatalf("delete of unknown thread failed: %v", err)
	}

	if _, err := s.AppendMessage(ctx, threadID, RoleUser, "hello"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := s.SaveCheckpoint(ctx, threadID, []byte(`[{"role":"user","content":"hello"}]`)); err != nil {
		t.Fatalf("save checkpoint failed: %v", err)
	}

	if err := s.DeleteThread(ctx, threadID); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := s.DeleteThread(ctx, threadID); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}

	msgs, err := s.Messages(ctx, threadID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty history after delete, got %d messages", len(msgs))
	}
	state, err := s.Checkpoint(ctx, threadID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if state != nil {
		t.Fatalf("expected checkpoint removed, got %q", state)
	}
}

func TestPostgresCheckpoint_RoundTripAndOverwrite(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()
	threadID := newTestThread(t, s)

	state, err := s.Checkpoint(ctx, threadID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil checkpoint for fresh thread, got %q", state)
	}

	if err := s.SaveCheckpoint(ctx, threadID, []byte("v1")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SaveCheckpoint(ctx, threadID, []byte("v2")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	state, err = s.Checkpoint(ctx, threadID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(state) != "v2" {
		t.Fatalf("expected latest checkpoint, got %q", state)
	}
}

// Concurrent writers on the same thread race for the next seq; the
// UNIQUE (thread_id, seq) constraint plus the retry in AppendMessage
// must leave every append with its own seq.
func TestPostgresAppendMessage_ConcurrentSameThreadUniqueSeq(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()
	threadID := newTestThread(t, s)

	const writers = 4
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AppendMessage(ctx, threadID, RoleUser, "question"); err != nil {
				t.Errorf("user append failed: %v", err)
				return
			}
			if _, err := s.AppendMessage(ctx, threadID, RoleAssistant, "answer"); err != nil {
				t.Errorf("assistant append failed: %v", err)
			}
		}()
	}
	wg.Wait()

	msgs, err := s.Messages(ctx, threadID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(msgs) != writers*2 {
		t.Fatalf("expected %d messages, got %d", writers*2, len(msgs))
	}
	seen := make(map[int64]bool, len(msgs))
	for _, m := range msgs {
		if seen[m.Seq] {
			t.Fatalf("duplicate seq %d", m.Seq)
		}
		seen[m.Seq] = true
	}
}

func TestIsUniqueViolation_OnlyMatchesUniqueErrors(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Fatal("nil error reported as unique violation")
	}
	if isUniqueViolation(context.Canceled) {
		t.Fatal("unrelated error reported as unique violation")
	}
}
