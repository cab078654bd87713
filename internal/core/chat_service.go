package core

import (
	"context"
	"log"

	"github.com/policydesk/policy-assistant/internal/store"
)

// Composer produces one assistant turn for one user turn.
type Composer interface {
	Run(ctx context.Context, threadID, message string) (string, error)
}

// ChatService implements the session operations. It holds no per-request
// state; all conversation state lives in the store.
type ChatService struct {
	store store.Store
	agent Composer
}

func NewChatService(st store.Store, agent Composer) *ChatService {
	return &ChatService{
		store: st,
		agent: agent,
	}
}

func (s *ChatService) SubmitMessage(ctx context.Context, threadID, message string) (string, error) {
	return s.agent.Run(ctx, threadID, message)
}

// History returns the thread's visible messages in insertion order, empty
// for threads never written to.
func (s *ChatService) History(ctx context.Context, threadID string) ([]store.Message, error) {
	return s.store.Messages(ctx, threadID)
}

// DeleteHistory is best-effort: losing the ability to clear stale history
// must not block the caller, so store failures are logged and suppressed.
// The warning log is the only signal that a delete silently failed.
func (s *ChatService) DeleteHistory(ctx context.Context, threadID string) {
	if err := s.store.DeleteThread(ctx, threadID); err != nil {
		log.Printf("WARN: failed to delete history for thread %s: %v", threadID, err)
	}
}
