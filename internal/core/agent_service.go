package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/policydesk/policy-assistant/internal/retrieval"
	"github.com/policydesk/policy-assistant/internal/store"
)

// FallbackReply is returned, and persisted as the assistant turn, when the
// model produces an empty or whitespace-only final reply.
const FallbackReply = "Sorry, but I couldn't generate a proper response. Please try rephrasing your question."

// InvocationError wraps any failure inside the model interaction loop so
// the API layer can report it uniformly.
type InvocationError struct {
	ThreadID string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent invocation failed for thread %s: %v", e.ThreadID, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// AgentService composes one assistant turn per user turn: it loads the
// thread's prior state, runs the model loop with the search tool attached,
// and persists the exchange.
type AgentService struct {
	store     store.Store
	retriever retrieval.Retriever
	invoker   Invoker
}

func NewAgentService(st store.Store, r retrieval.Retriever, inv Invoker) *AgentService {
	return &AgentService{
		store:     st,
		retriever: r,
		invoker:   inv,
	}
}

// Run handles one submission. Per successful call it appends exactly one
// user turn and one assistant turn; tool invocations made by the model are
// additionally recorded in between as tool-role messages.
func (s *AgentService) Run(ctx context.Context, threadID, message string) (string, error) {
	history, err := s.loadContext(ctx, threadID)
	if err != nil {
		return "", err
	}

	userMsg, err := s.store.AppendMessage(ctx, threadID, store.RoleUser, message)
	if err != nil {
		return "", fmt.Errorf("failed to store user message: %w", err)
	}
	transcript := append(history, *userMsg)

	search := func(query string, n int) (string, error) {
		results, err := s.retriever.Search(ctx, query, n)
		if err != nil {
			return "", fmt.Errorf("policy search failed: %w", err)
		}
		formatted := retrieval.FormatResults(results)

		toolMsg, err := s.store.AppendMessage(ctx, threadID, store.RoleTool, formatted)
		if err != nil {
			return "", fmt.Errorf("failed to record tool result: %w", err)
		}
		transcript = append(transcript, *toolMsg)
		return formatted, nil
	}

	reply, err := s.invoker.Invoke(ctx, history, message, search)
	if err != nil {
		log.Printf("Error invoking agent for thread %s: %v", threadID, err)
		return "", &InvocationError{ThreadID: threadID, Err: err}
	}

	if strings.TrimSpace(reply) == "" {
		log.Printf("Model returned an empty reply for thread %s, substituting fallback.", threadID)
		reply = FallbackReply
	}

	assistantMsg, err := s.store.AppendMessage(ctx, threadID, store.RoleAssistant, reply)
	if err != nil {
		return "", fmt.Errorf("failed to store assistant message: %w", err)
	}
	transcript = append(transcript, *assistantMsg)

	s.saveCheckpoint(ctx, threadID, transcript)

	return reply, nil
}

// loadContext prefers the thread's checkpoint and falls back to the stored
// visible history when no checkpoint exists or it fails to decode.
func (s *AgentService) loadContext(ctx context.Context, threadID string) ([]store.Message, error) {
	state, err := s.store.Checkpoint(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if len(state) > 0 {
		var msgs []store.Message
		if err := json.Unmarshal(state, &msgs); err == nil {
			return msgs, nil
		}
		log.Printf("Warning: corrupt checkpoint for thread %s, rebuilding from message history.", threadID)
	}
	return s.store.Messages(ctx, threadID)
}

// saveCheckpoint is best-effort: the checkpoint is a resumable snapshot
// over the message table, so a failed save costs only a rebuild next turn.
func (s *AgentService) saveCheckpoint(ctx context.Context, threadID string, transcript []store.Message) {
	state, err := json.Marshal(transcript)
	if err != nil {
		log.Printf("WARN: failed to encode checkpoint for thread %s: %v", threadID, err)
		return
	}
	if err := s.store.SaveCheckpoint(ctx, threadID, state); err != nil {
		log.Printf("WARN: failed to save checkpoint for thread %s: %v", threadID, err)
	}
}
