package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/policydesk/policy-assistant/internal/store"
)

// ChatAPI is what the handlers need from the service layer.
type ChatAPI interface {
	SubmitMessage(ctx context.Context, threadID, message string) (string, error)
	History(ctx context.Context, threadID string) ([]store.Message, error)
	DeleteHistory(ctx context.Context, threadID string)
}

type APIHandler struct {
	chatService ChatAPI
}

func NewAPIHandler(cs ChatAPI) *APIHandler {
	return &APIHandler{chatService: cs}
}

type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

type ChatResponse struct {
	Response string `json:"response"`
	ThreadID string `json:"thread_id"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	reply, err := h.chatService.SubmitMessage(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		log.Printf("Error handling chat for thread %s: %v", req.ThreadID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Response: reply, ThreadID: req.ThreadID})
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	messages, err := h.chatService.History(r.Context(), threadID)
	if err != nil {
		log.Printf("Error fetching history for thread %s: %v", threadID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// DeleteHistoryHandler always acknowledges; the delete itself is
// best-effort in the service layer.
func (h *APIHandler) DeleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	h.chatService.DeleteHistory(r.Context(), threadID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "thread_id": threadID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
