package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/policydesk/policy-assistant/internal/store"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	systemInstruction = "You are a helpful assistant. Remember context. When answering questions based on policy documents, " +
		"ALWAYS cite your sources using the format [Source: filename] at the end of the relevant sentence or paragraph. " +
		"Use the information provided by the search tool."

	searchToolName = "search_policies"

	// maxToolRounds bounds the tool-calling loop; the model decides whether
	// and how often to search, this only stops a runaway exchange.
	maxToolRounds = 5
)

// ToolFunc executes one search request issued by the model and returns the
// formatted context block to feed back to it.
type ToolFunc func(query string, n int) (string, error)

// Invoker runs one model-driven turn: prior conversation plus the new user
// message in, final assistant text out. Tool calls made by the model during
// the turn are routed through search.
type Invoker interface {
	Invoke(ctx context.Context, history []store.Message, message string, search ToolFunc) (string, error)
}

type LLMService struct {
	client *genai.Client
}

func NewLLMService(ctx context.Context, apiKey string) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (s *LLMService) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(defaultEmbeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

// Invoke runs a chat turn with the policy search tool attached, resolving
// every function call the model makes before accepting its final text.
func (s *LLMService) Invoke(ctx context.Context, history []store.Message, message string, search ToolFunc) (string, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.Tools = []*genai.Tool{searchToolDeclaration()}

	chatSession := model.StartChat()
	chatSession.History = toGenaiHistory(history)

	resp, err := chatSession.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			break
		}

		responses := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			if call.Name != searchToolName {
				return "", fmt.Errorf("model requested unknown tool %q", call.Name)
			}
			query, _ := call.Args["query"].(string)
			n := 0
			if v, ok := call.Args["n_results"].(float64); ok {
				n = int(v)
			}

			content, err := search(query, n)
			if err != nil {
				return "", fmt.Errorf("search tool failed: %w", err)
			}
			responses = append(responses, genai.FunctionResponse{
				Name:     call.Name,
				Response: map[string]any{"content": content},
			})
		}

		resp, err = chatSession.SendMessage(ctx, responses...)
		if err != nil {
			return "", fmt.Errorf("gemini tool response SendMessage failed: %w", err)
		}
	}

	return responseText(resp), nil
}

func searchToolDeclaration() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name: searchToolName,
			Description: "Search policy documents. Use this when users ask about company policies, " +
				"procedures, or guidelines.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "The user's question about policies",
					},
					"n_results": {
						Type:        genai.TypeInteger,
						Description: "Number of documents to retrieve (default: 4)",
					},
				},
				Required: []string{"query"},
			},
		}},
	}
}

// toGenaiHistory maps stored turns onto the wire roles. Tool records are
// skipped: their content is already reflected in the assistant turns that
// followed them, and the session replays only the conversational exchange.
func toGenaiHistory(msgs []store.Message) []*genai.Content {
	var history []*genai.Content
	for _, msg := range msgs {
		var role string
		switch msg.Role {
		case store.RoleUser:
			role = "user"
		case store.RoleAssistant:
			role = "model"
		default:
			continue
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return history
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if call, ok := part.(genai.FunctionCall); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

var _ Invoker = (*LLMService)(nil)
