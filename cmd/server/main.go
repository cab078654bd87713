package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/policydesk/policy-assistant/internal/api"
	"github.com/policydesk/policy-assistant/internal/config"
	"github.com/policydesk/policy-assistant/internal/core"
	"github.com/policydesk/policy-assistant/internal/retrieval"
	"github.com/policydesk/policy-assistant/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Command line flag for document ingestion
	ingestDir := flag.String("ingest", "", "Ingest policy documents from the given directory and exit")
	flag.Parse()

	ctx := context.Background()

	// Initialize conversation store (SQLite or Postgres, by DSN)
	dbStore, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize conversation store: %v", err)
	}
	defer dbStore.Close()

	// Initialize LLM service
	llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize LLM service: %v", err)
	}
	defer llmService.Close()

	// Initialize retriever backend
	retriever, err := newRetriever(ctx, cfg, llmService)
	if err != nil {
		log.Fatalf("Failed to initialize retriever: %v", err)
	}
	if closer, ok := retriever.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// Handle document ingestion if the flag is set
	if *ingestDir != "" {
		indexer, ok := retriever.(retrieval.Indexer)
		if !ok {
			log.Fatalf("Retriever %q does not support ingestion", cfg.Retriever)
		}
		log.Println("Starting policy document ingestion...")
		numIngested, err := retrieval.IngestDir(ctx, indexer, *ingestDir)
		if err != nil {
			log.Fatalf("Document ingestion failed: %v", err)
		}
		log.Printf("Ingestion complete. Indexed %d chunks. Exiting.", numIngested)
		return
	}

	// Initialize agent and chat services
	agentService := core.NewAgentService(dbStore, retriever, llmService)
	chatService := core.NewChatService(dbStore, agentService)

	// Initialize API handler and router
	apiHandler := api.NewAPIHandler(chatService)
	router := api.NewRouter(apiHandler, cfg.JWTSecret)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}

func newRetriever(ctx context.Context, cfg *config.Config, llm *core.LLMService) (retrieval.Retriever, error) {
	switch cfg.Retriever {
	case config.RetrieverLocal:
		return retrieval.NewLocalRetriever(cfg.IndexPath, llm.GetEmbedding)
	default:
		return retrieval.NewChromaRetriever(ctx, cfg.ChromaAPIKey, cfg.ChromaTenant, cfg.ChromaDatabase, cfg.ChromaCollection)
	}
}
