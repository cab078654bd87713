package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// SimilarityThreshold is the minimum cosine score for a chunk to count
	// as relevant.
	SimilarityThreshold = 0.7

	// embedInterval paces ingestion-time embedding calls to stay under the
	// embedding API rate limit (1500/min).
	embedInterval = 40 * time.Millisecond
)

// EmbedFunc turns text into an embedding vector. Production wires the
// Gemini embedding model; tests inject deterministic vectors.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// LocalRetriever ranks chunks from a SQLite index by cosine similarity
// against the query embedding. It exists for running without a Chroma
// tenant; the index is built by the -ingest flag.
type LocalRetriever struct {
	db    *sql.DB
	embed EmbedFunc

	mu     sync.RWMutex
	chunks []localChunk // in-memory copy of the index
}

type localChunk struct {
	id        int64
	content   string
	source    string
	embedding []float32
}

func NewLocalRetriever(indexPath string, embed EmbedFunc) (*LocalRetriever, error) {
	db, err := sql.Open("sqlite3", indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping index database: %w", err)
	}

	schema := `
    CREATE TABLE IF NOT EXISTS chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        content TEXT NOT NULL,
        source TEXT NOT NULL,
        embedding_json TEXT NOT NULL -- JSON-encoded []float32
    );
    `
	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}

	r := &LocalRetriever{db: db, embed: embed}
	if err := r.loadChunks(); err != nil {
		return nil, err
	}

	if len(r.chunks) == 0 {
		log.Println("Warning: local retriever initialized with no indexed chunks. Run with -ingest to build the index.")
	} else {
		log.Printf("Local retriever initialized with %d indexed chunks.", len(r.chunks))
	}
	return r, nil
}

func (r *LocalRetriever) Close() error {
	return r.db.Close()
}

func (r *LocalRetriever) loadChunks() error {
	rows, err := r.db.Query("SELECT id, content, source, embedding_json FROM chunks")
	if err != nil {
		return fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []localChunk
	for rows.Next() {
		var c localChunk
		var embeddingJSON string
		if err := rows.Scan(&c.id, &c.content, &c.source, &embeddingJSON); err != nil {
			return fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &c.embedding); err != nil {
			log.Printf("Warning: failed to unmarshal embedding for chunk %d (content: %.50s...): %v. Skipping.", c.id, c.content, err)
			continue
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read chunk rows: %w", err)
	}

	r.mu.Lock()
	r.chunks = chunks
	r.mu.Unlock()
	return nil
}

type scoredChunk struct {
	chunk      localChunk
	similarity float32
}

func (r *LocalRetriever) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = DefaultK
	}

	r.mu.RLock()
	chunks := r.chunks
	r.mu.RUnlock()

	if len(chunks) == 0 {
		return nil, nil
	}

	queryEmbedding, err := r.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored := make([]scoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		similarity, err := cosineSimilarity(queryEmbedding, chunk.embedding)
		if err != nil {
			log.Printf("Error scoring chunk %d against query: %v. Skipping.", chunk.id, err)
			continue
		}
		if similarity >= SimilarityThreshold {
			scored = append(scored, scoredChunk{chunk: chunk, similarity: similarity})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})
	if len(scored) > k {
		scored = scored[:k]
	}

	results := make([]Result, 0, len(scored))
	for _, sc := range scored {
		results = append(results, Result{Content: sc.chunk.content, Source: sc.chunk.source})
	}
	return results, nil
}

// Index rebuilds the chunk table from scratch, embedding each chunk at a
// rate-limited pace. Chunks whose embedding fails are skipped, not fatal.
func (r *LocalRetriever) Index(ctx context.Context, chunks []Chunk) error {
	if _, err := r.db.Exec("DELETE FROM chunks"); err != nil {
		return fmt.Errorf("failed to clear existing chunks: %w", err)
	}

	ticker := time.NewTicker(embedInterval)
	defer ticker.Stop()

	count := 0
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		embedding, err := r.embed(ctx, chunk.Content)
		if err != nil {
			log.Printf("Failed to embed chunk %d (%.50s...): %v. Skipping.", i+1, chunk.Content, err)
			continue
		}

		embeddingJSON, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}

		_, err = r.db.ExecContext(ctx,
			"INSERT INTO chunks (content, source, embedding_json) VALUES (?, ?, ?)",
			chunk.Content, chunk.Source, string(embeddingJSON),
		)
		if err != nil {
			log.Printf("Failed to store chunk %d: %v. Skipping.", i+1, err)
			continue
		}
		count++
		if count%10 == 0 || count == len(chunks) {
			log.Printf("Indexed %d/%d chunks...", count, len(chunks))
		}
	}

	return r.loadChunks()
}

var (
	_ Retriever = (*LocalRetriever)(nil)
	_ Indexer   = (*LocalRetriever)(nil)
)
