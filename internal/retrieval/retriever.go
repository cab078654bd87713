// Package retrieval provides ranked policy-document search for the agent's
// search tool, backed either by a Chroma Cloud collection or a local
// embedding index.
package retrieval

import "context"

// DefaultK is the number of documents fetched when the caller does not ask
// for a specific count.
const DefaultK = 4

// Result is one retrieved document excerpt with its source attribution.
type Result struct {
	Content string
	Source  string
}

// Chunk is one document fragment handed to an Indexer during ingestion.
type Chunk struct {
	Content string
	Source  string
}

// Retriever returns results in descending relevance order. No matches is an
// empty slice, not an error.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Result, error)
}

// Indexer is implemented by retriever backends that can ingest documents.
type Indexer interface {
	Index(ctx context.Context, chunks []Chunk) error
}
