package retrieval

import (
	"context"
	"fmt"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/google/uuid"
)

// cloudBaseURL is the Chroma Cloud endpoint; the API key travels in the
// X-Chroma-Token header.
const cloudBaseURL = "https://api.trychroma.com:8000"

// ChromaRetriever queries a Chroma Cloud collection of policy document
// chunks. Embedding happens server side; queries go out as raw text.
type ChromaRetriever struct {
	client     chroma.Client
	collection chroma.Collection
}

func NewChromaRetriever(ctx context.Context, apiKey, tenant, database, collectionName string) (*ChromaRetriever, error) {
	client, err := chroma.NewHTTPClient(chromaClientOptions(apiKey, tenant, database)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to open chroma collection %q: %w", collectionName, err)
	}

	return &ChromaRetriever{client: client, collection: collection}, nil
}

func chromaClientOptions(apiKey, tenant, database string) []chroma.ClientOption {
	return []chroma.ClientOption{
		chroma.WithBaseURL(cloudBaseURL),
		chroma.WithDatabaseAndTenant(database, tenant),
		chroma.WithAuth(chroma.NewTokenAuthCredentialsProvider(apiKey, chroma.XChromaTokenHeader)),
	}
}

func (r *ChromaRetriever) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = DefaultK
	}

	res, err := r.collection.Query(ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("chroma query failed: %w", err)
	}

	docGroups := res.GetDocumentsGroups()
	if len(docGroups) == 0 || len(docGroups[0]) == 0 {
		return nil, nil
	}
	metaGroups := res.GetMetadatasGroups()

	results := make([]Result, 0, len(docGroups[0]))
	for i, doc := range docGroups[0] {
		source := unknownSource
		if len(metaGroups) > 0 && i < len(metaGroups[0]) && metaGroups[0][i] != nil {
			if v, ok := metaGroups[0][i].GetString("source"); ok && v != "" {
				source = v
			}
		}
		results = append(results, Result{Content: doc.ContentString(), Source: source})
	}
	return results, nil
}

// Index uploads chunks with their source file recorded as metadata, so
// search results can carry attribution.
func (r *ChromaRetriever) Index(ctx context.Context, chunks []Chunk) error {
	ids := make([]chroma.DocumentID, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	metadatas := make([]chroma.DocumentMetadata, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, chroma.DocumentID(uuid.NewString()))
		texts = append(texts, c.Content)
		metadatas = append(metadatas, chroma.NewDocumentMetadata(chroma.NewStringAttribute("source", c.Source)))
	}

	err := r.collection.Add(ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
		chroma.WithMetadatas(metadatas...),
	)
	if err != nil {
		return fmt.Errorf("chroma add failed: %w", err)
	}
	return nil
}

func (r *ChromaRetriever) Close() error {
	return r.client.Close()
}

var (
	_ Retriever = (*ChromaRetriever)(nil)
	_ Indexer   = (*ChromaRetriever)(nil)
)
