package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// IngestDir walks dir for .md and .txt files, splits each into paragraph
// chunks, and feeds them to the indexer with the file base name as source.
// Returns the number of chunks handed to the indexer.
func IngestDir(ctx context.Context, indexer Indexer, dir string) (int, error) {
	var chunks []Chunk
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		source := filepath.Base(path)
		for _, paragraph := range splitParagraphs(string(content)) {
			chunks = append(chunks, Chunk{Content: paragraph, Source: source})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk document directory: %w", err)
	}

	if len(chunks) == 0 {
		log.Println("No chunks generated from document directory. Ensure it contains .md or .txt files with content.")
		return 0, nil
	}

	log.Printf("Generated %d chunks from %s. Indexing (this may take a while)...", len(chunks), dir)
	if err := indexer.Index(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func splitParagraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}
