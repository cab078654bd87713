package retrieval

import (
	"fmt"
	"strings"
)

// NoResultsMessage is handed to the model when a search matches nothing.
const NoResultsMessage = "No relevant policy information found."

// unknownSource labels results whose metadata carries no source.
const unknownSource = "Unknown"

const resultSeparator = "\n\n---\n\n"

// FormatResults renders retrieved documents into the context block fed back
// to the model, preserving retrieval order.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return NoResultsMessage
	}

	blocks := make([]string, 0, len(results))
	for _, r := range results {
		source := r.Source
		if source == "" {
			source = unknownSource
		}
		blocks = append(blocks, fmt.Sprintf("Content: %s\nSource: %s", r.Content, source))
	}
	return strings.Join(blocks, resultSeparator)
}
