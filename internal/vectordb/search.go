package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d result(s):\n\n", len(results))

	for i, r := range results {
		md := r.Document.Metadata
		fmt.Fprintf(&sb, "--- Result %d (similarity: %.4f) ---\n", i+1, r.Similarity)

		if md.Source != "" {
			fmt.Fprintf(&sb, "Source: %s#%d\n", md.Source, md.ChunkIndex)
		}
		if md.Title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", md.Title)
		}
		if md.Heading != "" && md.Heading != md.Title {
			fmt.Fprintf(&sb, "Section: %s\n", md.Heading)
		}
		if md.Type != "" {
			fmt.Fprintf(&sb, "Type: %s\n", md.Type)
		}

		sb.WriteString("\n")
		sb.WriteString(r.Document.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// Cite renders a chunk with a short source line for inclusion in a prompt.
func Cite(doc Document) string {
	label := doc.Metadata.Title
	if label == "" {
		label = doc.Metadata.Source
	}
	if doc.Metadata.Heading != "" && doc.Metadata.Heading != label {
		label += " > " + doc.Metadata.Heading
	}
	if label == "" {
		return doc.Content
	}
	return fmt.Sprintf("[%s]\n%s", label, doc.Content)
}
