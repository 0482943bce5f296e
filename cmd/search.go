package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/equaliser/intake-agent/internal/knowledge"
	"github.com/equaliser/intake-agent/internal/vectordb"
)

var searchCmd = &cobra.Command{
	Use:   "search [question]",
	Short: "Semantically search the knowledge base",
	Long:  `Searches the knowledge index with a natural language query and lists the most relevant passages with their sources.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
	searchCmd.Flags().String("type", "", "filter by type: guide, legislation, faq, service")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	queryText := args[0]

	limit, _ := cmd.Flags().GetInt("limit")
	typeFilter, _ := cmd.Flags().GetString("type")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openKnowledgeStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if store.Count() == 0 {
		fmt.Println("Knowledge base is empty. Run `intake ingest` first.")
		return nil
	}

	var filter *vectordb.SearchFilter
	if typeFilter != "" {
		docType := vectordb.ParseDocumentType(strings.ToLower(typeFilter))
		if string(docType) != strings.ToLower(typeFilter) {
			return fmt.Errorf("unknown type %q: use guide, legislation, faq or service", typeFilter)
		}
		filter = &vectordb.SearchFilter{Type: &docType}
	}

	results, err := knowledge.NewRetriever(store, 0).Search(ctx, queryText, limit, filter)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if jsonOutput {
		return printSearchResultsJSON(results)
	}
	printSearchResults(results)
	return nil
}

type searchResultJSON struct {
	Rank       int     `json:"rank"`
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"`
	Title      string  `json:"title"`
	Heading    string  `json:"heading,omitempty"`
	Type       string  `json:"type"`
	Content    string  `json:"content"`
}

func printSearchResultsJSON(results []vectordb.SearchResult) error {
	out := make([]searchResultJSON, 0, len(results))
	for i, r := range results {
		md := r.Document.Metadata
		out = append(out, searchResultJSON{
			Rank:       i + 1,
			Similarity: float64(r.Similarity),
			Source:     md.Source,
			Title:      md.Title,
			Heading:    md.Heading,
			Type:       string(md.Type),
			Content:    r.Document.Content,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printSearchResults(results []vectordb.SearchResult) {
	fmt.Printf("Found %d results:\n\n", len(results))
	for i, r := range results {
		md := r.Document.Metadata
		location := md.Source
		if md.Heading != "" {
			location = fmt.Sprintf("%s > %s", location, md.Heading)
		}
		fmt.Printf("  %d. [%.1f%%] %s\n", i+1, r.Similarity*100, location)
		fmt.Printf("     Type: %s\n", md.Type)
		fmt.Printf("     %s\n\n", truncate(strings.Join(strings.Fields(r.Document.Content), " "), 160))
	}
}
