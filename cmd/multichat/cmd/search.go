package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/multichat/internal/crawler"
	"github.com/mfenderov/multichat/pkg/models"
)

var (
	searchLimit    int
	searchLanguage string
	searchFormat   string
	searchES       bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Show the knowledge chunks a question is grounded on",
	Long: `Rank the cached knowledge base against a query, the same way chat
requests select their context. With --es the Elasticsearch chunk index is
queried instead.

Examples:
  # Basic search
  multichat search "business hours"

  # French knowledge base, JSON output for scripting
  multichat search "horaires" --language fr --format json

  # Query the Elasticsearch index
  multichat search "shipping" --es --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 3, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchLanguage, "language", "", "knowledge base language (default chat.default_language)")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
	searchCmd.Flags().BoolVar(&searchES, "es", false, "query the Elasticsearch chunk index")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	query := args[0]
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	if searchES {
		cfg.Elasticsearch.Enabled = true
	}
	language := searchLanguage
	if language == "" {
		language = cfg.Chat.DefaultLanguage
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var chunks []models.Chunk
	if searchES {
		chunks, err = a.index.Search(ctx, query, language, searchLimit)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
	} else {
		chunks = a.chat.Relevant(ctx, query, language, searchLimit)
	}

	out := cmd.OutOrStdout()
	if len(chunks) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	if searchFormat == "json" {
		output, err := json.MarshalIndent(chunks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	fmt.Fprintf(out, "Found %d results:\n\n", len(chunks))
	for i, c := range chunks {
		fmt.Fprintf(out, "─── Result %d ───\n", i+1)
		fmt.Fprintf(out, "Title:   %s\n", c.Title)
		if c.SourceURL != "" {
			fmt.Fprintf(out, "URL:     %s\n", c.SourceURL)
		}
		fmt.Fprintf(out, "Text:\n%s\n\n", crawler.Truncate(c.Text, 500))
	}
	return nil
}
