package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfenderov/multichat/internal/scan"
)

var (
	scanSitemap   string
	scanLanguage  string
	scanPostTypes []string
	scanFormat    string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Crawl the sitemap and rebuild the knowledge base",
	Long: `Fetch the sitemap (or sitemap index), crawl the listed pages, chunk their
content and cache the resulting knowledge base for one language.

Examples:
  # Scan the configured sitemap for the default language
  multichat scan

  # Scan a specific sitemap for French pages and posts only
  multichat scan --sitemap https://example.com/fr/sitemap_index.xml --language fr --post-types page,post`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanSitemap, "sitemap", "", "sitemap URL (overrides sitemap.url)")
	scanCmd.Flags().StringVar(&scanLanguage, "language", "", "knowledge base language (default chat.default_language)")
	scanCmd.Flags().StringSliceVar(&scanPostTypes, "post-types", nil, "keep only these URL types: page, post, product")
	scanCmd.Flags().StringVar(&scanFormat, "format", "text", "Output format: text or json")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.scans.Run(ctx, scan.Request{
		SitemapURL: scanSitemap,
		Language:   scanLanguage,
		PostTypes:  scanPostTypes,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scanFormat == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Scan %s (%s)\n", result.ID, result.Language)
	fmt.Fprintf(out, "  URLs found:    %d\n", result.URLsFound)
	fmt.Fprintf(out, "  Pages indexed: %d\n", result.Pages)
	fmt.Fprintf(out, "  Chunks:        %d\n", result.Chunks)
	fmt.Fprintf(out, "  Failed URLs:   %d\n", len(result.Failed))
	fmt.Fprintf(out, "  Duration:      %s\n", result.Duration.Round(time.Millisecond))
	if !result.Saved {
		fmt.Fprintln(out, "  No content found, the existing knowledge base was kept.")
	}
	if verbose {
		for _, u := range result.Failed {
			fmt.Fprintf(out, "  failed: %s\n", u)
		}
	}
	return nil
}
