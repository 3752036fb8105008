package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	clearResponses bool
	clearKnowledge bool
	clearLanguage  string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear caches",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached knowledge base for each configured language",
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear cached replies and/or knowledge bases",
	Long: `Clear cached upstream replies, cached knowledge bases, or both (the default).

Examples:
  multichat cache clear
  multichat cache clear --responses
  multichat cache clear --knowledge --language fr`,
	RunE: runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatusCmd, cacheClearCmd)

	cacheClearCmd.Flags().BoolVar(&clearResponses, "responses", false, "clear cached replies")
	cacheClearCmd.Flags().BoolVar(&clearKnowledge, "knowledge", false, "clear cached knowledge bases")
	cacheClearCmd.Flags().StringVar(&clearLanguage, "language", "", "only clear this language's knowledge base")
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	for _, lang := range cfg.Chat.Languages {
		snap, ok, err := a.knowledge.Load(ctx, lang)
		switch {
		case err != nil:
			fmt.Fprintf(out, "%s: error: %v\n", lang, err)
		case !ok:
			fmt.Fprintf(out, "%s: not cached\n", lang)
		default:
			fmt.Fprintf(out, "%s: %d pages, %d chunks, scanned %s\n",
				lang, snap.Metadata.TotalPages, snap.Metadata.TotalChunks, snap.Metadata.ScannedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !clearResponses && !clearKnowledge {
		clearResponses, clearKnowledge = true, true
	}

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if clearResponses {
		n, err := a.client.ClearCache(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Cleared %d cached replies\n", n)
	}
	if clearKnowledge {
		n, err := a.knowledge.Clear(ctx, clearLanguage)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Cleared %d knowledge bases\n", n)
	}
	return nil
}
