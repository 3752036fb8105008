package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfenderov/multichat/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the MCP server over stdio.

Tools:
  - ask:              answer a message grounded on the knowledge base
  - search_knowledge: return the most relevant knowledge chunks for a query

Example:
  multichat mcp`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var index mcp.ChunkSearcher
	if a.index != nil {
		index = a.index
	}
	server := mcp.NewServer(mcp.Config{
		Name:            cfg.MCP.Name,
		Version:         cfg.MCP.Version,
		DefaultLanguage: cfg.Chat.DefaultLanguage,
	}, a.chat, index)

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
