package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mfenderov/multichat/internal/chat"
	"github.com/mfenderov/multichat/internal/ratelimit"
	"github.com/mfenderov/multichat/pkg/models"
)

// Config holds MCP server configuration.
type Config struct {
	Name            string
	Version         string
	DefaultLanguage string
}

// Asker answers chat messages.
type Asker interface {
	Ask(ctx context.Context, req chat.Request) (chat.Result, error)
	Relevant(ctx context.Context, query, language string, limit int) []models.Chunk
}

// ChunkSearcher is a full-text index over knowledge chunks.
type ChunkSearcher interface {
	Search(ctx context.Context, query, language string, limit int) ([]models.Chunk, error)
}

// Server exposes the chat service as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	chat      Asker
	index     ChunkSearcher // nil when no search index is configured
	config    Config
}

// NewServer creates a new MCP server with ask and search tools. index may be nil.
func NewServer(config Config, asker Asker, index ChunkSearcher) *Server {
	if config.Name == "" {
		config.Name = "multichat"
	}
	if config.Version == "" {
		config.Version = "1.0.0"
	}
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}

	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		chat:      asker,
		index:     index,
		config:    config,
	}

	askTool := mcp.NewTool("ask",
		mcp.WithDescription("Ask the site assistant a question. The answer is grounded on the site's knowledge base."),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The question to ask"),
		),
		mcp.WithString("language",
			mcp.Description("Reply language code, e.g. en, ar, es, fr"),
		),
	)
	mcpServer.AddTool(askTool, s.askHandler)

	searchTool := mcp.NewTool("search_knowledge",
		mcp.WithDescription("Search the site's knowledge base and return the most relevant chunks with their source URLs."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithString("language",
			mcp.Description("Knowledge base language code (default: the configured default language)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of chunks to return (default: 3)"),
		),
	)
	mcpServer.AddTool(searchTool, s.searchHandler)

	return s
}

func (s *Server) askHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message parameter is required"), nil
	}

	res, err := s.chat.Ask(ctx, chat.Request{
		Message:  message,
		Language: req.GetString("language", ""),
		Identity: ratelimit.UserIdentity("mcp"),
	})
	if err != nil {
		var chatErr *chat.Error
		if errors.As(err, &chatErr) {
			return mcp.NewToolResultError(chatErr.Message), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}

	return mcp.NewToolResultText(res.Message), nil
}

type searchHit struct {
	Title     string `json:"title"`
	SourceURL string `json:"source_url,omitempty"`
	Text      string `json:"text"`
}

func (s *Server) searchHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	language := req.GetString("language", s.config.DefaultLanguage)
	limit := req.GetInt("limit", 3)

	chunks, err := s.handleSearch(ctx, query, language, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	hits := make([]searchHit, len(chunks))
	for i, c := range chunks {
		hits[i] = searchHit{Title: c.Title, SourceURL: c.SourceURL, Text: c.Text}
	}
	result, err := json.Marshal(hits)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

// handleSearch prefers the search index and falls back to ranking the cached
// knowledge base when the index is absent or fails.
func (s *Server) handleSearch(ctx context.Context, query, language string, limit int) ([]models.Chunk, error) {
	if s.index != nil {
		chunks, err := s.index.Search(ctx, query, language, limit)
		if err == nil {
			return chunks, nil
		}
		slog.Warn("search index unavailable, ranking cached knowledge", "error", err)
	}
	return s.chat.Relevant(ctx, query, language, limit), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
