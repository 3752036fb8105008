// Package httpapi serves the chat endpoint and the admin operations over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mfenderov/multichat/internal/chat"
	"github.com/mfenderov/multichat/internal/scan"
	"github.com/mfenderov/multichat/pkg/models"
)

// Asker answers chat messages.
type Asker interface {
	Ask(ctx context.Context, req chat.Request) (chat.Result, error)
}

// Scanner rebuilds a knowledge base.
type Scanner interface {
	Run(ctx context.Context, req scan.Request) (*scan.Result, error)
}

// ResponseCache is the upstream response cache.
type ResponseCache interface {
	ClearCache(ctx context.Context) (int, error)
}

// KnowledgeStore reads and clears cached knowledge base snapshots.
type KnowledgeStore interface {
	Load(ctx context.Context, language string) (*models.Snapshot, bool, error)
	Clear(ctx context.Context, language string) (int, error)
}

// Config holds HTTP surface configuration.
type Config struct {
	AdminToken      string // admin routes are not mounted when empty
	UserHeader      string // trusted header carrying an authenticated user id
	DefaultLanguage string
	MaxBodyBytes    int64
}

// Deps are the services behind the routes. Admin dependencies may be nil
// when AdminToken is empty.
type Deps struct {
	Chat      Asker
	Scans     Scanner
	Responses ResponseCache
	Knowledge KnowledgeStore
}

// NewRouter creates the HTTP handler with all routes mounted.
func NewRouter(deps Deps, config Config) http.Handler {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 64 << 10
	}
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}
	h := &Handler{deps: deps, config: config}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/ask", h.Ask)

	if config.AdminToken != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(AuthMiddleware(config.AdminToken))
			r.Post("/scan", h.Scan)
			r.Get("/knowledge", h.KnowledgeStatus)
			r.Delete("/cache/responses", h.ClearResponses)
			r.Delete("/cache/knowledge", h.ClearKnowledge)
		})
	}

	return r
}
