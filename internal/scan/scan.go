// Package scan rebuilds a language's knowledge base from a site's sitemap.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfenderov/multichat/internal/crawler"
	"github.com/mfenderov/multichat/internal/knowledge"
	"github.com/mfenderov/multichat/pkg/models"
)

// ErrNoSitemap is returned when neither the request nor the configuration names a sitemap.
var ErrNoSitemap = errors.New("no sitemap URL configured")

// ErrInProgress is returned when a scan for the same language is already running.
var ErrInProgress = errors.New("scan already in progress")

// URLSource lists the page URLs of a sitemap.
type URLSource interface {
	Scan(ctx context.Context, sitemapURL string, postTypes []string) ([]string, error)
}

// PageFetcher fetches page content for a batch of URLs.
type PageFetcher interface {
	Crawl(ctx context.Context, urls []string) ([]crawler.Page, []string)
}

// SnapshotSaver persists a built snapshot.
type SnapshotSaver interface {
	Save(ctx context.Context, language string, snap *models.Snapshot) error
}

// Config holds scan defaults used when a Request leaves fields empty.
type Config struct {
	SitemapURL      string
	PostTypes       []string
	DefaultLanguage string
}

// Request describes one scan.
type Request struct {
	SitemapURL string   `json:"sitemap_url,omitempty"`
	Language   string   `json:"language,omitempty"`
	PostTypes  []string `json:"post_types,omitempty"`
}

// Result holds scan statistics.
type Result struct {
	ID          string        `json:"id"`
	Language    string        `json:"language"`
	URLsFound   int           `json:"urls_found"`
	Pages       int           `json:"pages"`
	Chunks      int           `json:"chunks"`
	Failed      []string      `json:"failed"`
	Saved       bool          `json:"saved"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Service runs scans.
type Service struct {
	config    Config
	sitemaps  URLSource
	pages     PageFetcher
	builder   *knowledge.Builder
	snapshots SnapshotSaver

	mu      sync.Mutex
	running map[string]bool
}

// New creates a scan service.
func New(config Config, sitemaps URLSource, pages PageFetcher, builder *knowledge.Builder, snapshots SnapshotSaver) *Service {
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}
	return &Service{
		config:    config,
		sitemaps:  sitemaps,
		pages:     pages,
		builder:   builder,
		snapshots: snapshots,
		running:   make(map[string]bool),
	}
}

// Run scans the sitemap, crawls the listed pages, and saves the resulting
// snapshot. Individual page failures are reported in Result.Failed. When no
// page yields content the existing snapshot is left untouched.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	sitemapURL := strings.TrimSpace(req.SitemapURL)
	if sitemapURL == "" {
		sitemapURL = s.config.SitemapURL
	}
	if sitemapURL == "" {
		return nil, ErrNoSitemap
	}
	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = s.config.DefaultLanguage
	}
	postTypes := req.PostTypes
	if len(postTypes) == 0 {
		postTypes = s.config.PostTypes
	}

	if !s.acquire(language) {
		return nil, ErrInProgress
	}
	defer s.release(language)

	start := time.Now()
	result := &Result{ID: uuid.NewString(), Language: language, Failed: []string{}}
	log := slog.With("scan", result.ID, "language", language)
	log.Info("starting scan", "sitemap", sitemapURL, "post_types", postTypes)

	urls, err := s.sitemaps.Scan(ctx, sitemapURL, postTypes)
	if err != nil {
		scansTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to scan sitemap: %w", err)
	}
	result.URLsFound = len(urls)

	pages, failed := s.pages.Crawl(ctx, urls)
	result.Failed = append(result.Failed, failed...)

	docs := make([]knowledge.Document, 0, len(pages))
	for _, p := range pages {
		docs = append(docs, knowledge.Document{URL: p.URL, Title: p.Title, Content: p.Content})
	}
	snap := s.builder.Build(docs)
	result.Pages = snap.Metadata.TotalPages
	result.Chunks = snap.Metadata.TotalChunks

	if snap.Empty() {
		log.Warn("scan produced no content, keeping the existing knowledge base", "urls", len(urls), "failed", len(failed))
	} else {
		if err := s.snapshots.Save(ctx, language, snap); err != nil {
			scansTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		result.Saved = true
	}

	result.Duration = time.Since(start)
	result.CompletedAt = time.Now().UTC()

	scansTotal.WithLabelValues("completed").Inc()
	scanDuration.Observe(result.Duration.Seconds())
	pagesTotal.WithLabelValues("indexed").Add(float64(result.Pages))
	pagesTotal.WithLabelValues("failed").Add(float64(len(result.Failed)))

	log.Info("scan completed",
		"urls", result.URLsFound,
		"pages", result.Pages,
		"chunks", result.Chunks,
		"failed", len(result.Failed),
		"duration", result.Duration,
	)
	return result, nil
}

func (s *Service) acquire(language string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[language] {
		return false
	}
	s.running[language] = true
	return true
}

func (s *Service) release(language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, language)
}
