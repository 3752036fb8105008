package crawler

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config holds crawler configuration.
type Config struct {
	Timeout            time.Duration
	UserAgent          string
	InsecureSkipVerify bool
	MaxPages           int // upper bound for a single Crawl call
	MaxContentLength   int // runes kept per page
	Delay              time.Duration
	Markdown           bool
}

// Page is the readable content of one fetched URL.
type Page struct {
	URL     string
	Title   string
	Content string
}

// Crawler fetches pages and extracts their readable text.
type Crawler struct {
	config Config
}

// New creates a new Crawler with the given configuration.
func New(config Config) *Crawler {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (compatible; MultiChatBot/1.0)"
	}
	if config.MaxContentLength == 0 {
		config.MaxContentLength = 5000
	}
	if config.MaxPages == 0 {
		config.MaxPages = 100
	}
	return &Crawler{config: config}
}

// newCollector builds a synchronous collector. Visit blocks until the
// response callbacks ran, so callers can read what they captured right after.
func (c *Crawler) newCollector(ctx context.Context) *colly.Collector {
	col := colly.NewCollector(
		colly.UserAgent(c.config.UserAgent),
		colly.StdlibContext(ctx),
	)
	col.WithTransport(&http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: c.config.InsecureSkipVerify}, //nolint:gosec // configurable for sites with broken chains
	})
	col.SetRequestTimeout(c.config.Timeout)
	if c.config.Delay > 0 {
		_ = col.Limit(&colly.LimitRule{DomainGlob: "*", Delay: c.config.Delay})
	}
	return col
}

// Fetch retrieves a single URL. Any failure is logged and yields a Page
// with empty Content; it is never returned as an error.
func (c *Crawler) Fetch(ctx context.Context, pageURL string) Page {
	pages, _ := c.crawl(ctx, []string{pageURL}, 1)
	if len(pages) == 0 {
		return Page{URL: pageURL}
	}
	return pages[0]
}

// Crawl fetches urls in order, up to MaxPages. Pages that fail or have no
// readable content are skipped and reported in failed.
func (c *Crawler) Crawl(ctx context.Context, urls []string) (pages []Page, failed []string) {
	return c.crawl(ctx, urls, c.config.MaxPages)
}

func (c *Crawler) crawl(ctx context.Context, urls []string, limit int) ([]Page, []string) {
	col := c.newCollector(ctx)

	var current *Page
	col.OnResponse(func(r *colly.Response) {
		page, err := c.extract(r.Request.URL.String(), r.Headers.Get("Content-Type"), r.Body)
		if err != nil {
			slog.Warn("failed to extract page", "url", r.Request.URL.String(), "error", err)
			return
		}
		current = &page
	})

	var pages []Page
	var failed []string
	seen := make(map[string]bool, len(urls))

	for _, u := range urls {
		if len(pages) >= limit {
			slog.Debug("crawl limit reached", "limit", limit)
			break
		}
		if ctx.Err() != nil {
			break
		}
		if seen[u] {
			continue
		}
		seen[u] = true

		if err := validateURL(u); err != nil {
			slog.Warn("skipping url", "url", u, "error", err)
			failed = append(failed, u)
			continue
		}

		current = nil
		if err := col.Visit(u); err != nil {
			slog.Warn("failed to fetch page", "url", u, "error", err)
			failed = append(failed, u)
			continue
		}
		if current == nil || current.Content == "" {
			slog.Debug("page has no readable content", "url", u)
			failed = append(failed, u)
			continue
		}

		// Keep the requested URL so callers can match results to their input.
		current.URL = u
		pages = append(pages, *current)
		slog.Debug("crawled page", "url", u, "title", current.Title, "chars", len(current.Content))
	}

	return pages, failed
}

func (c *Crawler) extract(pageURL, contentType string, body []byte) (Page, error) {
	page := Page{URL: pageURL}

	if isMarkdown(pageURL, contentType, string(body)) {
		content := string(body)
		page.Title = markdownTitle(content)
		page.Content = Truncate(Clean(content), c.config.MaxContentLength)
		return page, nil
	}

	ex, err := ExtractHTML(body, c.config.Markdown)
	if err != nil {
		return page, err
	}
	page.Title = ex.Title
	page.Content = Truncate(ex.Text, c.config.MaxContentLength)
	return page, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}
