package sitemap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config holds sitemap scanner configuration.
type Config struct {
	Timeout            time.Duration
	UserAgent          string
	InsecureSkipVerify bool
	MaxDepth           int // nesting levels of sitemap indexes, the root sitemap is level 1
	MaxURLs            int
}

// Scanner resolves a sitemap (or sitemap index) to a flat list of page URLs.
type Scanner struct {
	config Config
}

// New creates a new Scanner.
func New(config Config) *Scanner {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (compatible; MultiChatBot/1.0)"
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 5
	}
	if config.MaxURLs == 0 {
		config.MaxURLs = 10000
	}
	return &Scanner{config: config}
}

var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/(category|tag|author|search|feed|archives?|wp-json|wp-admin|wp-content|cart|checkout|my-account)(/|$)`),
	regexp.MustCompile(`/page/\d+/?$`),
	regexp.MustCompile(`/\d{4}/(\d{2}/)?$`), // date archives
	regexp.MustCompile(`\.(jpe?g|png|gif|webp|svg|ico|pdf|zip|gz|rar|mp3|mp4|mov|avi|docx?|xlsx?|pptx?|css|js|xml|txt)$`),
}

// Allowed reports whether a URL is a candidate content page.
func Allowed(raw string) bool {
	if strings.ContainsAny(raw, "?#") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, re := range denyPatterns {
		if re.MatchString(p) {
			return false
		}
	}
	return true
}

// Classify guesses the post type of a URL from its path.
func Classify(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "page"
	}
	var segments []string
	for _, s := range strings.Split(strings.ToLower(u.Path), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	for _, s := range segments {
		switch s {
		case "blog", "post", "posts", "news", "article", "articles":
			return "post"
		case "product", "products", "shop":
			return "product"
		case "category":
			return "category"
		case "tag":
			return "tag"
		}
	}
	if len(segments) <= 2 {
		return "page"
	}
	return "post"
}

// Scan fetches sitemapURL and returns the de-duplicated page URLs it lists,
// recursing into nested sitemaps. When postTypes is non-empty only URLs
// classified as one of them are kept.
//
// An error is returned only when the root sitemap cannot be fetched or
// parsed; the URL list is empty in that case. Nested sitemap failures are
// logged and skipped.
func (s *Scanner) Scan(ctx context.Context, sitemapURL string, postTypes []string) ([]string, error) {
	col := colly.NewCollector(
		colly.UserAgent(s.config.UserAgent),
		colly.MaxDepth(s.config.MaxDepth),
		colly.StdlibContext(ctx),
	)
	col.WithTransport(&http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: s.config.InsecureSkipVerify}, //nolint:gosec // configurable for sites with broken chains
	})
	col.SetRequestTimeout(s.config.Timeout)

	var (
		mu     sync.Mutex
		seen   = make(map[string]struct{})
		urls   []string
		capped bool
	)

	full := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return capped
	}

	col.OnXML("//sitemapindex/sitemap/loc", func(e *colly.XMLElement) {
		if full() {
			return
		}
		loc := strings.TrimSpace(e.Text)
		if loc == "" {
			return
		}
		slog.Debug("following nested sitemap", "url", loc, "depth", e.Request.Depth+1)
		if err := e.Request.Visit(loc); err != nil {
			var visited *colly.AlreadyVisitedError
			if !errors.As(err, &visited) {
				slog.Warn("skipping nested sitemap", "url", loc, "error", err)
			}
		}
	})

	col.OnXML("//urlset/url/loc", func(e *colly.XMLElement) {
		loc := strings.TrimSpace(e.Text)
		if loc == "" || !Allowed(loc) {
			return
		}
		if len(postTypes) > 0 && !slices.Contains(postTypes, Classify(loc)) {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if capped {
			return
		}
		if _, ok := seen[loc]; ok {
			return
		}
		seen[loc] = struct{}{}
		urls = append(urls, loc)
		if len(urls) >= s.config.MaxURLs {
			capped = true
			slog.Warn("sitemap url cap reached", "max_urls", s.config.MaxURLs)
		}
	})

	if err := col.Visit(sitemapURL); err != nil {
		slog.Error("failed to scan sitemap", "url", sitemapURL, "error", err)
		return nil, fmt.Errorf("failed to fetch sitemap %s: %w", sitemapURL, err)
	}
	col.Wait()

	slog.Info("sitemap scanned", "url", sitemapURL, "urls", len(urls))
	return urls, nil
}
