package crawler

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var (
	mdHeaderRe = regexp.MustCompile(`^#{1,6}\s+\S`)
	mdListRe   = regexp.MustCompile(`(?m)^[\-\*]\s+\S`)
	mdLinkRe   = regexp.MustCompile(`\[.+?\]\(.+?\)`)
	mdTitleRe  = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// IsMarkdownContentType checks if the Content-Type header indicates markdown.
func IsMarkdownContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/markdown") ||
		strings.HasPrefix(ct, "text/x-markdown")
}

// IsMarkdownURL checks if the URL indicates a markdown file.
func IsMarkdownURL(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasSuffix(lower, ".md") ||
		strings.HasSuffix(lower, ".markdown")
}

// IsMarkdownContent uses heuristics to detect if content is markdown.
// Only consulted for text/plain bodies; an HTML content type always wins.
func IsMarkdownContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || looksLikeHTML(trimmed) {
		return false
	}
	return mdHeaderRe.MatchString(trimmed) ||
		mdListRe.MatchString(trimmed) ||
		mdLinkRe.MatchString(trimmed)
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.HasPrefix(lower, "<!doctype") ||
		strings.HasPrefix(lower, "<html") ||
		strings.HasPrefix(lower, "<head") ||
		strings.HasPrefix(lower, "<body")
}

// isMarkdown decides whether a response body should bypass HTML extraction.
func isMarkdown(url, contentType, content string) bool {
	if IsMarkdownContentType(contentType) || IsMarkdownURL(url) {
		return true
	}
	if strings.HasPrefix(strings.ToLower(contentType), "text/plain") {
		return IsMarkdownContent(content)
	}
	return false
}

// markdownTitle returns the first level-one heading, if any.
func markdownTitle(content string) string {
	m := mdTitleRe.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// toMarkdown converts an HTML fragment to markdown.
func toMarkdown(fragment string) (string, error) {
	if fragment == "" {
		return "", nil
	}
	md, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
