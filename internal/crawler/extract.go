package crawler

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// contentSelectors are tried in order; the first match is the content region.
var contentSelectors = []string{"#main", "main", ".elementor-container", "body"}

// boilerplate strips navigation and footer noise that survives DOM cleanup.
var boilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bskip to (main )?content\b`),
	regexp.MustCompile(`(?i)\bhome\s+[|/]?\s*about(\s+us)?(\s+[|/]?\s*(services|blog|shop))*\s+[|/]?\s*contact(\s+us)?\b`),
	regexp.MustCompile(`(?i)(this (web)?site|we) uses? cookies[^.]*\.`),
	regexp.MustCompile(`(?i)\b(accept|reject|manage) (all )?cookies\b`),
	regexp.MustCompile(`(?i)\bcookie (policy|settings|preferences)\b`),
	regexp.MustCompile(`(?i)all rights reserved\.?`),
	regexp.MustCompile(`(?i)(©|&copy;|copyright)\s*\d{4}(\s*[-–]\s*\d{4})?`),
}

// Extracted is the readable part of an HTML page.
type Extracted struct {
	Title       string
	Description string
	Text        string // title, description and content region, whitespace-collapsed
}

// ExtractHTML pulls the readable text out of an HTML document.
// When asMarkdown is set the content region is converted to markdown instead
// of flattened to plain text.
func ExtractHTML(body []byte, asMarkdown bool) (Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Extracted{}, fmt.Errorf("failed to parse html: %w", err)
	}

	title := collapse(doc.Find("title").First().Text())
	desc := collapse(doc.Find(`meta[name="description"]`).First().AttrOr("content", ""))

	doc.Find("script, style, nav, noscript").Remove()

	region := contentRegion(doc)

	var content string
	if asMarkdown {
		fragment, err := goquery.OuterHtml(region)
		if err != nil {
			return Extracted{}, fmt.Errorf("failed to render content region: %w", err)
		}
		content, err = toMarkdown(fragment)
		if err != nil {
			return Extracted{}, fmt.Errorf("failed to convert to markdown: %w", err)
		}
	} else {
		content = nodeText(region.Nodes)
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{title, desc, content} {
		if p != "" {
			parts = append(parts, p)
		}
	}

	return Extracted{
		Title:       title,
		Description: desc,
		Text:        Clean(strings.Join(parts, " ")),
	}, nil
}

func contentRegion(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return doc.Selection
}

// nodeText concatenates text nodes with a space between them, so adjacent
// block elements do not run together the way Selection.Text joins them.
func nodeText(nodes []*html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return b.String()
}

// Clean collapses whitespace and strips boilerplate phrases.
func Clean(text string) string {
	text = collapse(text)
	for _, re := range boilerplate {
		text = re.ReplaceAllString(text, " ")
	}
	return collapse(text)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate bounds s to limit runes, appending "..." when it cut something.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit])) + "..."
}
