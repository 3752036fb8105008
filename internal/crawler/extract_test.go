package crawler

import (
	"strings"
	"testing"
)

func TestExtractHTML_RegionPriority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "id main wins over main tag",
			body: `<body><main>tag main</main><div id="main">id main</div></body>`,
			want: "id main",
		},
		{
			name: "main tag",
			body: `<body><div>outside</div><main>inside main</main></body>`,
			want: "inside main",
		},
		{
			name: "elementor container",
			body: `<body><header>top</header><div class="elementor-section elementor-container">builder text</div></body>`,
			want: "builder text",
		},
		{
			name: "falls back to body",
			body: `<body><div>first</div><div>second</div></body>`,
			want: "first second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := ExtractHTML([]byte("<html>"+tt.body+"</html>"), false)
			if err != nil {
				t.Fatalf("ExtractHTML() error = %v", err)
			}
			if ex.Text != tt.want {
				t.Errorf("Text = %q, want %q", ex.Text, tt.want)
			}
		})
	}
}

func TestExtractHTML_MarkdownMode(t *testing.T) {
	body := `<html><head><title>Docs</title></head><body><main><h2>Install</h2><p>Run <strong>make</strong>.</p></main></body></html>`

	ex, err := ExtractHTML([]byte(body), true)
	if err != nil {
		t.Fatalf("ExtractHTML() error = %v", err)
	}
	if !strings.Contains(ex.Text, "## Install") {
		t.Errorf("expected markdown heading, got %q", ex.Text)
	}
	if !strings.Contains(ex.Text, "**make**") {
		t.Errorf("expected markdown emphasis, got %q", ex.Text)
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"collapses whitespace", "a \n\t  b", "a b"},
		{"nav strip", "Home About Us Contact Welcome to the shop", "Welcome to the shop"},
		{"cookie notice", "Prices are low. This website uses cookies to improve your experience. Buy now", "Prices are low. Buy now"},
		{"footer", "Thanks for visiting © 2024 Acme. All rights reserved.", "Thanks for visiting Acme."},
		{"skip link", "Skip to content Our story", "Our story"},
		{"prose untouched", "Ask us about contact lenses", "Ask us about contact lenses"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("héllo wörld", 5); got != "héllo..." {
		t.Errorf("Truncate() = %q, want %q", got, "héllo...")
	}
}

func TestIsMarkdown(t *testing.T) {
	tests := []struct {
		url, contentType, content string
		want                      bool
	}{
		{"https://x.com/a", "text/markdown; charset=utf-8", "", true},
		{"https://x.com/README.md", "text/plain", "", true},
		{"https://x.com/a", "text/plain", "# Title\n\nbody", true},
		{"https://x.com/a", "text/plain", "just words", false},
		{"https://x.com/a", "text/html", "# looks like markdown", false},
		{"https://x.com/a", "text/plain", "<!DOCTYPE html><html>", false},
	}

	for _, tt := range tests {
		if got := isMarkdown(tt.url, tt.contentType, tt.content); got != tt.want {
			t.Errorf("isMarkdown(%q, %q, %q) = %v, want %v", tt.url, tt.contentType, tt.content, got, tt.want)
		}
	}
}
