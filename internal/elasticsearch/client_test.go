package elasticsearch

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mfenderov/multichat/pkg/models"
)

// fakeES records requests and answers like a single-node cluster.
type fakeES struct {
	*httptest.Server
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
}

func newFakeES(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, body string) bool) *fakeES {
	t.Helper()
	f := &fakeES{bodies: make(map[string]string)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.requests = append(f.requests, key)
		f.bodies[key] = string(body)
		f.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if handle != nil && handle(w, r, string(body)) {
			return
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeES) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	client, err := New(Config{Addresses: []string{addr}, Index: "chunks-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	client.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return client
}

func TestClient_IndexChunksBulk(t *testing.T) {
	es := newFakeES(t, func(w http.ResponseWriter, r *http.Request, _ string) bool {
		if r.URL.Path == "/_bulk" {
			w.Write([]byte(`{"errors":false,"items":[{"index":{"status":201}},{"index":{"status":201}}]}`))
			return true
		}
		return false
	})
	client := newTestClient(t, es.URL)

	chunks := []models.Chunk{
		{Text: "Open 9 to 6.", SourceURL: "https://example.com/hours", Title: "Hours", ContentHash: models.Hash("Open 9 to 6.")},
		{Text: "We ship worldwide.", SourceURL: "https://example.com/shipping", Title: "Shipping", ContentHash: models.Hash("We ship worldwide.")},
	}
	n, err := client.IndexChunks(t.Context(), "en", chunks)
	if err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
	if n != 2 {
		t.Errorf("IndexChunks() = %d, want 2", n)
	}

	var lines []string
	sc := bufio.NewScanner(strings.NewReader(es.body("POST /_bulk")))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 4 {
		t.Fatalf("bulk body has %d lines, want 4", len(lines))
	}

	var action struct {
		Index struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		} `json:"index"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &action); err != nil {
		t.Fatal(err)
	}
	if action.Index.Index != "chunks-test" || action.Index.ID != "en-"+chunks[0].ID() {
		t.Errorf("bulk action = %+v", action)
	}

	var doc chunkDoc
	if err := json.Unmarshal([]byte(lines[1]), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Language != "en" || doc.URL != "https://example.com/hours" || doc.Text != "Open 9 to 6." {
		t.Errorf("doc = %+v", doc)
	}
}

func TestClient_IndexChunksPartialFailure(t *testing.T) {
	es := newFakeES(t, func(w http.ResponseWriter, r *http.Request, _ string) bool {
		if r.URL.Path == "/_bulk" {
			w.Write([]byte(`{"errors":true,"items":[{"index":{"status":201}},{"index":{"status":400,"error":{"reason":"mapper_parsing_exception"}}}]}`))
			return true
		}
		return false
	})
	client := newTestClient(t, es.URL)

	n, err := client.IndexChunks(t.Context(), "en", []models.Chunk{{Text: "a"}, {Text: "b"}})
	if err == nil || !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Errorf("IndexChunks() error = %v", err)
	}
	if n != 1 {
		t.Errorf("IndexChunks() = %d, want 1", n)
	}
}

func TestClient_DeleteLanguage(t *testing.T) {
	es := newFakeES(t, nil)
	client := newTestClient(t, es.URL)

	if err := client.DeleteLanguage(t.Context(), "fr"); err != nil {
		t.Fatalf("DeleteLanguage() error = %v", err)
	}
	if body := es.body("POST /chunks-test/_delete_by_query"); !strings.Contains(body, `"language":"fr"`) {
		t.Errorf("delete query = %s", body)
	}

	if err := client.DeleteLanguage(t.Context(), ""); err != nil {
		t.Fatalf("DeleteLanguage(all) error = %v", err)
	}
	if body := es.body("POST /chunks-test/_delete_by_query"); !strings.Contains(body, "match_all") {
		t.Errorf("delete-all query = %s", body)
	}
}

func TestClient_SearchFiltersLanguage(t *testing.T) {
	es := newFakeES(t, func(w http.ResponseWriter, r *http.Request, _ string) bool {
		if strings.HasSuffix(r.URL.Path, "/_search") {
			w.Write([]byte(`{"hits":{"hits":[{"_source":{"id":"en-1","language":"en","url":"https://example.com/hours","title":"Hours","text":"Open 9 to 6."}}]}}`))
			return true
		}
		return false
	})
	client := newTestClient(t, es.URL)

	chunks, err := client.Search(t.Context(), "opening hours", "en", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].SourceURL != "https://example.com/hours" || chunks[0].Title != "Hours" {
		t.Errorf("Search() = %+v", chunks)
	}

	body := es.body("POST /chunks-test/_search")
	if !strings.Contains(body, `"language":"en"`) || !strings.Contains(body, `"size":5`) {
		t.Errorf("search body = %s", body)
	}
}

func skipIfNoES(t *testing.T) {
	if os.Getenv("SKIP_ES_TESTS") == "1" {
		t.Skip("Skipping ES tests (SKIP_ES_TESTS=1)")
	}

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "test-skip-check",
	})
	if err != nil {
		t.Skipf("Skipping ES tests: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !client.Ping(ctx) {
		t.Skip("Skipping ES tests: Elasticsearch not available")
	}
}

func TestIntegration_IndexSearchDelete(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "multichat-test-chunks",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := t.Context()
	client.DeleteIndex(ctx)
	t.Cleanup(func() { client.DeleteIndex(context.Background()) })

	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() second call error = %v", err)
	}

	en := []models.Chunk{
		{Text: "Our business hours are Monday to Friday, 9 AM to 6 PM EST.", SourceURL: "https://example.com/hours", Title: "Hours"},
		{Text: "We ship worldwide within ten days.", SourceURL: "https://example.com/shipping", Title: "Shipping"},
	}
	fr := []models.Chunk{
		{Text: "Nos horaires sont du lundi au vendredi.", SourceURL: "https://example.com/fr/horaires", Title: "Horaires"},
	}
	if _, err := client.IndexChunks(ctx, "en", en); err != nil {
		t.Fatalf("IndexChunks(en) error = %v", err)
	}
	if _, err := client.IndexChunks(ctx, "fr", fr); err != nil {
		t.Fatalf("IndexChunks(fr) error = %v", err)
	}

	results, err := client.Search(ctx, "business hours", "en", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 || results[0].SourceURL != "https://example.com/hours" {
		t.Errorf("Search('business hours') = %+v", results)
	}

	if err := client.DeleteLanguage(ctx, "en"); err != nil {
		t.Fatalf("DeleteLanguage() error = %v", err)
	}
	results, _ = client.Search(ctx, "business hours", "en", 10)
	if len(results) != 0 {
		t.Errorf("en chunks should be gone, got %d", len(results))
	}
	results, _ = client.Search(ctx, "horaires", "fr", 10)
	if len(results) != 1 {
		t.Errorf("fr chunks should remain, got %d", len(results))
	}
}
