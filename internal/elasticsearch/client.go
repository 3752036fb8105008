// Package elasticsearch mirrors knowledge base chunks into a search index.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/mfenderov/multichat/pkg/models"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
}

// Client wraps the Elasticsearch client with chunk index operations.
type Client struct {
	es    *elasticsearch.Client
	index string
	now   func() time.Time
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	if config.Index == "" {
		config.Index = "multichat-chunks"
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{es: es, index: config.Index, now: time.Now}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

var indexMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"language": { "type": "keyword" },
			"url": { "type": "keyword" },
			"title": { "type": "text" },
			"text": { "type": "text" },
			"content_hash": { "type": "keyword" },
			"indexed_at": { "type": "date" }
		}
	}
}`

// chunkDoc is the indexed form of a chunk.
type chunkDoc struct {
	ID          string    `json:"id"`
	Language    string    `json:"language"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	ContentHash string    `json:"content_hash"`
	IndexedAt   time.Time `json:"indexed_at"`
}

func docID(language string, c models.Chunk) string {
	return language + "-" + c.ID()
}

// CreateIndex creates the index with its mapping unless it already exists.
func (c *Client) CreateIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}
	return nil
}

// DeleteIndex removes the index.
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// IndexChunks writes chunks for language with a single bulk request and
// returns how many were accepted.
func (c *Client) IndexChunks(ctx context.Context, language string, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := c.CreateIndex(ctx); err != nil {
		return 0, err
	}

	indexedAt := c.now().UTC()
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, chunk := range chunks {
		id := docID(language, chunk)
		meta := map[string]any{"index": map[string]any{"_index": c.index, "_id": id}}
		if err := enc.Encode(meta); err != nil {
			return 0, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		doc := chunkDoc{
			ID:          id,
			Language:    language,
			URL:         chunk.SourceURL,
			Title:       chunk.Title,
			Text:        chunk.Text,
			ContentHash: chunk.ContentHash,
			IndexedAt:   indexedAt,
		}
		if err := enc.Encode(doc); err != nil {
			return 0, fmt.Errorf("failed to encode chunk: %w", err)
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(body.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to index chunks: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("error indexing chunks (status %d): %s", res.StatusCode, res.String())
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return 0, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	indexed := 0
	var firstErr string
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error == nil && result.Status < 300 {
				indexed++
			} else if firstErr == "" && result.Error != nil {
				firstErr = result.Error.Reason
			}
		}
	}
	if br.Errors {
		return indexed, fmt.Errorf("%d of %d chunks failed to index: %s", len(chunks)-indexed, len(chunks), firstErr)
	}
	return indexed, nil
}

// DeleteLanguage removes every chunk indexed for language. An empty language
// removes all chunks.
func (c *Client) DeleteLanguage(ctx context.Context, language string) error {
	query := map[string]any{"query": map[string]any{"match_all": map[string]any{}}}
	if language != "" {
		query = map[string]any{"query": map[string]any{"term": map[string]any{"language": language}}}
	}
	data, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(data),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	defer res.Body.Close()

	// a missing index has nothing to delete
	if res.StatusCode == 404 {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("error deleting chunks: %s", res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source chunkDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search performs a BM25 text search over chunk text and titles within language.
func (c *Client) Search(ctx context.Context, query, language string, limit int) ([]models.Chunk, error) {
	if limit <= 0 {
		limit = 3
	}
	searchQuery := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":  query,
						"fields": []string{"text", "title^2"},
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"language": language},
				},
			},
		},
		"size": limit,
	}

	data, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	chunks := make([]models.Chunk, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		chunks[i] = models.Chunk{
			Text:        hit.Source.Text,
			SourceURL:   hit.Source.URL,
			Title:       hit.Source.Title,
			ContentHash: hit.Source.ContentHash,
		}
	}
	return chunks, nil
}
