// Package knowledge turns crawled pages into chunked knowledge base
// snapshots, caches them per language and ranks chunks against a query.
package knowledge

import (
	"strings"
	"time"

	"github.com/mfenderov/multichat/pkg/models"
)

// Document is one crawled page handed to the builder.
type Document struct {
	URL     string
	Title   string
	Content string
}

// Builder produces snapshots from crawl results.
type Builder struct {
	maxChunkSize int
	now          func() time.Time
}

// NewBuilder creates a Builder that bounds chunks to maxChunkSize runes.
func NewBuilder(maxChunkSize int) *Builder {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &Builder{maxChunkSize: maxChunkSize, now: time.Now}
}

// Build chunks every document with content. Documents without content are
// skipped; an empty input yields an empty snapshot rather than an error.
func (b *Builder) Build(docs []Document) *models.Snapshot {
	snap := &models.Snapshot{
		Chunks:     []models.Chunk{},
		SourceURLs: []models.SourceRef{},
	}

	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}

		title := doc.Title
		if title == "" {
			title = doc.URL
		}

		texts := Split(content, b.maxChunkSize)
		if len(texts) == 0 {
			continue
		}
		for _, text := range texts {
			snap.Chunks = append(snap.Chunks, models.Chunk{
				Text:        text,
				SourceURL:   doc.URL,
				Title:       title,
				ContentHash: models.Hash(text),
			})
		}
		snap.SourceURLs = append(snap.SourceURLs, models.SourceRef{
			URL:   doc.URL,
			Title: title,
			Hash:  models.Hash(content),
		})
	}

	snap.Metadata = models.SnapshotMetadata{
		TotalPages:  len(snap.SourceURLs),
		TotalChunks: len(snap.Chunks),
		ScannedAt:   b.now().UTC(),
	}
	return snap
}
