package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/multichat/internal/store"
	"github.com/mfenderov/multichat/pkg/models"
)

const (
	// DefaultTTL is how long a snapshot lives when no TTL is configured.
	DefaultTTL = 7 * 24 * time.Hour
	// MinTTL is the floor applied to any configured TTL.
	MinTTL = time.Hour
)

// Indexer mirrors saved snapshots into a secondary search index.
type Indexer interface {
	IndexChunks(ctx context.Context, language string, chunks []models.Chunk) (int, error)
	DeleteLanguage(ctx context.Context, language string) error
}

// Cache persists one snapshot per language in a store.KV.
type Cache struct {
	kv      store.KV
	prefix  string
	ttl     time.Duration
	indexer Indexer
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithIndexer mirrors every saved snapshot into idx.
func WithIndexer(idx Indexer) CacheOption {
	return func(c *Cache) { c.indexer = idx }
}

// NewCache creates a snapshot cache. Keys are "<prefix>kb:<language>".
func NewCache(kv store.KV, prefix string, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}
	c := &Cache{kv: kv, prefix: prefix, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(language string) string {
	return c.prefix + "kb:" + language
}

// TTL returns the effective snapshot lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Save stores snap for language, replacing any previous snapshot.
// Index failures are logged; the cached snapshot remains authoritative.
func (c *Cache) Save(ctx context.Context, language string, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := c.kv.Set(ctx, c.key(language), data, c.ttl); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	slog.Debug("knowledge base saved", "language", language, "chunks", len(snap.Chunks), "ttl", c.ttl)

	if c.indexer != nil {
		if err := c.indexer.DeleteLanguage(ctx, language); err != nil {
			slog.Warn("failed to clear chunk index", "language", language, "error", err)
		}
		if n, err := c.indexer.IndexChunks(ctx, language, snap.Chunks); err != nil {
			slog.Warn("failed to index chunks", "language", language, "indexed", n, "error", err)
		}
	}
	return nil
}

// Load returns the snapshot for language, or false when none is cached.
func (c *Cache) Load(ctx context.Context, language string) (*models.Snapshot, bool, error) {
	data, ok, err := c.kv.Get(ctx, c.key(language))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, true, nil
}

// Clear removes the snapshot for language, or every snapshot when language is empty.
func (c *Cache) Clear(ctx context.Context, language string) (int, error) {
	var removed int
	if language == "" {
		n, err := c.kv.DeletePrefix(ctx, c.prefix+"kb:")
		if err != nil {
			return 0, fmt.Errorf("failed to clear snapshots: %w", err)
		}
		removed = n
	} else {
		if err := c.kv.Delete(ctx, c.key(language)); err != nil {
			return 0, fmt.Errorf("failed to clear snapshot: %w", err)
		}
		removed = 1
	}

	if c.indexer != nil {
		if err := c.indexer.DeleteLanguage(ctx, language); err != nil {
			slog.Warn("failed to clear chunk index", "language", language, "error", err)
		}
	}
	return removed, nil
}

// IsValid reports whether a non-empty, unexpired snapshot exists for language.
func (c *Cache) IsValid(ctx context.Context, language string) bool {
	snap, ok, err := c.Load(ctx, language)
	if err != nil {
		slog.Warn("knowledge base unreadable", "language", language, "error", err)
		return false
	}
	return ok && !snap.Empty()
}
