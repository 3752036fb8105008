package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Chunk is a bounded fragment of crawled page text used as a unit of retrieval.
type Chunk struct {
	Text        string `json:"text"`
	SourceURL   string `json:"source_url"`
	Title       string `json:"title"`
	ContentHash string `json:"content_hash"` // sha256 of Text
}

// ID returns a deterministic identifier for the chunk.
func (c Chunk) ID() string {
	return GenerateID(c.SourceURL + "#" + c.ContentHash)
}

// SnapshotMetadata summarises the scan that produced a snapshot.
type SnapshotMetadata struct {
	TotalPages  int       `json:"total_pages"`
	TotalChunks int       `json:"total_chunks"`
	ScannedAt   time.Time `json:"scanned_at"`
}

// SourceRef identifies a crawled page contributing to a snapshot.
type SourceRef struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Hash  string `json:"hash"` // sha256 of the page content
}

// Snapshot is the knowledge base for one language.
type Snapshot struct {
	Chunks     []Chunk          `json:"chunks"`
	Metadata   SnapshotMetadata `json:"metadata"`
	SourceURLs []SourceRef      `json:"source_urls"`
}

// Empty reports whether the snapshot has no chunks.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Chunks) == 0
}

// Hash returns the hex sha256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// GenerateID creates a short deterministic ID from a key.
// The ID is the first 16 hex characters of its SHA-256 hash.
func GenerateID(key string) string {
	return Hash(key)[:16]
}
