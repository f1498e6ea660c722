// Package vectorstore defines the vector index contract used by the RAG
// pipeline: chunk-level storage with metadata filtering and
// score-thresholded similarity search.
package vectorstore

import (
	"context"
	"errors"
)

// Well-known metadata keys. Only doc_id and chat_id are load-bearing for
// filtering and deletion; everything else is opaque pass-through.
const (
	MetaDocID    = "doc_id"
	MetaChatID   = "chat_id"
	MetaFilename = "filename"
	MetaSource   = "source"
)

var (
	// ErrValidation marks rejected input (length mismatches, empty required
	// fields). No mutation has happened when it is returned.
	ErrValidation = errors.New("vectorstore: invalid input")

	// ErrDimensionMismatch marks an embedding whose dimensionality disagrees
	// with the index configuration.
	ErrDimensionMismatch = errors.New("vectorstore: embedding dimension mismatch")

	// ErrModelMismatch marks a persisted snapshot built with a different
	// embedding model than the one configured now.
	ErrModelMismatch = errors.New("vectorstore: embedding model mismatch")
)

// Chunk is a retrieval-sized passage with its metadata, as returned from
// search. The index owns all stored chunks.
type Chunk struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// ScoredChunk pairs a chunk with its similarity score (cosine, higher is
// more similar).
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// Embedder is the embedding capability an index implementation needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// VectorStore is the index contract. Mutating operations on one index are
// serialized by implementations; reads may run concurrently with a writer
// and observe the previous state.
type VectorStore interface {
	// Add chunks each text, embeds the chunks, appends them to the index,
	// and persists. len(texts) must equal len(metadatas).
	Add(ctx context.Context, texts []string, metadatas []map[string]string) error

	// Update replaces the given documents: Delete followed by Add. Not
	// atomic; a failure in between leaves the documents absent and the
	// operation retryable.
	Update(ctx context.Context, docIDs []string, texts []string, metadatas []map[string]string) error

	// Delete removes every entry whose doc_id metadata is in docIDs and
	// persists. Deleting unknown IDs is a no-op.
	Delete(ctx context.Context, docIDs ...string) error

	// Search returns up to k chunks ordered by descending similarity,
	// restricted to entries whose metadata matches every filter pair.
	Search(ctx context.Context, query string, k int, filter map[string]string) ([]Chunk, error)

	// SearchWithScore is Search plus per-result scores, dropping results
	// scoring below scoreThreshold.
	SearchWithScore(ctx context.Context, query string, k int, scoreThreshold float64, filter map[string]string) ([]ScoredChunk, error)
}

// MatchesFilter reports whether metadata matches every key-value pair in
// filter. A nil or empty filter matches everything.
func MatchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
