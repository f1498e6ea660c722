// Package chunker splits document text into retrieval-sized passages.
//
// Two strategies are available: a deterministic fixed-size sliding window
// and a semantic splitter that breaks at embedding-distance breakpoints.
package chunker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// DefaultBreakpointPercentile is the adjacent-sentence distance percentile
// above which the semantic chunker inserts a boundary.
const DefaultBreakpointPercentile = 95.0

// Embedder is the embedding capability the semantic strategy requires.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunk is a passage of document text with the metadata of its source
// document attached. Chunks are immutable once produced.
type Chunk struct {
	Content  string
	Metadata map[string]string
}

// Document pairs raw text with its metadata for batch chunking.
type Document struct {
	Content  string
	Metadata map[string]string
}

type Chunker interface {
	// Chunk splits text into passages, copying metadata onto each one.
	// Empty or whitespace-only text yields no chunks and no error.
	Chunk(ctx context.Context, text string, metadata map[string]string) ([]Chunk, error)
}

// ChunkAll chunks each document in order and concatenates the results,
// preserving each document's metadata on every chunk it produces.
func ChunkAll(ctx context.Context, c Chunker, docs []Document) ([]Chunk, error) {
	var all []Chunk
	for _, doc := range docs {
		chunks, err := c.Chunk(ctx, doc.Content, doc.Metadata)
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}

// FixedSize chunks by a sliding window of runes with a configured overlap
// shared between consecutive windows.
type FixedSize struct {
	chunkSize    int
	chunkOverlap int
}

func NewFixedSize(chunkSize, chunkOverlap int) (*FixedSize, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunker: overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &FixedSize{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

func (c *FixedSize) Chunk(_ context.Context, text string, metadata map[string]string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var chunks []Chunk
	runes := []rune(text)
	step := c.chunkSize - c.chunkOverlap

	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		content := string(runes[start:end])
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, Chunk{Content: content, Metadata: cloneMetadata(metadata)})
		}

		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// Semantic chunks at topic boundaries: sentences are embedded, and a chunk
// boundary is placed wherever the cosine distance between adjacent sentences
// exceeds the configured percentile of all adjacent distances.
type Semantic struct {
	embedder   Embedder
	percentile float64
}

// NewSemantic returns an error when the embedding capability is missing or
// the percentile is out of range; a partially-built chunker is never
// returned.
func NewSemantic(embedder Embedder, percentile float64) (*Semantic, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chunker: semantic chunking requires an embedder")
	}
	if percentile <= 0 || percentile > 100 {
		return nil, fmt.Errorf("chunker: breakpoint percentile must be in (0, 100], got %v", percentile)
	}
	return &Semantic{embedder: embedder, percentile: percentile}, nil
}

func (c *Semantic) Chunk(ctx context.Context, text string, metadata map[string]string) ([]Chunk, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}
	if len(sentences) == 1 {
		return []Chunk{{Content: sentences[0], Metadata: cloneMetadata(metadata)}}, nil
	}

	vectors, err := c.embedder.Embed(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("embed sentences: %w", err)
	}
	if len(vectors) != len(sentences) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d sentences", len(vectors), len(sentences))
	}

	distances := make([]float64, len(sentences)-1)
	for i := range distances {
		distances[i] = 1 - cosine(vectors[i], vectors[i+1])
	}
	threshold := percentileOf(distances, c.percentile)

	var chunks []Chunk
	var current []string
	for i, s := range sentences {
		current = append(current, s)
		if i < len(distances) && distances[i] > threshold {
			chunks = append(chunks, Chunk{
				Content:  strings.Join(current, " "),
				Metadata: cloneMetadata(metadata),
			})
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, Chunk{
			Content:  strings.Join(current, " "),
			Metadata: cloneMetadata(metadata),
		})
	}

	return chunks, nil
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n') {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// percentileOf returns the p-th percentile of vals using linear
// interpolation between ranks.
func percentileOf(vals []float64, p float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
