package snapshot

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/chatdocs/internal/vectorstore"
	"github.com/nikhilbhutani/chatdocs/pkg/chunker"
)

const defaultTopK = 5

// Index is the snapshot-backed vector index. Reads run concurrently
// against the in-memory entry set; mutations serialize on a writer mutex,
// persist the new snapshot first, and only then swap the in-memory state,
// so a failed save leaves both memory and disk on the prior snapshot.
type Index struct {
	store    Store
	embedder vectorstore.Embedder
	splitter chunker.Chunker

	writeMu sync.Mutex // serializes Add/Update/Delete on this index

	mu      sync.RWMutex
	dim     int // 0 until the first entry is added
	entries map[string]*Entry
	byDoc   map[string][]string // doc_id -> entry IDs
}

// Open loads the persisted snapshot if present, otherwise starts empty.
// An empty index needs no placeholder entry. A snapshot built with a
// different embedding model fails with ErrModelMismatch.
func Open(store Store, embedder vectorstore.Embedder, splitter chunker.Chunker) (*Index, error) {
	if store == nil || embedder == nil || splitter == nil {
		return nil, fmt.Errorf("%w: snapshot index requires a store, an embedder, and a chunker", vectorstore.ErrValidation)
	}

	idx := &Index{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		entries:  make(map[string]*Entry),
		byDoc:    make(map[string][]string),
	}

	snap, ok, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return idx, nil
	}

	if snap.Model != "" && snap.Model != embedder.Model() {
		return nil, fmt.Errorf("%w: snapshot built with %q, configured model is %q",
			vectorstore.ErrModelMismatch, snap.Model, embedder.Model())
	}

	idx.dim = snap.Dimension
	for i := range snap.Entries {
		e := snap.Entries[i]
		if len(e.Vector) != idx.dim {
			return nil, fmt.Errorf("%w: entry %s has dimension %d, snapshot declares %d",
				vectorstore.ErrDimensionMismatch, e.ID, len(e.Vector), idx.dim)
		}
		idx.insertLocked(&e)
	}

	return idx, nil
}

// insertLocked adds an entry to the in-memory maps. Callers hold mu or own
// the index exclusively.
func (idx *Index) insertLocked(e *Entry) {
	idx.entries[e.ID] = e
	if docID := e.Metadata[vectorstore.MetaDocID]; docID != "" {
		idx.byDoc[docID] = append(idx.byDoc[docID], e.ID)
	}
}

func (idx *Index) Add(ctx context.Context, texts []string, metadatas []map[string]string) error {
	if len(texts) != len(metadatas) {
		return fmt.Errorf("%w: %d texts but %d metadatas", vectorstore.ErrValidation, len(texts), len(metadatas))
	}

	docs := make([]chunker.Document, len(texts))
	for i, text := range texts {
		docs[i] = chunker.Document{Content: text, Metadata: metadatas[i]}
	}
	chunks, err := chunker.ChunkAll(ctx, idx.splitter, docs)
	if err != nil {
		return fmt.Errorf("chunk documents: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	contents := make([]string, len(chunks))
	for i, ch := range chunks {
		contents[i] = ch.Content
	}
	vectors, err := idx.embedder.Embed(ctx, contents)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	added := make([]*Entry, len(chunks))
	for i, ch := range chunks {
		added[i] = &Entry{
			ID:       uuid.New().String(),
			Vector:   vectors[i],
			Content:  ch.Content,
			Metadata: ch.Metadata,
		}
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	dim := idx.dim
	if dim == 0 {
		dim = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: got vector of dimension %d, index dimension is %d",
				vectorstore.ErrDimensionMismatch, len(v), dim)
		}
	}

	next := idx.snapshotWith(added, nil, dim)
	if err := idx.store.Save(next); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	idx.mu.Lock()
	idx.dim = dim
	for _, e := range added {
		idx.insertLocked(e)
	}
	idx.mu.Unlock()

	return nil
}

func (idx *Index) Delete(ctx context.Context, docIDs ...string) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	remove := make(map[string]bool)
	idx.mu.RLock()
	for _, docID := range docIDs {
		for _, entryID := range idx.byDoc[docID] {
			remove[entryID] = true
		}
	}
	idx.mu.RUnlock()

	// Deleting documents the index has never seen is a no-op, not an error.
	if len(remove) == 0 {
		return nil
	}

	next := idx.snapshotWith(nil, remove, idx.dim)
	if err := idx.store.Save(next); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	idx.mu.Lock()
	for _, docID := range docIDs {
		for _, entryID := range idx.byDoc[docID] {
			delete(idx.entries, entryID)
		}
		delete(idx.byDoc, docID)
	}
	idx.mu.Unlock()

	return nil
}

// Update replaces documents: Delete then Add. Not atomic — a failure
// between the two leaves the documents absent, and the caller retries.
func (idx *Index) Update(ctx context.Context, docIDs []string, texts []string, metadatas []map[string]string) error {
	if len(docIDs) == 0 || len(texts) == 0 {
		return fmt.Errorf("%w: update requires document IDs and texts", vectorstore.ErrValidation)
	}
	if len(texts) != len(metadatas) {
		return fmt.Errorf("%w: %d texts but %d metadatas", vectorstore.ErrValidation, len(texts), len(metadatas))
	}
	if err := idx.Delete(ctx, docIDs...); err != nil {
		return err
	}
	return idx.Add(ctx, texts, metadatas)
}

func (idx *Index) Search(ctx context.Context, query string, k int, filter map[string]string) ([]vectorstore.Chunk, error) {
	scored, err := idx.search(ctx, query, k, math.Inf(-1), filter)
	if err != nil {
		return nil, err
	}
	chunks := make([]vectorstore.Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = s.Chunk
	}
	return chunks, nil
}

func (idx *Index) SearchWithScore(ctx context.Context, query string, k int, scoreThreshold float64, filter map[string]string) ([]vectorstore.ScoredChunk, error) {
	return idx.search(ctx, query, k, scoreThreshold, filter)
}

func (idx *Index) search(ctx context.Context, query string, k int, scoreThreshold float64, filter map[string]string) ([]vectorstore.ScoredChunk, error) {
	if k <= 0 {
		k = defaultTopK
	}

	idx.mu.RLock()
	empty := len(idx.entries) == 0
	idx.mu.RUnlock()
	if empty {
		return nil, nil
	}

	vectors, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	queryVec := vectors[0]

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(queryVec) != idx.dim {
		return nil, fmt.Errorf("%w: query embedding has dimension %d, index dimension is %d",
			vectorstore.ErrDimensionMismatch, len(queryVec), idx.dim)
	}

	// Metadata filtering happens before scoring, so k results survive
	// filtering whenever the index holds that many matches.
	var results []vectorstore.ScoredChunk
	for _, e := range idx.entries {
		if !vectorstore.MatchesFilter(e.Metadata, filter) {
			continue
		}
		score := cosine(queryVec, e.Vector)
		if score < scoreThreshold {
			continue
		}
		results = append(results, vectorstore.ScoredChunk{
			Chunk: vectorstore.Chunk{Content: e.Content, Metadata: e.Metadata},
			Score: score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Content < results[j].Content
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Len reports the number of stored entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// snapshotWith builds the snapshot that would result from adding and
// removing the given entries, without touching the live state.
func (idx *Index) snapshotWith(added []*Entry, removed map[string]bool, dim int) *Snapshot {
	idx.mu.RLock()
	entries := make([]Entry, 0, len(idx.entries)+len(added))
	for id, e := range idx.entries {
		if removed[id] {
			continue
		}
		entries = append(entries, *e)
	}
	idx.mu.RUnlock()

	for _, e := range added {
		entries = append(entries, *e)
	}
	sortEntries(entries)

	return &Snapshot{
		Model:     idx.embedder.Model(),
		Dimension: dim,
		Entries:   entries,
	}
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
