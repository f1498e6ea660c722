package snapshot

import (
	"context"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/chatdocs/internal/vectorstore"
	"github.com/nikhilbhutani/chatdocs/pkg/chunker"
)

// bowEmbedder is a deterministic bag-of-words embedder: texts sharing
// vocabulary get high cosine similarity, with no network involved.
type bowEmbedder struct {
	dim   int
	model string
}

func (e bowEmbedder) Model() string { return e.model }

func (e bowEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			h.Write([]byte(strings.Trim(w, ".,!?")))
			v[h.Sum32()%uint32(e.dim)]++
		}
		vecs[i] = v
	}
	return vecs, nil
}

func newTestIndex(t *testing.T, store Store) *Index {
	t.Helper()
	split, err := chunker.NewFixedSize(1000, 100)
	require.NoError(t, err)
	idx, err := Open(store, bowEmbedder{dim: 64, model: "bow-64"}, split)
	require.NoError(t, err)
	return idx
}

func meta(docID, chatID string) map[string]string {
	return map[string]string{
		vectorstore.MetaDocID:  docID,
		vectorstore.MetaChatID: chatID,
	}
}

func TestOpenEmptyIndex(t *testing.T) {
	idx := newTestIndex(t, NewMemStore())
	assert.Equal(t, 0, idx.Len())

	chunks, err := idx.Search(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, chunks, "empty index search returns empty, not an error")
}

func TestAddValidatesLengthsBeforeMutation(t *testing.T) {
	store := NewMemStore()
	idx := newTestIndex(t, store)

	err := idx.Add(context.Background(), []string{"a", "b"}, []map[string]string{{}})
	require.ErrorIs(t, err, vectorstore.ErrValidation)
	assert.Equal(t, 0, idx.Len(), "no mutation on validation failure")
	assert.Equal(t, 0, store.SaveCount, "no snapshot written on validation failure")
}

func TestAddThenSearchFindsAddedText(t *testing.T) {
	idx := newTestIndex(t, NewMemStore())
	ctx := context.Background()

	err := idx.Add(ctx, []string{"Paris is the capital of France."}, []map[string]string{meta("d1", "chat1")})
	require.NoError(t, err)

	scored, err := idx.SearchWithScore(ctx, "What is the capital of France?", 3, 0, nil)
	require.NoError(t, err)
	require.NotEmpty(t, scored)
	assert.Contains(t, scored[0].Content, "Paris")
	assert.Greater(t, scored[0].Score, 0.5)
	assert.Equal(t, "d1", scored[0].Metadata[vectorstore.MetaDocID])
}

func TestDeleteRemovesEveryEntryForDocument(t *testing.T) {
	store := NewMemStore()
	idx := newTestIndex(t, store)
	ctx := context.Background()

	// Two texts under the same doc_id, one under another.
	require.NoError(t, idx.Add(ctx,
		[]string{"alpha body text one", "alpha body text two", "beta body text"},
		[]map[string]string{meta("dA", "c1"), meta("dA", "c1"), meta("dB", "c1")},
	))
	require.Equal(t, 3, idx.Len())

	require.NoError(t, idx.Delete(ctx, "dA"))
	assert.Equal(t, 1, idx.Len())

	chunks, err := idx.Search(ctx, "alpha body text", 10, nil)
	require.NoError(t, err)
	for _, ch := range chunks {
		assert.NotEqual(t, "dA", ch.Metadata[vectorstore.MetaDocID], "deleted doc must never be returned")
	}

	chunks, err = idx.Search(ctx, "beta body text", 10, map[string]string{vectorstore.MetaDocID: "dB"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "dB", chunks[0].Metadata[vectorstore.MetaDocID])
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := NewMemStore()
	idx := newTestIndex(t, store)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"some text"}, []map[string]string{meta("d1", "c1")}))
	require.NoError(t, idx.Delete(ctx, "d1"))
	saves := store.SaveCount

	// Second delete: no error, no change, no rewrite.
	require.NoError(t, idx.Delete(ctx, "d1"))
	assert.Equal(t, saves, store.SaveCount)
	assert.Equal(t, 0, idx.Len())
}

func TestDeletePersistsAcrossReopen(t *testing.T) {
	store := NewMemStore()
	idx := newTestIndex(t, store)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"first chunk about ships", "second chunk about ships"},
		[]map[string]string{meta("d1", "c1"), meta("d1", "c1")},
	))
	require.NoError(t, idx.Delete(ctx, "d1"))

	reopened := newTestIndex(t, store)
	assert.Equal(t, 0, reopened.Len(), "removal must survive restart")
}

func TestSearchWithScoreThresholdLaw(t *testing.T) {
	idx := newTestIndex(t, NewMemStore())
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{
			"Paris is the capital of France.",
			"Bananas are yellow fruit grown in tropical climates.",
			"Go is a statically typed programming language.",
		},
		[]map[string]string{meta("d1", "c1"), meta("d2", "c1"), meta("d3", "c1")},
	))

	const threshold = 0.4
	scored, err := idx.SearchWithScore(ctx, "What is the capital of France?", 10, threshold, nil)
	require.NoError(t, err)
	for _, s := range scored {
		assert.GreaterOrEqual(t, s.Score, float64(threshold))
	}
}

func TestSearchFilterByChatID(t *testing.T) {
	idx := newTestIndex(t, NewMemStore())
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"shared topic in chat one", "shared topic in chat two"},
		[]map[string]string{meta("d1", "chat1"), meta("d2", "chat2")},
	))

	chunks, err := idx.Search(ctx, "shared topic", 10, map[string]string{vectorstore.MetaChatID: "chat1"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "chat1", chunks[0].Metadata[vectorstore.MetaChatID])
}

func TestUpdateReplacesDocument(t *testing.T) {
	idx := newTestIndex(t, NewMemStore())
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"old content about dogs"}, []map[string]string{meta("d1", "c1")}))
	require.NoError(t, idx.Update(ctx, []string{"d1"}, []string{"new content about cats"}, []map[string]string{meta("d1", "c1")}))

	chunks, err := idx.Search(ctx, "content", 10, map[string]string{vectorstore.MetaDocID: "d1"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "cats")
}

func TestUpdateValidatesInput(t *testing.T) {
	idx := newTestIndex(t, NewMemStore())
	err := idx.Update(context.Background(), nil, []string{"x"}, []map[string]string{{}})
	assert.ErrorIs(t, err, vectorstore.ErrValidation)
}

func TestPersistenceFailureLeavesIndexUnchanged(t *testing.T) {
	store := NewMemStore()
	idx := newTestIndex(t, store)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"durable text"}, []map[string]string{meta("d1", "c1")}))

	store.FailSaves = true
	err := idx.Add(ctx, []string{"text that must not land"}, []map[string]string{meta("d2", "c1")})
	require.Error(t, err)
	assert.Equal(t, 1, idx.Len(), "failed persistence must not mutate the live index")

	store.FailSaves = false
	reopened := newTestIndex(t, store)
	assert.Equal(t, 1, reopened.Len(), "prior snapshot stays authoritative")
}

func TestOpenRejectsModelMismatch(t *testing.T) {
	store := NewMemStore()
	idx := newTestIndex(t, store)
	require.NoError(t, idx.Add(context.Background(), []string{"some text"}, []map[string]string{meta("d1", "c1")}))

	split, err := chunker.NewFixedSize(1000, 100)
	require.NoError(t, err)
	_, err = Open(store, bowEmbedder{dim: 64, model: "other-model"}, split)
	assert.ErrorIs(t, err, vectorstore.ErrModelMismatch)
}

func TestSearchOrdersByDescendingScore(t *testing.T) {
	idx := newTestIndex(t, NewMemStore())
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{
			"the capital of France is Paris",
			"France is a country in Europe",
			"completely unrelated gardening advice",
		},
		[]map[string]string{meta("d1", "c1"), meta("d2", "c1"), meta("d3", "c1")},
	))

	scored, err := idx.SearchWithScore(ctx, "what is the capital of France", 3, 0, nil)
	require.NoError(t, err)
	require.NotEmpty(t, scored)
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].Score, scored[i].Score)
	}
	assert.Contains(t, scored[0].Content, "Paris")
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "index.snapshot")
	store := NewFileStore(path)
	ctx := context.Background()

	idx := newTestIndex(t, store)
	require.NoError(t, idx.Add(ctx,
		[]string{"Paris is the capital of France."},
		[]map[string]string{meta("d1", "chat1")},
	))

	reopened := newTestIndex(t, store)
	require.Equal(t, 1, reopened.Len())

	scored, err := reopened.SearchWithScore(ctx, "capital of France", 3, 0, nil)
	require.NoError(t, err)
	require.NotEmpty(t, scored)
	assert.Contains(t, scored[0].Content, "Paris")

	// Deletion must be visible after another restart.
	require.NoError(t, reopened.Delete(ctx, "d1"))
	again := newTestIndex(t, store)
	assert.Equal(t, 0, again.Len())
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.snapshot"))
	snap, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, snap)
}
