package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/chatdocs/internal/llm"
	"github.com/nikhilbhutani/chatdocs/internal/vectorstore"
	"github.com/nikhilbhutani/chatdocs/internal/websearch"
)

type fakeStore struct {
	scored    []vectorstore.ScoredChunk
	searchErr error

	added   [][]string
	deleted [][]string
	updated []string

	lastFilter    map[string]string
	lastThreshold float64
}

func (f *fakeStore) Add(_ context.Context, texts []string, metadatas []map[string]string) error {
	if len(texts) != len(metadatas) {
		return vectorstore.ErrValidation
	}
	f.added = append(f.added, texts)
	return nil
}

func (f *fakeStore) Update(_ context.Context, docIDs, texts []string, _ []map[string]string) error {
	f.updated = append(f.updated, docIDs...)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, docIDs ...string) error {
	f.deleted = append(f.deleted, docIDs)
	return nil
}

func (f *fakeStore) Search(ctx context.Context, query string, k int, filter map[string]string) ([]vectorstore.Chunk, error) {
	scored, err := f.SearchWithScore(ctx, query, k, -1, filter)
	if err != nil {
		return nil, err
	}
	chunks := make([]vectorstore.Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = s.Chunk
	}
	return chunks, nil
}

func (f *fakeStore) SearchWithScore(_ context.Context, _ string, _ int, threshold float64, filter map[string]string) ([]vectorstore.ScoredChunk, error) {
	f.lastFilter = filter
	f.lastThreshold = threshold
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []vectorstore.ScoredChunk
	for _, s := range f.scored {
		if s.Score >= threshold {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeSearch struct {
	results []websearch.Result
	err     error
	calls   int
}

func (f *fakeSearch) Search(_ context.Context, _ string, _ int) ([]websearch.Result, error) {
	f.calls++
	return f.results, f.err
}

type fakeGateway struct {
	answer     string
	err        error
	lastPrompt string
	lastReq    llm.ChatRequest
}

func (f *fakeGateway) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.lastReq = req
	if len(req.Messages) > 0 {
		f.lastPrompt = req.Messages[len(req.Messages)-1].Content
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.answer}, nil
}

func (f *fakeGateway) Embed(_ context.Context, _ llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) Provider(_ string) (llm.Provider, error) {
	return nil, errors.New("not implemented")
}

func scoredChunk(content string, score float64) vectorstore.ScoredChunk {
	return vectorstore.ScoredChunk{
		Chunk: vectorstore.Chunk{Content: content, Metadata: map[string]string{}},
		Score: score,
	}
}

func TestRetrieveJoinsLocalChunks(t *testing.T) {
	store := &fakeStore{scored: []vectorstore.ScoredChunk{
		scoredChunk("first chunk", 0.9),
		scoredChunk("second chunk", 0.8),
	}}
	web := &fakeSearch{}
	r := NewRetriever(store, web, WithSimilarityThreshold(0.5))

	ctx := r.Retrieve(context.Background(), "a question", "")
	assert.Equal(t, "first chunk\nsecond chunk", ctx)
	assert.Equal(t, 0, web.calls, "relevant local results must not trigger web search")
}

func TestRetrieveScopesFilterToChat(t *testing.T) {
	store := &fakeStore{scored: []vectorstore.ScoredChunk{scoredChunk("chunk", 0.9)}}
	r := NewRetriever(store, nil)

	r.Retrieve(context.Background(), "q", "chat42")
	assert.Equal(t, map[string]string{vectorstore.MetaChatID: "chat42"}, store.lastFilter)

	r.Retrieve(context.Background(), "q", "")
	assert.Nil(t, store.lastFilter)
}

func TestRetrieveFallsBackWhenIndexEmpty(t *testing.T) {
	store := &fakeStore{}
	web := &fakeSearch{results: []websearch.Result{
		{Title: "t", Content: "snippet from the web"},
	}}
	r := NewRetriever(store, web)

	ctx := r.Retrieve(context.Background(), "q", "")
	assert.Equal(t, 1, web.calls)
	assert.True(t, strings.HasPrefix(ctx, "Web Search Results:\n"), "web results must be prefixed distinctly, got %q", ctx)
	assert.Contains(t, ctx, "snippet from the web")
}

func TestRetrieveFallsBackWhenBestScoreBelowThreshold(t *testing.T) {
	// The only local match sits under the relevance bar: the threshold
	// filters it out during search, so web search fires.
	store := &fakeStore{scored: []vectorstore.ScoredChunk{scoredChunk("weak match", 0.3)}}
	web := &fakeSearch{results: []websearch.Result{{Content: "web snippet"}}}
	r := NewRetriever(store, web, WithSimilarityThreshold(0.5))

	ctx := r.Retrieve(context.Background(), "q", "")
	assert.Equal(t, 1, web.calls)
	assert.InDelta(t, 0.5, store.lastThreshold, 1e-9)
	assert.NotContains(t, ctx, "weak match")
	assert.Contains(t, ctx, "Web Search Results:")
	assert.Contains(t, ctx, "web snippet")
}

func TestRetrieveNoResultsAnywhere(t *testing.T) {
	store := &fakeStore{}
	web := &fakeSearch{}
	r := NewRetriever(store, web)

	assert.Equal(t, NoResultsContext, r.Retrieve(context.Background(), "q", ""))
}

func TestRetrieveWebFailureDegradesToPlaceholder(t *testing.T) {
	store := &fakeStore{}
	web := &fakeSearch{err: errors.New("tavily down")}
	r := NewRetriever(store, web)

	assert.Equal(t, NoResultsContext, r.Retrieve(context.Background(), "q", ""))
}

func TestRetrieveSearchErrorDegradesToErrorContext(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("index corrupted")}
	r := NewRetriever(store, nil)

	assert.Equal(t, ErrorContext, r.Retrieve(context.Background(), "q", ""))
}

func TestRetrieveWithoutWebClient(t *testing.T) {
	store := &fakeStore{}
	r := NewRetriever(store, nil)

	assert.Equal(t, NoResultsContext, r.Retrieve(context.Background(), "q", ""))
}

func TestFormatPromptKeepsGroundingInstruction(t *testing.T) {
	prompt := FormatPrompt("What is Go?", "Go is a programming language.")
	assert.Contains(t, prompt, "Answer the question based on the context below")
	assert.Contains(t, prompt, `say "I don't know."`)
	assert.Contains(t, prompt, "Context: Go is a programming language.")
	assert.Contains(t, prompt, "Question: What is Go?")
}

func TestGenerateUsesLowTemperature(t *testing.T) {
	gw := &fakeGateway{answer: "grounded answer"}
	gen, err := NewGenerator(gw, "openai", "gpt-4o-mini", time.Second)
	require.NoError(t, err)

	answer, err := gen.Generate(context.Background(), "a prompt")
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", answer)
	assert.InDelta(t, 0.3, gw.lastReq.Temperature, 1e-9)
	assert.Equal(t, "gpt-4o-mini", gw.lastReq.Model)
}

func TestNewGeneratorValidates(t *testing.T) {
	_, err := NewGenerator(nil, "openai", "m", time.Second)
	assert.Error(t, err)

	_, err = NewGenerator(&fakeGateway{}, "openai", "", time.Second)
	assert.Error(t, err)
}

func newTestPipeline(t *testing.T, store *fakeStore, web websearch.Client, gw *fakeGateway) *Pipeline {
	t.Helper()
	gen, err := NewGenerator(gw, "openai", "gpt-4o-mini", time.Second)
	require.NoError(t, err)
	p, err := NewPipeline(store, NewRetriever(store, web), gen, nil)
	require.NoError(t, err)
	return p
}

func TestAnswerThreadsContextThroughPrompt(t *testing.T) {
	store := &fakeStore{scored: []vectorstore.ScoredChunk{scoredChunk("Paris is the capital of France.", 0.9)}}
	gw := &fakeGateway{answer: "Paris."}
	p := newTestPipeline(t, store, nil, gw)

	answer := p.Answer(context.Background(), "What is the capital of France?", "chat1")
	assert.Equal(t, "Paris.", answer)
	assert.Contains(t, gw.lastPrompt, "Paris is the capital of France.")
	assert.Contains(t, gw.lastPrompt, "What is the capital of France?")
}

func TestAnswerDegradesOnGenerationFailure(t *testing.T) {
	store := &fakeStore{scored: []vectorstore.ScoredChunk{scoredChunk("some context", 0.9)}}
	gw := &fakeGateway{err: errors.New("provider timeout")}
	p := newTestPipeline(t, store, nil, gw)

	answer := p.Answer(context.Background(), "q", "")
	assert.Equal(t, DegradedAnswer, answer)
}

func TestIndexDocumentBuildsMetadata(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(t, store, nil, &fakeGateway{})

	err := p.IndexDocument(context.Background(), "d1", "some text", "c1", "report.pdf", "upload")
	require.NoError(t, err)
	require.Len(t, store.added, 1)
	assert.Equal(t, []string{"some text"}, store.added[0])
}

func TestIndexDocumentValidates(t *testing.T) {
	p := newTestPipeline(t, &fakeStore{}, nil, &fakeGateway{})

	err := p.IndexDocument(context.Background(), "", "text", "c1", "", "")
	assert.ErrorIs(t, err, vectorstore.ErrValidation)

	err = p.IndexDocument(context.Background(), "d1", "", "c1", "", "")
	assert.ErrorIs(t, err, vectorstore.ErrValidation)
}

func TestDeleteDocumentsForwards(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(t, store, nil, &fakeGateway{})

	require.NoError(t, p.DeleteDocuments(context.Background(), "d1", "d2"))
	require.Len(t, store.deleted, 1)
	assert.Equal(t, []string{"d1", "d2"}, store.deleted[0])
}

func TestUpdateDocumentForwards(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(t, store, nil, &fakeGateway{})

	require.NoError(t, p.UpdateDocument(context.Background(), "d1", "new text", "c1", "", ""))
	assert.Equal(t, []string{"d1"}, store.updated)
}
