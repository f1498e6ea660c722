package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/chatdocs/internal/vectorstore"
)

// DegradedAnswer is returned to the user when answer generation fails.
// The chat contract is that every query gets a response, never a bare error.
const DegradedAnswer = "Sorry, I couldn't process your request at this time."

// Pipeline is the entry point the web layer talks to: document lifecycle
// on one side, retrieve-and-answer on the other. Answer runs retrieval and
// generation as one call with no state carried on the pipeline between
// steps, so concurrent requests cannot bleed into each other.
type Pipeline struct {
	store     vectorstore.VectorStore
	retriever *Retriever
	generator *Generator
	logger    *slog.Logger
}

func NewPipeline(store vectorstore.VectorStore, retriever *Retriever, generator *Generator, logger *slog.Logger) (*Pipeline, error) {
	if store == nil || retriever == nil || generator == nil {
		return nil, fmt.Errorf("pipeline requires a vector store, a retriever, and a generator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, retriever: retriever, generator: generator, logger: logger}, nil
}

// IndexDocument chunks and embeds one document's text into the index.
func (p *Pipeline) IndexDocument(ctx context.Context, docID, text, chatID, filename, source string) error {
	if docID == "" {
		return fmt.Errorf("%w: doc_id is required", vectorstore.ErrValidation)
	}
	if text == "" {
		return fmt.Errorf("%w: document text is empty", vectorstore.ErrValidation)
	}

	metadata := map[string]string{
		vectorstore.MetaDocID:  docID,
		vectorstore.MetaChatID: chatID,
	}
	if filename != "" {
		metadata[vectorstore.MetaFilename] = filename
	}
	if source != "" {
		metadata[vectorstore.MetaSource] = source
	}

	if err := p.store.Add(ctx, []string{text}, []map[string]string{metadata}); err != nil {
		return fmt.Errorf("index document %s: %w", docID, err)
	}
	p.logger.Info("document indexed", "doc_id", docID, "chat_id", chatID)
	return nil
}

// DeleteDocuments removes every chunk of the given documents.
func (p *Pipeline) DeleteDocuments(ctx context.Context, docIDs ...string) error {
	if err := p.store.Delete(ctx, docIDs...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// UpdateDocument replaces a document's chunks with freshly chunked text.
func (p *Pipeline) UpdateDocument(ctx context.Context, docID, text, chatID, filename, source string) error {
	if docID == "" || text == "" {
		return fmt.Errorf("%w: update requires a doc_id and text", vectorstore.ErrValidation)
	}

	metadata := map[string]string{
		vectorstore.MetaDocID:  docID,
		vectorstore.MetaChatID: chatID,
	}
	if filename != "" {
		metadata[vectorstore.MetaFilename] = filename
	}
	if source != "" {
		metadata[vectorstore.MetaSource] = source
	}

	if err := p.store.Update(ctx, []string{docID}, []string{text}, []map[string]string{metadata}); err != nil {
		return fmt.Errorf("update document %s: %w", docID, err)
	}
	return nil
}

// Answer retrieves context for the query and generates a grounded answer.
// Retrieval degrades internally; a generation failure degrades here to a
// fixed apology so the user always gets a response.
func (p *Pipeline) Answer(ctx context.Context, query, chatID string) string {
	retrieved := p.retriever.Retrieve(ctx, query, chatID)
	prompt := FormatPrompt(query, retrieved)

	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		p.logger.Error("answer generation failed", "error", err, "chat_id", chatID)
		return DegradedAnswer
	}
	return answer
}
