package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/nikhilbhutani/chatdocs/pkg/chunker"
)

// PgVectorStore is the Postgres-backed index variant: chunk embeddings live
// in a pgvector column instead of the file snapshot. Durability comes from
// the database, so there is no snapshot lifecycle here; the rest of the
// contract (filtering, thresholds, doc_id deletion) is identical.
type PgVectorStore struct {
	db       *pgxpool.Pool
	embedder Embedder
	splitter chunker.Chunker
}

func NewPgVectorStore(db *pgxpool.Pool, embedder Embedder, splitter chunker.Chunker) (*PgVectorStore, error) {
	if db == nil || embedder == nil || splitter == nil {
		return nil, fmt.Errorf("%w: pgvector store requires a pool, an embedder, and a chunker", ErrValidation)
	}
	return &PgVectorStore{db: db, embedder: embedder, splitter: splitter}, nil
}

func (s *PgVectorStore) Add(ctx context.Context, texts []string, metadatas []map[string]string) error {
	if len(texts) != len(metadatas) {
		return fmt.Errorf("%w: %d texts but %d metadatas", ErrValidation, len(texts), len(metadatas))
	}

	docs := make([]chunker.Document, len(texts))
	for i, text := range texts {
		docs[i] = chunker.Document{Content: text, Metadata: metadatas[i]}
	}
	chunks, err := chunker.ChunkAll(ctx, s.splitter, docs)
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
	vectors, err := s.embedder.Embed(ctx, contents)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, ch := range chunks {
		metadata, err := json.Marshal(ch.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO document_chunks (id, doc_id, chat_id, content, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), ch.Metadata[MetaDocID], ch.Metadata[MetaChatID], ch.Content,
			pgvector.NewVector(vectors[i]), metadata,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgVectorStore) Update(ctx context.Context, docIDs []string, texts []string, metadatas []map[string]string) error {
	if len(docIDs) == 0 || len(texts) == 0 {
		return fmt.Errorf("%w: update requires document IDs and texts", ErrValidation)
	}
	if len(texts) != len(metadatas) {
		return fmt.Errorf("%w: %d texts but %d metadatas", ErrValidation, len(texts), len(metadatas))
	}
	if err := s.Delete(ctx, docIDs...); err != nil {
		return err
	}
	return s.Add(ctx, texts, metadatas)
}

func (s *PgVectorStore) Delete(ctx context.Context, docIDs ...string) error {
	if len(docIDs) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, "DELETE FROM document_chunks WHERE doc_id = ANY($1)", docIDs)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *PgVectorStore) Search(ctx context.Context, query string, k int, filter map[string]string) ([]Chunk, error) {
	scored, err := s.SearchWithScore(ctx, query, k, -1, filter)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, len(scored))
	for i, sc := range scored {
		chunks[i] = sc.Chunk
	}
	return chunks, nil
}

func (s *PgVectorStore) SearchWithScore(ctx context.Context, query string, k int, scoreThreshold float64, filter map[string]string) ([]ScoredChunk, error) {
	if k <= 0 {
		k = 5
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}

	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}

	// Native metadata filtering via jsonb containment; an empty filter is
	// `{}` and matches every row.
	rows, err := s.db.Query(ctx,
		`SELECT content, metadata, 1 - (embedding <=> $1) AS score
		 FROM document_chunks
		 WHERE metadata @> $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(vectors[0]), filterJSON, k,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var (
			content  string
			metadata []byte
			score    float64
		)
		if err := rows.Scan(&content, &metadata, &score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if score < scoreThreshold {
			continue
		}
		meta := map[string]string{}
		if err := json.Unmarshal(metadata, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		results = append(results, ScoredChunk{
			Chunk: Chunk{Content: content, Metadata: meta},
			Score: score,
		})
	}
	return results, rows.Err()
}
