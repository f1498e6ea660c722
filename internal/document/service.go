// Package document owns the upload lifecycle: store the file, record it,
// and hand indexing off to the queue.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/chatdocs/internal/cache"
	"github.com/nikhilbhutani/chatdocs/internal/models"
	"github.com/nikhilbhutani/chatdocs/internal/queue"
	"github.com/nikhilbhutani/chatdocs/internal/storage"
	"github.com/nikhilbhutani/chatdocs/pkg/textextract"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNotFound        = errors.New("document not found")
)

const documentsCacheTTL = 5 * time.Minute

// DB is the subset of pgxpool.Pool the service uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Cache is the cache surface the service uses. Satisfied by cache.Cache.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Enqueuer hands indexing work to the queue. Satisfied by queue.Client.
type Enqueuer interface {
	EnqueueDocumentIndex(p queue.DocumentIndexPayload) error
}

type Service struct {
	db      DB
	storage storage.Storage
	cache   Cache
	queue   Enqueuer
}

func NewService(db DB, store storage.Storage, c Cache, qc Enqueuer) *Service {
	return &Service{db: db, storage: store, cache: c, queue: qc}
}

type UploadRequest struct {
	ChatID   uuid.UUID
	UserID   uuid.UUID
	Filename string
	Size     int64
	Data     io.Reader
}

// Upload stores the file, records the document as pending, and enqueues
// indexing. The document becomes searchable once the worker finishes.
// The target chat must belong to the uploading user.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !textextract.Supported(ext) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	if err := s.ownsChat(ctx, req.ChatID, req.UserID); err != nil {
		return nil, err
	}

	docID := uuid.New()
	path := fmt.Sprintf("%s/%s%s", req.ChatID, docID, ext)

	if err := s.storage.Upload(ctx, path, req.Data); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &models.Document{
		ID:         docID,
		ChatID:     req.ChatID,
		Filename:   req.Filename,
		Size:       req.Size,
		Extension:  ext,
		FilePath:   path,
		Status:     models.DocStatusPending,
		UploadDate: time.Now().UTC(),
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO documents (id, chat_id, filename, size, extension, file_path, status, upload_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.ChatID, doc.Filename, doc.Size, doc.Extension, doc.FilePath, doc.Status, doc.UploadDate,
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	s.invalidate(ctx, req.ChatID)

	if err := s.queue.EnqueueDocumentIndex(queue.DocumentIndexPayload{
		DocumentID: docID.String(),
		ChatID:     req.ChatID.String(),
	}); err != nil {
		return nil, fmt.Errorf("enqueue indexing: %w", err)
	}

	return doc, nil
}

// GetByID is unscoped; the indexing worker uses it. HTTP handlers go
// through GetForUser instead.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, chat_id, filename, size, extension, file_path, status, upload_date
		 FROM documents WHERE id = $1`, id,
	)
	return scanDocument(row)
}

// GetForUser returns the document only when its chat belongs to the user.
func (s *Service) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Document, error) {
	row := s.db.QueryRow(ctx,
		`SELECT d.id, d.chat_id, d.filename, d.size, d.extension, d.file_path, d.status, d.upload_date
		 FROM documents d JOIN chats c ON d.chat_id = c.id
		 WHERE d.id = $1 AND c.user_id = $2`, id, userID,
	)
	return scanDocument(row)
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(&doc.ID, &doc.ChatID, &doc.Filename, &doc.Size, &doc.Extension, &doc.FilePath, &doc.Status, &doc.UploadDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

func (s *Service) ListByChat(ctx context.Context, chatID, userID uuid.UUID) ([]models.Document, error) {
	if err := s.ownsChat(ctx, chatID, userID); err != nil {
		return nil, err
	}

	key := cache.DocumentsKey(chatID.String())
	var cached []models.Document
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("documents cache read failed", "error", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, chat_id, filename, size, extension, file_path, status, upload_date
		 FROM documents WHERE chat_id = $1 ORDER BY upload_date DESC`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.ChatID, &doc.Filename, &doc.Size, &doc.Extension, &doc.FilePath, &doc.Status, &doc.UploadDate); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, docs, documentsCacheTTL); err != nil {
		slog.Warn("documents cache write failed", "error", err)
	}
	return docs, nil
}

// Delete removes a document: its index entries first, then the row, then
// the stored file. A deindex failure aborts the delete so the row survives
// and the operation can be retried.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID, deindex func(context.Context, ...string) error) error {
	doc, err := s.GetForUser(ctx, id, userID)
	if err != nil {
		return err
	}

	if err := deindex(ctx, id.String()); err != nil {
		return fmt.Errorf("deindex document %s: %w", id, err)
	}

	if _, err := s.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	// The blob is unreachable once the row is gone; a leaked file costs
	// only disk space.
	if err := s.storage.Delete(ctx, doc.FilePath); err != nil {
		slog.Warn("delete stored file failed", "doc_id", id, "error", err)
	}

	s.invalidate(ctx, doc.ChatID)
	return nil
}

// Open returns the document row and a reader over its stored file, scoped
// to the owning user. The caller closes the reader.
func (s *Service) Open(ctx context.Context, id, userID uuid.UUID) (*models.Document, io.ReadCloser, error) {
	doc, err := s.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Download(ctx, doc.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open stored file: %w", err)
	}
	return doc, rc, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.Exec(ctx, "UPDATE documents SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

// ExtractText downloads the stored file and pulls its plain text.
func (s *Service) ExtractText(ctx context.Context, doc *models.Document) (string, error) {
	reader, err := s.storage.Download(ctx, doc.FilePath)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	result, err := textextract.Extract(bytes.NewReader(data), int64(len(data)), doc.Extension)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

func (s *Service) ownsChat(ctx context.Context, chatID, userID uuid.UUID) error {
	var ok bool
	if err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM chats WHERE id = $1 AND user_id = $2)", chatID, userID,
	).Scan(&ok); err != nil {
		return fmt.Errorf("check chat owner: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, chatID uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.DocumentsKey(chatID.String())); err != nil {
		slog.Warn("documents cache invalidation failed", "chat_id", chatID, "error", err)
	}
}
