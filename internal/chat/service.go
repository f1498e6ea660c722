// Package chat owns chats and their message history, and drives the
// question-answer loop through the RAG pipeline.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/chatdocs/internal/cache"
	"github.com/nikhilbhutani/chatdocs/internal/models"
)

var ErrNotFound = errors.New("chat not found")

const messagesCacheTTL = 5 * time.Minute

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

// Pipeline answers questions and removes documents from the vector index.
// Satisfied by rag.Pipeline.
type Pipeline interface {
	Answer(ctx context.Context, query, chatID string) string
	DeleteDocuments(ctx context.Context, docIDs ...string) error
}

type Service struct {
	db       DB
	cache    Cache
	pipeline Pipeline
}

func NewService(db DB, c Cache, pipeline Pipeline) *Service {
	return &Service{db: db, cache: c, pipeline: pipeline}
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, title string) (*models.Chat, error) {
	if title == "" {
		title = "New Chat"
	}
	chat := &models.Chat{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(ctx,
		"INSERT INTO chats (id, user_id, title, created_at) VALUES ($1, $2, $3, $4)",
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	s.invalidateChats(ctx, userID)
	return chat, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.QueryRow(ctx,
		"SELECT id, user_id, title, created_at FROM chats WHERE id = $1", id,
	).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return &chat, nil
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	key := cache.ChatsKey(userID.String())
	var cached []models.Chat
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("chats cache read failed", "error", err)
	}

	rows, err := s.db.Query(ctx,
		"SELECT id, user_id, title, created_at FROM chats WHERE user_id = $1 ORDER BY created_at DESC", userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, chats, messagesCacheTTL); err != nil {
		slog.Warn("chats cache write failed", "error", err)
	}
	return chats, nil
}

// Delete removes a chat: its documents' index entries first, then the rows
// (messages and documents go via cascade). A deindex failure aborts the
// delete so the rows survive and the operation can be retried.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	docIDs, err := s.documentIDs(ctx, id, userID)
	if err != nil {
		return err
	}
	if len(docIDs) > 0 {
		if err := s.pipeline.DeleteDocuments(ctx, docIDs...); err != nil {
			return fmt.Errorf("deindex chat documents: %w", err)
		}
	}

	tag, err := s.db.Exec(ctx, "DELETE FROM chats WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.invalidateChats(ctx, userID)
	s.invalidateMessages(ctx, id)
	s.invalidateDocuments(ctx, id)
	return nil
}

// DeleteAll removes every chat the user owns, index entries included.
// Account deletion runs through here before the user row goes.
func (s *Service) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	rows, err := s.db.Query(ctx,
		`SELECT d.id, d.chat_id FROM documents d
		 JOIN chats c ON d.chat_id = c.id WHERE c.user_id = $1`, userID,
	)
	if err != nil {
		return fmt.Errorf("list user documents: %w", err)
	}
	defer rows.Close()

	var docIDs []string
	chatIDs := map[uuid.UUID]bool{}
	for rows.Next() {
		var docID, chatID uuid.UUID
		if err := rows.Scan(&docID, &chatID); err != nil {
			return fmt.Errorf("scan document ID: %w", err)
		}
		docIDs = append(docIDs, docID.String())
		chatIDs[chatID] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(docIDs) > 0 {
		if err := s.pipeline.DeleteDocuments(ctx, docIDs...); err != nil {
			return fmt.Errorf("deindex user documents: %w", err)
		}
	}

	if _, err := s.db.Exec(ctx, "DELETE FROM chats WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("delete chats: %w", err)
	}

	s.invalidateChats(ctx, userID)
	for chatID := range chatIDs {
		s.invalidateMessages(ctx, chatID)
		s.invalidateDocuments(ctx, chatID)
	}
	return nil
}

func (s *Service) Rename(ctx context.Context, id, userID uuid.UUID, title string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE chats SET title = $1 WHERE id = $2 AND user_id = $3", title, id, userID,
	)
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.invalidateChats(ctx, userID)
	return nil
}

func (s *Service) Messages(ctx context.Context, chatID, userID uuid.UUID) ([]models.Message, error) {
	if err := s.owns(ctx, chatID, userID); err != nil {
		return nil, err
	}

	key := cache.MessagesKey(chatID.String())
	var cached []models.Message
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("messages cache read failed", "error", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, chat_id, content, sender, timestamp
		 FROM messages WHERE chat_id = $1 ORDER BY timestamp ASC`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Content, &m.Sender, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, msgs, messagesCacheTTL); err != nil {
		slog.Warn("messages cache write failed", "error", err)
	}
	return msgs, nil
}

// Ask records the user's question, runs retrieval and generation, records
// the bot's reply, and returns it. The pipeline guarantees a response
// string even when retrieval or generation degrade.
func (s *Service) Ask(ctx context.Context, chatID, userID uuid.UUID, question string) (*models.Message, error) {
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if err := s.owns(ctx, chatID, userID); err != nil {
		return nil, err
	}

	if err := s.appendMessage(ctx, chatID, question, models.SenderUser); err != nil {
		return nil, err
	}

	answer := s.pipeline.Answer(ctx, question, chatID.String())

	reply := &models.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		Content:   answer,
		Sender:    models.SenderBot,
		Timestamp: time.Now().UTC(),
	}
	if err := s.insertMessage(ctx, reply); err != nil {
		// The answer was produced; losing the history row should not eat it.
		slog.Error("persist bot message failed", "chat_id", chatID, "error", err)
	}

	s.invalidateMessages(ctx, chatID)
	return reply, nil
}

// owns reports ErrNotFound when the chat does not exist or belongs to a
// different user; the two cases are indistinguishable on purpose.
func (s *Service) owns(ctx context.Context, chatID, userID uuid.UUID) error {
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

func (s *Service) documentIDs(ctx context.Context, chatID, userID uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT d.id FROM documents d
		 JOIN chats c ON d.chat_id = c.id
		 WHERE c.id = $1 AND c.user_id = $2`, chatID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan document ID: %w", err)
		}
		ids = append(ids, id.String())
	}
	return ids, rows.Err()
}

func (s *Service) appendMessage(ctx context.Context, chatID uuid.UUID, content, sender string) error {
	return s.insertMessage(ctx, &models.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) insertMessage(ctx context.Context, m *models.Message) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO messages (id, chat_id, content, sender, timestamp) VALUES ($1, $2, $3, $4, $5)",
		m.ID, m.ChatID, m.Content, m.Sender, m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Service) invalidateChats(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.ChatsKey(userID.String())); err != nil {
		slog.Warn("chats cache invalidation failed", "user_id", userID, "error", err)
	}
}

func (s *Service) invalidateMessages(ctx context.Context, chatID uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.MessagesKey(chatID.String())); err != nil {
		slog.Warn("messages cache invalidation failed", "chat_id", chatID, "error", err)
	}
}

func (s *Service) invalidateDocuments(ctx context.Context, chatID uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.DocumentsKey(chatID.String())); err != nil {
		slog.Warn("documents cache invalidation failed", "chat_id", chatID, "error", err)
	}
}
