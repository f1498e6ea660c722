// Package models holds the persisted entities shared across services.
package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID               uuid.UUID `json:"id"`
	UserName         string    `json:"user_name"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	OrganizationName string    `json:"organization_name,omitempty"`
	PhoneNumber      string    `json:"phone_number,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Chat struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message sender values.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

type Message struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Document indexing lifecycle.
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusIndexed    = "indexed"
	DocStatusFailed     = "failed"
)

type Document struct {
	ID         uuid.UUID `json:"id"`
	ChatID     uuid.UUID `json:"chat_id"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Extension  string    `json:"extension"`
	FilePath   string    `json:"-"`
	Status     string    `json:"status"`
	UploadDate time.Time `json:"upload_date"`
}

type OTP struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Code      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
