// Package auth covers accounts, JWT session tokens, and OTP verification.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/nikhilbhutani/chatdocs/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
)

type Service struct {
	db       *pgxpool.Pool
	secret   []byte
	tokenTTL time.Duration
}

func NewService(db *pgxpool.Pool, jwtSecret string, tokenTTL time.Duration) (*Service, error) {
	if jwtSecret == "" {
		return nil, fmt.Errorf("auth: JWT secret is required")
	}
	return &Service{db: db, secret: []byte(jwtSecret), tokenTTL: tokenTTL}, nil
}

type RegisterRequest struct {
	UserName         string
	Email            string
	Password         string
	OrganizationName string
	PhoneNumber      string
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if req.Email == "" || req.Password == "" || req.UserName == "" {
		return nil, fmt.Errorf("user_name, email, and password are required")
	}

	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", req.Email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:               uuid.New(),
		UserName:         req.UserName,
		Email:            req.Email,
		PasswordHash:     string(hash),
		OrganizationName: req.OrganizationName,
		PhoneNumber:      req.PhoneNumber,
		CreatedAt:        time.Now().UTC(),
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO users (id, user_name, email, password, organization_name, phone_number, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.UserName, user.Email, user.PasswordHash, user.OrganizationName, user.PhoneNumber, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	var user models.User
	err := s.db.QueryRow(ctx,
		`SELECT id, user_name, email, password, COALESCE(organization_name, ''), COALESCE(phone_number, ''), created_at
		 FROM users WHERE email = $1`, email,
	).Scan(&user.ID, &user.UserName, &user.Email, &user.PasswordHash, &user.OrganizationName, &user.PhoneNumber, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(&user)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(ctx,
		`SELECT id, user_name, email, password, COALESCE(organization_name, ''), COALESCE(phone_number, ''), created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.UserName, &user.Email, &user.PasswordHash, &user.OrganizationName, &user.PhoneNumber, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// AccountUpdate carries the mutable profile fields; empty fields keep the
// stored value.
type AccountUpdate struct {
	UserName         string
	OrganizationName string
	PhoneNumber      string
	Password         string
}

// UpdateAccount rewrites the user's profile. A non-empty password is
// re-hashed; existing sessions stay valid.
func (s *Service) UpdateAccount(ctx context.Context, id uuid.UUID, upd AccountUpdate) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.UserName != "" {
		user.UserName = upd.UserName
	}
	if upd.OrganizationName != "" {
		user.OrganizationName = upd.OrganizationName
	}
	if upd.PhoneNumber != "" {
		user.PhoneNumber = upd.PhoneNumber
	}
	if upd.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(upd.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE users SET user_name = $1, organization_name = $2, phone_number = $3, password = $4 WHERE id = $5`,
		user.UserName, user.OrganizationName, user.PhoneNumber, user.PasswordHash, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// DeleteAccount removes the user row. Chats, messages, and documents must
// already be gone; the chat service's DeleteAll handles them and their
// index entries.
func (s *Service) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// IssueToken signs a session JWT carrying the user's ID and display name.
func (s *Service) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID.String(),
		UserName: user.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *Service) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
