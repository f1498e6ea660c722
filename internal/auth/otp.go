package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOTPInvalid = errors.New("invalid or expired code")

// OTPService issues and verifies short-lived one-time codes for email or
// phone verification. Codes are single use.
type OTPService struct {
	db  *pgxpool.Pool
	ttl time.Duration
}

func NewOTPService(db *pgxpool.Pool, ttl time.Duration) *OTPService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OTPService{db: db, ttl: ttl}
}

// Issue generates a 6-digit code and stores it for later verification.
func (s *OTPService) Issue(ctx context.Context, email, phone string) (string, error) {
	if email == "" && phone == "" {
		return "", fmt.Errorf("an email or phone number is required")
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	_, err = s.db.Exec(ctx,
		"INSERT INTO otps (email, phone, otp, created_at) VALUES ($1, $2, $3, $4)",
		email, phone, code, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// Verify checks the most recent unexpired code for the address and burns
// it on success.
func (s *OTPService) Verify(ctx context.Context, email, phone, code string) error {
	cutoff := time.Now().UTC().Add(-s.ttl)

	var id int64
	err := s.db.QueryRow(ctx,
		`SELECT id FROM otps
		 WHERE email = $1 AND phone = $2 AND otp = $3 AND created_at > $4
		 ORDER BY created_at DESC LIMIT 1`,
		email, phone, code, cutoff,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOTPInvalid
	}
	if err != nil {
		return fmt.Errorf("look up code: %w", err)
	}

	if _, err := s.db.Exec(ctx, "DELETE FROM otps WHERE id = $1", id); err != nil {
		return fmt.Errorf("burn code: %w", err)
	}
	return nil
}

// CleanupExpired removes codes past their TTL. The worker runs this
// periodically.
func (s *OTPService) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.ttl)
	tag, err := s.db.Exec(ctx, "DELETE FROM otps WHERE created_at <= $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
