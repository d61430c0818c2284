package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
)

// DefaultResetTTL bounds how long a password reset link stays usable.
const DefaultResetTTL = time.Hour

var (
	// ErrInvalidResetToken is returned for unknown, expired or used tokens.
	ErrInvalidResetToken = fmt.Errorf("auth: reset token is invalid or expired: %w", httpx.ErrValidation)
	// ErrResetDisabled is returned when no reset store is configured.
	ErrResetDisabled = fmt.Errorf("auth: password reset not configured: %w", httpx.ErrUnavailable)
)

// ResetTokenStore keeps single-use password reset tokens.
type ResetTokenStore interface {
	Save(ctx context.Context, token string, userID uuid.UUID) error
	Consume(ctx context.Context, token string) (uuid.UUID, error)
}

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, user User, link string) error
}

// PasswordReset wires the reset flow into Service.
type PasswordReset struct {
	Store    ResetTokenStore
	Mailer   Mailer
	LinkBase string
}

// RedisResetStore keeps hashed reset tokens in Redis until they expire or
// are used.
type RedisResetStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResetStore builds a store. ttl <= 0 uses DefaultResetTTL.
func NewResetStore(client *redis.Client, ttl time.Duration) *RedisResetStore {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	return &RedisResetStore{client: client, ttl: ttl}
}

// Save stores a token for the user.
func (s *RedisResetStore) Save(ctx context.Context, token string, userID uuid.UUID) error {
	return s.client.Set(ctx, resetKey(token), userID.String(), s.ttl).Err()
}

// Consume returns the user a token was issued to and deletes it.
func (s *RedisResetStore) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	raw, err := s.client.GetDel(ctx, resetKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrInvalidResetToken
	}
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidResetToken
	}
	return id, nil
}

func resetKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "auth:reset:" + hex.EncodeToString(sum[:])
}

func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// LogMailer writes reset links to the log instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

// SendPasswordReset logs the link.
func (m LogMailer) SendPasswordReset(_ context.Context, user User, link string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("password reset link", slog.String("email", user.Email), slog.String("link", link))
	return nil
}
