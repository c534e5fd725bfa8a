// Package auth registers users, checks passwords and issues bearer session
// tokens. Users and sessions live in the record store.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"recipeshare_backend/backend"
	"recipeshare_backend/models"
)

const (
	UsersTable    = "users"
	SessionsTable = "sessions"

	minPasswordLen = 6
)

var (
	// ErrInvalidCredentials is returned when the email or password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned when registering an email twice.
	ErrEmailTaken = errors.New("email already registered")
	// ErrWeakPassword is returned for passwords that are too short.
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", minPasswordLen)
	// ErrSessionNotFound is returned when a token matches no session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session has expired.
	ErrSessionExpired = errors.New("session expired")
)

type Service struct {
	records backend.RecordStore
	ttl     time.Duration
	log     *zap.Logger

	now  func() time.Time
	cost int
}

func New(records backend.RecordStore, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{
		records: records,
		ttl:     ttl,
		log:     log,
		now:     time.Now,
		cost:    bcrypt.DefaultCost,
	}
}

func (s *Service) Register(ctx context.Context, email, password string) (models.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return models.User{}, fmt.Errorf("invalid email %q", email)
	}
	if len(password) < minPasswordLen {
		return models.User{}, ErrWeakPassword
	}

	if _, err := s.findByEmail(ctx, email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, backend.ErrNotFound) {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.User{}, err
	}
	rec, err := s.records.Insert(ctx, UsersTable, backend.Record{
		"email":         email,
		"password_hash": string(hash),
	})
	if err != nil {
		return models.User{}, fmt.Errorf("register %s: %w", email, err)
	}

	s.log.Info("Registered user", zap.String("user_id", rec.String(backend.FieldID)))
	return toUser(rec), nil
}

// Login checks the password and opens a session. The returned token is the
// only copy; the store keeps its hash.
func (s *Service) Login(ctx context.Context, email, password string) (models.Session, error) {
	rec, err := s.findByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, backend.ErrNotFound) {
		return models.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.String("password_hash")), []byte(password)); err != nil {
		return models.Session{}, ErrInvalidCredentials
	}

	session := models.Session{
		Token:     uuid.NewString(),
		UserID:    rec.String(backend.FieldID),
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	_, err = s.records.Insert(ctx, SessionsTable, backend.Record{
		backend.FieldID: tokenKey(session.Token),
		"user_id":       session.UserID,
		"expires_at":    session.ExpiresAt,
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("open session: %w", err)
	}
	return session, nil
}

// Verify returns the user id a token belongs to.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrSessionNotFound
	}
	key := tokenKey(token)
	rec, err := s.records.Get(ctx, SessionsTable, key)
	if errors.Is(err, backend.ErrNotFound) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}
	if !s.now().Before(rec.Time("expires_at")) {
		if err := s.records.Delete(ctx, SessionsTable, key); err != nil {
			s.log.Warn("Failed to drop expired session", zap.Error(err))
		}
		return "", ErrSessionExpired
	}
	return rec.String("user_id"), nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.records.Delete(ctx, SessionsTable, tokenKey(token))
	if errors.Is(err, backend.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func (s *Service) findByEmail(ctx context.Context, email string) (backend.Record, error) {
	recs, err := s.records.Select(ctx, UsersTable, backend.Query{}.Where("email", backend.Eq, email))
	if err != nil {
		return nil, fmt.Errorf("look up %s: %w", email, err)
	}
	if len(recs) == 0 {
		return nil, backend.ErrNotFound
	}
	return recs[0], nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUser(rec backend.Record) models.User {
	return models.User{
		ID:           rec.String(backend.FieldID),
		Email:        rec.String("email"),
		PasswordHash: rec.String("password_hash"),
		CreatedAt:    rec.Time(backend.FieldCreatedAt),
	}
}
