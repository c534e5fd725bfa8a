package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"recipeshare_backend/backend"
)

func newService() (*Service, *time.Time) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s := New(backend.NewMemoryStore(), time.Hour, zap.NewNop())
	s.cost = bcrypt.MinCost
	s.now = func() time.Time { return now }
	return s, &now
}

func TestRegisterAndLogin(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()

	user, err := s.Register(ctx, " Chef@Example.com ", "secret-pw")
	require.NoError(t, err)
	assert.Equal(t, "chef@example.com", user.Email)
	assert.NotEqual(t, "secret-pw", user.PasswordHash)

	session, err := s.Login(ctx, "chef@example.com", "secret-pw")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)

	uid, err := s.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, uid)
}

func TestRegisterRejects(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()

	_, err := s.Register(ctx, "a@b.c", "123")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = s.Register(ctx, "not-an-email", "long-enough")
	assert.Error(t, err)

	_, err = s.Register(ctx, "a@b.c", "long-enough")
	require.NoError(t, err)
	_, err = s.Register(ctx, "A@B.C", "another-one")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginWrongPassword(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()
	_, err := s.Register(ctx, "a@b.c", "long-enough")
	require.NoError(t, err)

	_, err = s.Login(ctx, "a@b.c", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, "nobody@b.c", "long-enough")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyExpiredAndLogout(t *testing.T) {
	s, now := newService()
	ctx := context.Background()
	_, err := s.Register(ctx, "a@b.c", "long-enough")
	require.NoError(t, err)

	session, err := s.Login(ctx, "a@b.c", "long-enough")
	require.NoError(t, err)

	*now = now.Add(2 * time.Hour)
	_, err = s.Verify(ctx, session.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = s.Verify(ctx, session.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound, "expired sessions are dropped")

	*now = now.Add(-2 * time.Hour)
	session, err = s.Login(ctx, "a@b.c", "long-enough")
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx, session.Token))
	_, err = s.Verify(ctx, session.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.Logout(ctx, session.Token), ErrSessionNotFound)
}

func TestVerifyUnknownToken(t *testing.T) {
	s, _ := newService()
	_, err := s.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.Verify(context.Background(), "made-up")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
