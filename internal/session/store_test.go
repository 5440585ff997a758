package session_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"smec-portal/internal/logger"
	"smec-portal/internal/models"
	"smec-portal/internal/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ada = models.User{ID: "u1", FullName: "Ada", Email: "ada@example.com", Role: models.RoleAdmin}

func newStore(storage session.Storage, opts ...session.Option) *session.Store {
	opts = append(opts, session.WithLogger(logger.NewConsoleLogger(io.Discard)))
	return session.NewStore(storage, opts...)
}

func TestLoginPersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	storage := session.NewMemoryStorage()

	store := newStore(storage)
	assert.Nil(t, store.Current(ctx))

	require.NoError(t, store.Login(ctx, models.AuthResult{Token: "opaque", User: ada}))
	assert.True(t, store.IsAdmin(ctx))

	// A fresh store over the same storage sees the same session
	restored := newStore(storage).Current(ctx)
	require.NotNil(t, restored)
	assert.Equal(t, "opaque", restored.Token)
	assert.Equal(t, ada, restored.User)
}

func TestLoginWithoutTokenIsRejected(t *testing.T) {
	store := newStore(session.NewMemoryStorage())
	err := store.Login(context.Background(), models.AuthResult{User: ada})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	assert.Nil(t, store.Current(context.Background()))
}

func TestLogoutClearsStorage(t *testing.T) {
	ctx := context.Background()
	storage := session.NewMemoryStorage()
	store := newStore(storage)
	require.NoError(t, store.Login(ctx, models.AuthResult{Token: "t", User: ada}))

	store.Logout(ctx)
	assert.Nil(t, store.Current(ctx))
	assert.False(t, store.IsAdmin(ctx))

	token, user, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Empty(t, user)
}

func TestMalformedUserIsDiscarded(t *testing.T) {
	ctx := context.Background()
	storage := session.NewMemoryStorage()
	storage.Put(session.TokenKey, "t")
	storage.Put(session.UserKey, "{not json")

	store := newStore(storage)
	assert.Nil(t, store.Current(ctx))

	token, _, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestTokenWithoutUserIsNoSession(t *testing.T) {
	storage := session.NewMemoryStorage()
	storage.Put(session.TokenKey, "t")
	assert.Nil(t, newStore(storage).Current(context.Background()))
}

type brokenStorage struct{}

func (brokenStorage) Load(context.Context) (string, string, error) {
	return "", "", errors.New("disk on fire")
}
func (brokenStorage) Save(context.Context, string, string) error { return errors.New("disk on fire") }
func (brokenStorage) Clear(context.Context) error                { return errors.New("disk on fire") }

func TestUnavailableStorage(t *testing.T) {
	ctx := context.Background()
	store := newStore(brokenStorage{})

	assert.Nil(t, store.Current(ctx))
	assert.Error(t, store.Login(ctx, models.AuthResult{Token: "t", User: ada}))
	assert.NotPanics(t, func() { store.Logout(ctx) })
}

func TestExpiredJWTIsStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	clock := now
	storage := session.NewMemoryStorage()
	store := newStore(storage, session.WithClock(func() time.Time { return clock }))
	require.NoError(t, store.Login(ctx, models.AuthResult{Token: token, User: ada}))
	assert.NotNil(t, store.Current(ctx))

	clock = now.Add(2 * time.Hour)
	assert.Nil(t, store.Current(ctx))

	stored, _, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestExpiryIsPublished(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	clock := now
	store := newStore(session.NewMemoryStorage(), session.WithClock(func() time.Time { return clock }))
	require.NoError(t, store.Login(ctx, models.AuthResult{Token: token, User: ada}))

	updates := store.Subscribe(ctx)
	clock = now.Add(2 * time.Hour)
	require.Nil(t, store.Current(ctx))

	select {
	case s := <-updates:
		assert.Nil(t, s)
	case <-time.After(time.Second):
		t.Fatal("expiry was not published")
	}

	// already cleared, nothing more to publish
	assert.Nil(t, store.Current(ctx))
	select {
	case s := <-updates:
		t.Fatalf("unexpected update %v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeObservesTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newStore(session.NewMemoryStorage())
	updates := store.Subscribe(ctx)

	require.NoError(t, store.Login(ctx, models.AuthResult{Token: "t", User: ada}))
	store.Logout(ctx)

	select {
	case s := <-updates:
		require.NotNil(t, s)
		assert.Equal(t, "Ada", s.User.FullName)
	case <-time.After(time.Second):
		t.Fatal("no login update")
	}
	select {
	case s := <-updates:
		assert.Nil(t, s)
	case <-time.After(time.Second):
		t.Fatal("no logout update")
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := newStore(session.NewMemoryStorage())
	require.NoError(t, store.Login(ctx, models.AuthResult{Token: "t", User: ada}))

	s := store.Current(ctx)
	s.User.Role = models.RoleBuyer
	assert.True(t, store.IsAdmin(ctx))
}
