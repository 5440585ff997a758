package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"smec-portal/internal/auth"
	"smec-portal/internal/logger"
	"smec-portal/internal/models"
	"smec-portal/internal/sse"
)

// Store is the single process-wide holder of the authenticated session.
// It is initialized lazily from Storage on first access.
type Store struct {
	storage Storage
	log     *logger.Logger
	events  *sse.SessionEmitter
	now     func() time.Time

	mu          sync.Mutex
	initialized bool
	current     *models.Session
}

type Option func(*Store)

// WithClock overrides the clock used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Store) { s.log = log }
}

func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		events:  sse.NewSessionEmitter(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns a copy of the session, or nil when there is none.
func (s *Store) Current(ctx context.Context) *models.Session {
	s.mu.Lock()
	if !s.initialized {
		s.current = s.restore(ctx)
		s.initialized = true
	}

	expired := s.current != nil && auth.IsExpired(s.current.Token, s.now())
	if expired {
		s.log.LogSession("expired", "stored token expired, clearing session")
		s.clear(ctx)
		s.current = nil
	}

	var copied *models.Session
	if s.current != nil {
		session := *s.current
		copied = &session
	}
	s.mu.Unlock()

	if expired {
		s.events.Emit(nil)
	}
	return copied
}

func (s *Store) IsAdmin(ctx context.Context) bool {
	return s.Current(ctx).HasRole(models.RoleAdmin)
}

// Login persists token and user as one storage operation and publishes the
// new session.
func (s *Store) Login(ctx context.Context, result models.AuthResult) error {
	if result.Token == "" {
		return fmt.Errorf("login result without token: %w", models.ErrUnauthenticated)
	}

	user, err := json.Marshal(result.User)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	s.mu.Lock()
	if err := s.storage.Save(ctx, result.Token, string(user)); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to persist session: %w", err)
	}
	session := &models.Session{Token: result.Token, User: result.User}
	s.current = session
	s.initialized = true
	s.mu.Unlock()

	s.log.LogSession("login", fmt.Sprintf("logged in as %s (%s)", result.User.Email, result.User.Role))
	s.events.Emit(session)
	return nil
}

// Logout clears storage and state. Storage failures are logged only.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.clear(ctx)
	s.current = nil
	s.initialized = true
	s.mu.Unlock()

	s.log.LogSession("logout", "session cleared")
	s.events.Emit(nil)
}

// Subscribe delivers every session transition until ctx is done.
func (s *Store) Subscribe(ctx context.Context) <-chan *models.Session {
	return s.events.Subscribe(ctx)
}

func (s *Store) restore(ctx context.Context) *models.Session {
	token, rawUser, err := s.storage.Load(ctx)
	if err != nil {
		s.log.Warn("SESSION", fmt.Sprintf("session storage unavailable: %v", err))
		return nil
	}
	if token == "" || rawUser == "" {
		return nil
	}

	session, err := decode(token, rawUser)
	if err != nil {
		s.log.Warn("SESSION", err.Error())
		s.clear(ctx)
		return nil
	}
	return session
}

func (s *Store) clear(ctx context.Context) {
	if err := s.storage.Clear(ctx); err != nil {
		s.log.Warn("SESSION", fmt.Sprintf("failed to clear session storage: %v", err))
	}
}

func decode(token, rawUser string) (*models.Session, error) {
	var user models.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedSession, err)
	}
	return &models.Session{Token: token, User: user}, nil
}
