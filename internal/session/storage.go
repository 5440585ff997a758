package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	TokenKey = "token"
	UserKey  = "user"
)

// Storage holds the two persisted session slots. Save writes both slots,
// Clear removes both. Load returns empty strings for missing slots.
type Storage interface {
	Load(ctx context.Context) (token, user string, err error)
	Save(ctx context.Context, token, user string) error
	Clear(ctx context.Context) error
}

// FileStorage keeps each slot in its own file under Dir.
type FileStorage struct {
	Dir string
}

func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{Dir: dir}
}

func (s *FileStorage) Load(ctx context.Context) (string, string, error) {
	token, err := s.read(TokenKey)
	if err != nil {
		return "", "", err
	}
	user, err := s.read(UserKey)
	if err != nil {
		return "", "", err
	}
	return token, user, nil
}

// Save writes the user slot first and the token last: a crash in between
// leaves a user without a token, which loads as no session.
func (s *FileStorage) Save(ctx context.Context, token, user string) error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := s.write(UserKey, user); err != nil {
		return err
	}
	if err := s.write(TokenKey, token); err != nil {
		_ = s.remove(UserKey)
		return err
	}
	return nil
}

func (s *FileStorage) Clear(ctx context.Context) error {
	return errors.Join(s.remove(TokenKey), s.remove(UserKey))
}

func (s *FileStorage) read(key string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s slot: %w", key, err)
	}
	return string(data), nil
}

func (s *FileStorage) write(key, value string) error {
	path := filepath.Join(s.Dir, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0600); err != nil {
		return fmt.Errorf("failed to write %s slot: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write %s slot: %w", key, err)
	}
	return nil
}

func (s *FileStorage) remove(key string) error {
	err := os.Remove(filepath.Join(s.Dir, key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear %s slot: %w", key, err)
	}
	return nil
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu    sync.Mutex
	slots map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{slots: make(map[string]string)}
}

func (s *MemoryStorage) Load(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[TokenKey], s.slots[UserKey], nil
}

func (s *MemoryStorage) Save(ctx context.Context, token, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[TokenKey] = token
	s.slots[UserKey] = user
	return nil
}

func (s *MemoryStorage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, TokenKey)
	delete(s.slots, UserKey)
	return nil
}

// Put sets a single raw slot.
func (s *MemoryStorage) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = value
}
