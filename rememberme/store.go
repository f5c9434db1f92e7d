// Package rememberme persists the per-user "remember me" flag. The flag is
// written at sign-in, read when the session store recovers a session at
// startup, and cleared unconditionally at sign-out.
package rememberme

import (
	"context"
	"sync"
)

type Store interface {
	// Get reports whether the flag is set for a user. A missing entry is
	// false, not an error.
	Get(ctx context.Context, userID string) (bool, error)

	// Set records the flag for a user.
	Set(ctx context.Context, userID string, remember bool) error

	// Clear removes the flag. Clearing an absent entry is a no-op.
	Clear(ctx context.Context, userID string) error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the flags in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]bool)}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[userID], nil
}

func (s *MemoryStore) Set(ctx context.Context, userID string, remember bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[userID] = remember
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, userID)
	return nil
}
