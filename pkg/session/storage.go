// Package session holds the authenticated storefront session
package session

import (
	"context"
	"sync"
	"time"
)

// Storage persists the session credential between process restarts
type Storage interface {
	// Load returns the stored session, or ErrSessionNotFound
	Load(ctx context.Context) (*SessionData, error)

	// Save stores the session
	Save(ctx context.Context, data *SessionData) error

	// Delete removes the stored session
	Delete(ctx context.Context) error

	// Close closes the storage
	Close() error
}

// MemoryStorage implements in-memory storage for the session
type MemoryStorage struct {
	data  *SessionData
	mutex sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Load retrieves the stored session
func (ms *MemoryStorage) Load(ctx context.Context) (*SessionData, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if ms.data == nil {
		return nil, ErrSessionNotFound
	}
	if !ms.data.ExpiresAt.IsZero() && time.Now().UTC().After(ms.data.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	// Return a copy to prevent external modification
	sessionCopy := *ms.data
	return &sessionCopy, nil
}

// Save stores a copy of the session
func (ms *MemoryStorage) Save(ctx context.Context, data *SessionData) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	sessionCopy := *data
	ms.data = &sessionCopy
	return nil
}

// Delete removes the stored session
func (ms *MemoryStorage) Delete(ctx context.Context) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.data = nil
	return nil
}

// Close clears the storage
func (ms *MemoryStorage) Close() error {
	return ms.Delete(context.Background())
}
