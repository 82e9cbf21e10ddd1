package session

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/storage"
)

type memoryStorage struct {
	mu      sync.Mutex
	entries map[string][]byte
	failPut bool
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{entries: make(map[string][]byte)}
}

func (m *memoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *memoryStorage) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return errors.New("quota exceeded")
	}
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

type blockingAuthenticator struct {
	release chan struct{}
	inner   Authenticator
}

func (b *blockingAuthenticator) Authenticate(ctx context.Context, email, password string) (User, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return User{}, ctx.Err()
	}
	return b.inner.Authenticate(ctx, email, password)
}

// gatedStorage parks every Put until release is closed.
type gatedStorage struct {
	*memoryStorage
	putStarted chan struct{}
	release    chan struct{}
}

func newGatedStorage(backing *memoryStorage) *gatedStorage {
	return &gatedStorage{
		memoryStorage: backing,
		putStarted:    make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
}

func (g *gatedStorage) Put(ctx context.Context, key string, value []byte) error {
	select {
	case g.putStarted <- struct{}{}:
	default:
	}
	<-g.release
	return g.memoryStorage.Put(ctx, key, value)
}
