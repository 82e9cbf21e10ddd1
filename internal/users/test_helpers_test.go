package users

import (
	"context"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/storage"
)

type memoryStorage struct {
	entries map[string][]byte
}

func (m memoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.entries[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return value, nil
}

func (m memoryStorage) Put(_ context.Context, key string, value []byte) error {
	m.entries[key] = value
	return nil
}

func (m memoryStorage) Delete(_ context.Context, key string) error {
	delete(m.entries, key)
	return nil
}
