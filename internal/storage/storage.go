package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultNotesKey names the entry holding the serialized note collection.
	DefaultNotesKey = "notes_platform.notes"
	// DefaultSessionKey names the entry holding the serialized active user.
	DefaultSessionKey = "notes_platform.session"

	maxKeyLength = 190
)

var (
	// ErrNotFound indicates that no entry exists for the requested key.
	ErrNotFound = errors.New("storage: entry not found")
	// ErrInvalidKey indicates that a key is empty or exceeds storage bounds.
	ErrInvalidKey = errors.New("storage: invalid key")
	// ErrKeyCollision indicates that two collections were configured with the same key.
	ErrKeyCollision = errors.New("storage: notes and session keys must differ")
)

// Storage is a durable key-value store holding whole serialized values.
// Put overwrites the entry; there are no partial writes.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Keys groups the entry names shared by the notes and session stores.
type Keys struct {
	Notes   string
	Session string
}

// DefaultKeys returns the namespaced default entry names.
func DefaultKeys() Keys {
	return Keys{Notes: DefaultNotesKey, Session: DefaultSessionKey}
}

// Validate rejects empty, oversized, or colliding keys.
func (k Keys) Validate() error {
	if _, err := NormalizeKey(k.Notes); err != nil {
		return err
	}
	if _, err := NormalizeKey(k.Session); err != nil {
		return err
	}
	if strings.TrimSpace(k.Notes) == strings.TrimSpace(k.Session) {
		return ErrKeyCollision
	}
	return nil
}

// NormalizeKey trims the raw key and checks its bounds.
func NormalizeKey(rawKey string) (string, error) {
	trimmed := strings.TrimSpace(rawKey)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(trimmed) > maxKeyLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidKey, maxKeyLength)
	}
	return trimmed, nil
}
