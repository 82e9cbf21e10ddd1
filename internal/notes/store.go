package notes

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/storage"
	"go.uber.org/zap"
)

var noOpLogger = zap.NewNop()

// StoreConfig describes where the note collection is persisted.
type StoreConfig struct {
	Storage storage.Storage
	Key     string
	Seed    func() []Note
	Logger  *zap.Logger
}

// Store serializes the whole note collection into a single storage entry.
// Storage failures are logged and never surfaced to callers.
type Store struct {
	storage storage.Storage
	key     string
	seed    func() []Note
	logger  *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Storage == nil {
		return nil, newServiceError(opStoreNew, "missing_storage", errMissingStorage)
	}
	key, err := storage.NormalizeKey(cfg.Key)
	if err != nil {
		return nil, newServiceError(opStoreNew, "invalid_key", err)
	}
	seed := cfg.Seed
	if seed == nil {
		seed = SeedNotes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		storage: cfg.Storage,
		key:     key,
		seed:    seed,
		logger:  logger,
	}, nil
}

// Load returns the persisted collection, or the seed collection when nothing
// usable is stored.
func (s *Store) Load(ctx context.Context) []Note {
	payload, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return s.seed()
	}
	if err != nil {
		s.logWarn(opStoreLoad, "storage_unavailable", err)
		return s.seed()
	}

	var loaded []Note
	if err := json.Unmarshal(payload, &loaded); err != nil {
		s.logWarn(opStoreLoad, "decode_failed", err)
		return s.seed()
	}
	if loaded == nil {
		loaded = []Note{}
	}
	for index := range loaded {
		if loaded[index].Tags == nil {
			loaded[index].Tags = []string{}
		}
	}
	return loaded
}

// Save overwrites the stored entry with the full collection.
func (s *Store) Save(ctx context.Context, collection []Note) {
	if collection == nil {
		collection = []Note{}
	}
	payload, err := json.Marshal(collection)
	if err != nil {
		s.logWarn(opStoreSave, "encode_failed", err)
		return
	}
	if err := s.storage.Put(ctx, s.key, payload); err != nil {
		s.logWarn(opStoreSave, "storage_unavailable", err, zap.Int("note_count", len(collection)))
	}
}

func (s *Store) logWarn(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("key", s.key),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Warn("note store degraded", attrs...)
}
