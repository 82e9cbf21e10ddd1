package notes

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/session"
	"go.uber.org/zap"
)

const maxIDAttempts = 8

// CollectionStore persists the whole note collection.
type CollectionStore interface {
	Load(ctx context.Context) []Note
	Save(ctx context.Context, collection []Note)
}

// SessionSource exposes the signed-in user.
type SessionSource interface {
	CurrentUser() (session.User, bool)
}

// ChangeKind names the mutation that produced a ChangeEvent.
type ChangeKind string

const (
	ChangeKindCreated ChangeKind = "created"
	ChangeKindUpdated ChangeKind = "updated"
	ChangeKindDeleted ChangeKind = "deleted"
)

// ChangeEvent describes a committed mutation of the collection.
type ChangeEvent struct {
	Kind      ChangeKind
	NoteID    string
	UserID    string
	Timestamp time.Time
}

// ChangeListener is notified after each mutation has been persisted.
type ChangeListener interface {
	NotesChanged(event ChangeEvent)
}

// RepositoryConfig lists the collaborators of a Repository.
type RepositoryConfig struct {
	Store      CollectionStore
	Sessions   SessionSource
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Listener   ChangeListener
}

// Repository owns the in-memory note collection and writes every mutation
// through to its store before returning.
type Repository struct {
	mu         sync.RWMutex
	notes      []Note
	store      CollectionStore
	sessions   SessionSource
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	listener   ChangeListener
}

// NewRepository loads the persisted collection and returns a ready Repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opRepositoryNew, "missing_store", errMissingStore)
	}
	if cfg.Sessions == nil {
		return nil, newServiceError(opRepositoryNew, "missing_sessions", errMissingSessions)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opRepositoryNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Repository{
		notes:      cfg.Store.Load(ctx),
		store:      cfg.Store,
		sessions:   cfg.Sessions,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		listener:   cfg.Listener,
	}, nil
}

// AddNote creates a note owned by the signed-in user and places it first.
func (r *Repository) AddNote(ctx context.Context, input NoteInput) (Note, error) {
	user, ok := r.sessions.CurrentUser()
	if !ok {
		return Note{}, ErrNoActiveSession
	}

	author := strings.TrimSpace(input.Author)
	if author == "" {
		author = user.Name
	}

	r.mu.Lock()
	id, err := r.allocateID()
	if err != nil {
		r.mu.Unlock()
		r.logError(opAddNote, "id_generation_failed", err, zap.String("user_id", user.ID))
		return Note{}, newServiceError(opAddNote, "id_generation_failed", err)
	}

	now := r.clock().UTC()
	created := Note{
		ID:        id,
		Title:     input.Title,
		Content:   input.Content,
		Author:    author,
		AuthorID:  user.ID,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      NormalizeTags(input.Tags),
	}

	next := make([]Note, 0, len(r.notes)+1)
	next = append(next, created)
	next = append(next, r.notes...)
	r.commit(ctx, next)
	r.mu.Unlock()

	r.notify(ChangeKindCreated, created.ID, user.ID, now)
	return created.clone(), nil
}

// UpdateNote merges the present fields of update into the note with the given id.
// It reports false and changes nothing when the id is unknown.
func (r *Repository) UpdateNote(ctx context.Context, id string, update NoteUpdate) (Note, bool) {
	r.mu.Lock()
	index := r.indexOf(id)
	if index < 0 {
		r.mu.Unlock()
		return Note{}, false
	}

	merged := r.notes[index].clone()
	if update.Title != nil {
		merged.Title = *update.Title
	}
	if update.Content != nil {
		merged.Content = *update.Content
	}
	if update.Author != nil {
		merged.Author = *update.Author
	}
	if update.Tags != nil {
		merged.Tags = NormalizeTags(*update.Tags)
	}

	now := r.clock().UTC()
	if now.Before(merged.UpdatedAt) {
		now = merged.UpdatedAt
	}
	merged.UpdatedAt = now

	next := append(make([]Note, 0, len(r.notes)), r.notes...)
	next[index] = merged
	r.commit(ctx, next)
	r.mu.Unlock()

	r.notify(ChangeKindUpdated, merged.ID, r.currentUserID(), now)
	return merged.clone(), true
}

// DeleteNote removes the note with the given id. It reports false when the id is unknown.
func (r *Repository) DeleteNote(ctx context.Context, id string) bool {
	r.mu.Lock()
	index := r.indexOf(id)
	if index < 0 {
		r.mu.Unlock()
		return false
	}

	next := make([]Note, 0, len(r.notes)-1)
	next = append(next, r.notes[:index]...)
	next = append(next, r.notes[index+1:]...)
	r.commit(ctx, next)
	r.mu.Unlock()

	r.notify(ChangeKindDeleted, id, r.currentUserID(), r.clock().UTC())
	return true
}

// GetNoteByID returns a copy of the note with the given id.
func (r *Repository) GetNoteByID(id string) (Note, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	index := r.indexOf(id)
	if index < 0 {
		return Note{}, false
	}
	return r.notes[index].clone(), true
}

// ListNotes returns a copy of the collection, most recently created first.
func (r *Repository) ListNotes() []Note {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listed := make([]Note, 0, len(r.notes))
	for _, note := range r.notes {
		listed = append(listed, note.clone())
	}
	return listed
}

// commit swaps in the next collection and persists it. Callers hold the write lock.
func (r *Repository) commit(ctx context.Context, next []Note) {
	r.notes = next
	r.store.Save(ctx, next)
}

func (r *Repository) indexOf(id string) int {
	for index := range r.notes {
		if r.notes[index].ID == id {
			return index
		}
	}
	return -1
}

func (r *Repository) allocateID() (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := r.idProvider.NewID()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(id) == "" {
			continue
		}
		if r.indexOf(id) < 0 {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

func (r *Repository) currentUserID() string {
	user, ok := r.sessions.CurrentUser()
	if !ok {
		return ""
	}
	return user.ID
}

func (r *Repository) notify(kind ChangeKind, noteID, userID string, at time.Time) {
	if r.listener == nil {
		return
	}
	r.listener.NotesChanged(ChangeEvent{
		Kind:      kind,
		NoteID:    noteID,
		UserID:    userID,
		Timestamp: at,
	})
}

func (r *Repository) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("notes repository error", attrs...)
}
