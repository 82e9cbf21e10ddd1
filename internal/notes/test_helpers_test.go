package notes

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/session"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/storage"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var demoUser = session.User{ID: "1", Name: "Demo User", Email: "demo@example.com"}

type fakeSessions struct {
	user   session.User
	active bool
}

func (f *fakeSessions) CurrentUser() (session.User, bool) {
	return f.user, f.active
}

type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

type sequenceIDProvider struct {
	ids   []string
	index int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	if p.index >= len(p.ids) {
		return "", errors.New("sequence exhausted")
	}
	id := p.ids[p.index]
	p.index++
	return id, nil
}

type unavailableStorage struct{}

func (unavailableStorage) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage disabled")
}

func (unavailableStorage) Put(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

func (unavailableStorage) Delete(context.Context, string) error {
	return errors.New("storage disabled")
}

type recordingListener struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (l *recordingListener) NotesChanged(event ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func openTestStorage(t *testing.T) *storage.SQLStorage {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "notes.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&storage.Entry{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	backing, err := storage.NewSQLStorage(database, nil)
	if err != nil {
		t.Fatalf("failed to build storage: %v", err)
	}
	return backing
}

func mustStore(t *testing.T, backing storage.Storage) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Storage: backing, Key: storage.DefaultNotesKey})
	if err != nil {
		t.Fatalf("failed to build note store: %v", err)
	}
	return store
}

type repositoryFixture struct {
	repository *Repository
	store      *Store
	backing    storage.Storage
	sessions   *fakeSessions
	listener   *recordingListener
}

func newRepositoryFixture(t *testing.T) repositoryFixture {
	t.Helper()
	backing := openTestStorage(t)
	store := mustStore(t, backing)
	sessions := &fakeSessions{user: demoUser, active: true}
	listener := &recordingListener{}
	clock := &steppingClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), step: time.Second}

	var counter int
	repository, err := NewRepository(context.Background(), RepositoryConfig{
		Store:    store,
		Sessions: sessions,
		Clock:    clock.Now,
		IDProvider: idProviderFunc(func() (string, error) {
			counter++
			return fmt.Sprintf("note-%d", counter), nil
		}),
		Listener: listener,
	})
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	return repositoryFixture{
		repository: repository,
		store:      store,
		backing:    backing,
		sessions:   sessions,
		listener:   listener,
	}
}

type idProviderFunc func() (string, error)

func (f idProviderFunc) NewID() (string, error) {
	return f()
}

func stringPointer(value string) *string {
	return &value
}
