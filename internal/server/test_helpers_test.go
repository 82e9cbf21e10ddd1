package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/session"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testCookieName    = "notes_session"
	testSigningSecret = "router-secret"
)

type memoryStorage struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (m *memoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return value, nil
}

func (m *memoryStorage) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

type routerFixture struct {
	handler    http.Handler
	repository *notes.Repository
	sessions   *session.Store
	tokens     *auth.TokenIssuer
	events     *NoteEventDispatcher
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backing := &memoryStorage{entries: make(map[string][]byte)}
	sessions, err := session.NewStore(context.Background(), session.Config{
		Storage:       backing,
		Key:           storage.DefaultSessionKey,
		Authenticator: session.DemoCredentials(),
	})
	if err != nil {
		t.Fatalf("failed to build session store: %v", err)
	}
	noteStore, err := notes.NewStore(notes.StoreConfig{Storage: backing, Key: storage.DefaultNotesKey})
	if err != nil {
		t.Fatalf("failed to build note store: %v", err)
	}
	events := NewNoteEventDispatcher(NoteEventDispatcherConfig{})
	repository, err := notes.NewRepository(context.Background(), notes.RepositoryConfig{
		Store:      noteStore,
		Sessions:   sessions,
		IDProvider: notes.NewUUIDProvider(),
		Listener:   events,
	})
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Notes:             repository,
		Sessions:          sessions,
		Tokens:            tokens,
		Events:            events,
		CookieName:        testCookieName,
		HeartbeatInterval: 20 * time.Millisecond,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return routerFixture{
		handler:    handler,
		repository: repository,
		sessions:   sessions,
		tokens:     tokens,
		events:     events,
	}
}

// login signs in the demo user and returns the bearer token.
func (f routerFixture) login(t *testing.T) string {
	t.Helper()
	recorder := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    session.DemoEmail,
		"password": session.DemoPassword,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload loginResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return payload.AccessToken
}

func (f routerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}
