package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultLoginDelay mirrors the latency of a remote credential check.
const DefaultLoginDelay = time.Second

// FailedLoginMessage is shown to users whose credentials were rejected.
const FailedLoginMessage = "Invalid credentials. Try demo@example.com / password"

var (
	// ErrInvalidCredentials indicates that the email/password pair was rejected.
	ErrInvalidCredentials = errors.New("session: invalid credentials")

	errMissingStorage       = errors.New("session: storage handle is required")
	errMissingAuthenticator = errors.New("session: authenticator is required")
)

// User is the signed-in identity. No password is kept.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// State enumerates the session lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
)

// Authenticator checks an email/password pair and resolves the matching user.
// A rejected pair must be reported as an error wrapping ErrInvalidCredentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (User, error)
}

// persistedSession is the stored form of the active session.
type persistedSession struct {
	User
	SessionID string `json:"sessionId,omitempty"`
}

// Config lists the collaborators of a Store.
type Config struct {
	Storage       storage.Storage
	Key           string
	Authenticator Authenticator
	// LoginDelay is waited before every credential check. Zero disables it.
	LoginDelay time.Duration
	Logger     *zap.Logger
}

// Store holds the single active session and mirrors it into storage.
type Store struct {
	// writeMu orders session writes so memory and storage change together.
	writeMu       sync.Mutex
	mu            sync.RWMutex
	user          *User
	sessionID     string
	state         State
	attempt       uint64
	storage       storage.Storage
	key           string
	authenticator Authenticator
	loginDelay    time.Duration
	logger        *zap.Logger
}

// NewStore restores a previously persisted session, if any.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Storage == nil {
		return nil, errMissingStorage
	}
	if cfg.Authenticator == nil {
		return nil, errMissingAuthenticator
	}
	key, err := storage.NormalizeKey(cfg.Key)
	if err != nil {
		return nil, err
	}
	delay := cfg.LoginDelay
	if delay < 0 {
		delay = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store := &Store{
		state:         StateUnauthenticated,
		storage:       cfg.Storage,
		key:           key,
		authenticator: cfg.Authenticator,
		loginDelay:    delay,
		logger:        logger,
	}
	store.restore(ctx)
	return store, nil
}

// CurrentUser returns the signed-in user.
func (s *Store) CurrentUser() (User, bool) {
	user, _, ok := s.ActiveSession()
	return user, ok
}

// ActiveSession returns the signed-in user and the id of the login that
// created the session. Every successful login gets a fresh id.
func (s *Store) ActiveSession() (User, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, "", false
	}
	return *s.user, s.sessionID, true
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Login checks the credentials and, on success, makes the user the active session.
// A rejected pair yields false with a nil error and leaves the session as it was.
// Cancelling ctx abandons the attempt without touching the session.
func (s *Store) Login(ctx context.Context, email, password string) (bool, error) {
	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	s.state = StateAuthenticating
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		s.abandon(attempt)
		return false, err
	}

	user, err := s.authenticator.Authenticate(ctx, strings.TrimSpace(email), password)
	if err != nil {
		s.abandon(attempt)
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.Info("login rejected", zap.String("email", strings.TrimSpace(email)))
			return false, nil
		}
		s.logger.Error("login failed", zap.Error(err))
		return false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sessionID := uuid.NewString()
	s.mu.Lock()
	s.user = &user
	s.sessionID = sessionID
	// A newer attempt still in flight keeps the state pending.
	if s.attempt == attempt || s.state != StateAuthenticating {
		s.state = StateAuthenticated
	}
	s.mu.Unlock()

	s.persist(ctx, persistedSession{User: user, SessionID: sessionID})
	s.logger.Info("login succeeded", zap.String("user_id", user.ID))
	return true, nil
}

// Logout clears the active session and its persisted copy.
func (s *Store) Logout(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.user == nil && s.state != StateAuthenticating {
		s.mu.Unlock()
		return
	}
	s.user = nil
	s.sessionID = ""
	s.state = StateUnauthenticated
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, s.key); err != nil {
		s.logger.Warn("session entry removal failed", zap.String("key", s.key), zap.Error(err))
	}
}

func (s *Store) wait(ctx context.Context) error {
	if s.loginDelay == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.loginDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// abandon settles an attempt that did not produce a session.
func (s *Store) abandon(attempt uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != attempt || s.state != StateAuthenticating {
		return
	}
	if s.user != nil {
		s.state = StateAuthenticated
		return
	}
	s.state = StateUnauthenticated
}

func (s *Store) persist(ctx context.Context, record persistedSession) {
	payload, err := json.Marshal(record)
	if err != nil {
		s.logger.Warn("session encode failed", zap.Error(err))
		return
	}
	if err := s.storage.Put(ctx, s.key, payload); err != nil {
		s.logger.Warn("session persistence failed", zap.String("key", s.key), zap.Error(err))
	}
}

func (s *Store) restore(ctx context.Context) {
	payload, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("session restore failed", zap.String("key", s.key), zap.Error(err))
		return
	}
	var record persistedSession
	if err := json.Unmarshal(payload, &record); err != nil || strings.TrimSpace(record.ID) == "" {
		s.logger.Warn("discarding unreadable session", zap.String("key", s.key), zap.Error(err))
		return
	}
	if record.SessionID == "" {
		record.SessionID = uuid.NewString()
		s.persist(ctx, record)
	}
	user := record.User
	s.user = &user
	s.sessionID = record.SessionID
	s.state = StateAuthenticated
}
