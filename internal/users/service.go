package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/session"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidCredentials wraps session.ErrInvalidCredentials for rejected logins.
	ErrInvalidCredentials = fmt.Errorf("users: %w", session.ErrInvalidCredentials)
	// ErrInvalidAccount indicates that an account is missing an id, email, or password.
	ErrInvalidAccount = errors.New("users: invalid account")
)

// ServiceConfig describes the dependencies required for account lookups.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	// HashCost overrides bcrypt.DefaultCost.
	HashCost int
	Logger   *zap.Logger
}

// Service authenticates users against stored bcrypt hashes.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	hashCost int
	logger   *zap.Logger
	// cache maps normalized email to Account.
	cache sync.Map
}

// NewService constructs the account service. The user_accounts table must be migrated.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	hashCost := cfg.HashCost
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       cfg.Database,
		now:      clock,
		hashCost: hashCost,
		logger:   logger,
	}, nil
}

// AccountSpec describes an account to create or refresh.
type AccountSpec struct {
	UserID      string
	Email       string
	DisplayName string
	Password    string
}

// EnsureAccount creates the account or replaces its profile and password hash.
func (s *Service) EnsureAccount(ctx context.Context, spec AccountSpec) error {
	userID := normalize(spec.UserID)
	email := normalizeEmail(spec.Email)
	if userID == "" || email == "" || spec.Password == "" {
		return ErrInvalidAccount
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(spec.Password), s.hashCost)
	if err != nil {
		return err
	}
	account := Account{
		UserID:       userID,
		Email:        email,
		DisplayName:  normalize(spec.DisplayName),
		PasswordHash: string(hash),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_email", "user_display_name", "password_hash", "updated_at"}),
	}).Create(&account).Error
	if err != nil {
		return err
	}
	s.evict(userID, email)
	return nil
}

// evict drops cached entries for the email and for any older email of the user.
func (s *Service) evict(userID, email string) {
	s.cache.Delete(email)
	s.cache.Range(func(key, value any) bool {
		if account, ok := value.(Account); ok && account.UserID == userID {
			s.cache.Delete(key)
		}
		return true
	})
}

// Authenticate resolves the account for email and verifies the password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (session.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return session.User{}, ErrInvalidCredentials
	}

	account, err := s.lookup(ctx, normalized)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return session.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return session.User{}, ErrInvalidCredentials
	}

	if err := s.db.WithContext(ctx).Model(&Account{}).
		Where("user_id = ?", account.UserID).
		Update("last_login_at", s.now()).
		Error; err != nil {
		s.logger.Warn("account login time not recorded",
			zap.String("operation", "users.authenticate"),
			zap.String("reason", "last_login_update_failed"),
			zap.String("user_id", account.UserID),
			zap.Error(err),
		)
	}

	return session.User{
		ID:    account.UserID,
		Name:  account.DisplayName,
		Email: account.Email,
	}, nil
}

func (s *Service) lookup(ctx context.Context, email string) (Account, error) {
	if cached, ok := s.cache.Load(email); ok {
		if account, ok := cached.(Account); ok {
			return account, nil
		}
	}
	var account Account
	if err := s.db.WithContext(ctx).Where("user_email = ?", email).First(&account).Error; err != nil {
		return Account{}, err
	}
	s.cache.Store(email, account)
	return account, nil
}
