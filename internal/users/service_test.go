package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/session"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func openAccountDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Account{}); err != nil {
		t.Fatalf("failed to migrate account schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return newTestServiceWithLogger(t, openAccountDatabase(t), nil)
}

func newTestServiceWithLogger(t *testing.T, db *gorm.DB, logger *zap.Logger) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
		HashCost: bcrypt.MinCost,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if err := service.EnsureAccount(context.Background(), AccountSpec{
		UserID:      session.DemoUserID,
		Email:       session.DemoEmail,
		DisplayName: session.DemoUserName,
		Password:    session.DemoPassword,
	}); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return service
}

func TestAuthenticateDemoAccount(t *testing.T) {
	service := newTestService(t)

	user, err := service.Authenticate(context.Background(), " Demo@Example.com ", session.DemoPassword)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if user.ID != "1" || user.Name != "Demo User" || user.Email != "demo@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}

	// second call should hit cache and resolve the same account.
	user, err = service.Authenticate(context.Background(), session.DemoEmail, session.DemoPassword)
	if err != nil || user.ID != "1" {
		t.Fatalf("second authenticate failed: %v (%+v)", err, user)
	}
}

func TestAuthenticateRejectsMismatches(t *testing.T) {
	service := newTestService(t)

	testCases := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong-password", email: session.DemoEmail, password: "nope"},
		{name: "unknown-email", email: "ghost@example.com", password: session.DemoPassword},
		{name: "empty-password", email: session.DemoEmail, password: ""},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := service.Authenticate(context.Background(), testCase.email, testCase.password)
			if !errors.Is(err, session.ErrInvalidCredentials) {
				t.Fatalf("expected invalid credentials, got %v", err)
			}
		})
	}
}

func TestEnsureAccountRotatesPassword(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Authenticate(ctx, session.DemoEmail, session.DemoPassword); err != nil {
		t.Fatalf("initial authenticate failed: %v", err)
	}
	if err := service.EnsureAccount(ctx, AccountSpec{
		UserID:      session.DemoUserID,
		Email:       session.DemoEmail,
		DisplayName: session.DemoUserName,
		Password:    "rotated",
	}); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	if _, err := service.Authenticate(ctx, session.DemoEmail, session.DemoPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must be rejected after rotation, got %v", err)
	}
	if _, err := service.Authenticate(ctx, session.DemoEmail, "rotated"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestEnsureAccountEmailChangeRetiresOldEmail(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Authenticate(ctx, session.DemoEmail, session.DemoPassword); err != nil {
		t.Fatalf("initial authenticate failed: %v", err)
	}
	if err := service.EnsureAccount(ctx, AccountSpec{
		UserID:      session.DemoUserID,
		Email:       "renamed@example.com",
		DisplayName: session.DemoUserName,
		Password:    "fresh",
	}); err != nil {
		t.Fatalf("email change failed: %v", err)
	}

	if _, err := service.Authenticate(ctx, session.DemoEmail, session.DemoPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old email must stop authenticating, got %v", err)
	}
	user, err := service.Authenticate(ctx, "renamed@example.com", "fresh")
	if err != nil || user.ID != session.DemoUserID {
		t.Fatalf("new email rejected: %v (%+v)", err, user)
	}
}

func TestAuthenticateLogsFailedLoginTimeUpdate(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	db := openAccountDatabase(t)
	service := newTestServiceWithLogger(t, db, zap.New(core))
	ctx := context.Background()

	if _, err := service.Authenticate(ctx, session.DemoEmail, session.DemoPassword); err != nil {
		t.Fatalf("initial authenticate failed: %v", err)
	}
	if err := db.Migrator().DropTable(&Account{}); err != nil {
		t.Fatalf("failed to drop account table: %v", err)
	}

	user, err := service.Authenticate(ctx, session.DemoEmail, session.DemoPassword)
	if err != nil || user.ID != session.DemoUserID {
		t.Fatalf("cached account should still authenticate: %v (%+v)", err, user)
	}
	entries := recorded.FilterField(zap.String("reason", "last_login_update_failed")).All()
	if len(entries) != 1 {
		t.Fatalf("expected one logged update failure, got %d", len(entries))
	}
}

func TestEnsureAccountRejectsIncompleteAccounts(t *testing.T) {
	service := newTestService(t)
	if err := service.EnsureAccount(context.Background(), AccountSpec{Email: "a@b.c", Password: "x"}); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
}

func TestSessionLoginThroughAccountService(t *testing.T) {
	service := newTestService(t)
	store, err := session.NewStore(context.Background(), session.Config{
		Storage:       memoryStorage{entries: map[string][]byte{}},
		Key:           "session",
		Authenticator: service,
	})
	if err != nil {
		t.Fatalf("failed to build session store: %v", err)
	}

	ok, err := store.Login(context.Background(), session.DemoEmail, "bad")
	if err != nil || ok {
		t.Fatalf("expected rejected login, got ok=%v err=%v", ok, err)
	}
	ok, err = store.Login(context.Background(), session.DemoEmail, session.DemoPassword)
	if err != nil || !ok {
		t.Fatalf("expected accepted login, got ok=%v err=%v", ok, err)
	}
}
