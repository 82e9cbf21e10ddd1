package session

import (
	"context"
	"crypto/subtle"
	"strings"
)

const (
	DemoEmail    = "demo@example.com"
	DemoPassword = "password"
	DemoUserID   = "1"
	DemoUserName = "Demo User"
)

// StaticCredentials accepts exactly one email/password pair.
type StaticCredentials struct {
	Email    string
	Password string
	User     User
}

// DemoCredentials returns the credential pair of the reference deployment.
func DemoCredentials() StaticCredentials {
	return StaticCredentials{
		Email:    DemoEmail,
		Password: DemoPassword,
		User:     User{ID: DemoUserID, Name: DemoUserName, Email: DemoEmail},
	}
}

func (c StaticCredentials) Authenticate(_ context.Context, email, password string) (User, error) {
	emailMatches := strings.TrimSpace(email) == c.Email
	passwordMatches := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	if !emailMatches || !passwordMatches {
		return User{}, ErrInvalidCredentials
	}
	user := c.User
	if user.Email == "" {
		user.Email = c.Email
	}
	return user, nil
}
