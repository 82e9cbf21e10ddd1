package users

import (
	"strings"
	"time"
)

// Account stores the credentials and profile of one user.
type Account struct {
	UserID       string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email        string    `gorm:"column:user_email;size:320;not null;uniqueIndex"`
	DisplayName  string    `gorm:"column:user_display_name;size:320;not null"`
	PasswordHash string    `gorm:"column:password_hash;size:100;not null"`
	LastLoginAt  time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (Account) TableName() string {
	return "user_accounts"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(normalize(value))
}
