package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/session"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/storage"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "NOTES"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "notes-platform.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultCookieName      = "notes_session"
	defaultTokenTTLMinutes = 60
)

// Credential sources accepted by auth.credentials. Accounts checks logins
// against the account table; static accepts only the configured demo pair.
const (
	CredentialSourceAccounts = "accounts"
	CredentialSourceStatic   = "static"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	AllowedOrigins   []string
	DatabasePath     string
	LogLevel         string
	LogFormat        string
	SigningSecret    string
	CookieName       string
	TokenTTL         time.Duration
	LoginDelay       time.Duration
	CredentialSource string
	StorageKeys      storage.Keys
	DemoAccount      DemoAccount
}

// DemoAccount is the account seeded into the account directory at startup.
type DemoAccount struct {
	UserID   string
	Email    string
	Name     string
	Password string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.login_delay_ms", session.DefaultLoginDelay.Milliseconds())
	configViper.SetDefault("auth.credentials", CredentialSourceAccounts)
	configViper.SetDefault("auth.demo.user_id", session.DemoUserID)
	configViper.SetDefault("auth.demo.email", session.DemoEmail)
	configViper.SetDefault("auth.demo.name", session.DemoUserName)
	configViper.SetDefault("auth.demo.password", session.DemoPassword)
	configViper.SetDefault("storage.notes_key", storage.DefaultNotesKey)
	configViper.SetDefault("storage.session_key", storage.DefaultSessionKey)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		AllowedOrigins:   configViper.GetStringSlice("http.allowed_origins"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		LogFormat:        configViper.GetString("log.format"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		CookieName:       configViper.GetString("auth.cookie_name"),
		TokenTTL:         time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		LoginDelay:       time.Duration(configViper.GetInt64("auth.login_delay_ms")) * time.Millisecond,
		CredentialSource: strings.ToLower(strings.TrimSpace(configViper.GetString("auth.credentials"))),
		StorageKeys: storage.Keys{
			Notes:   strings.TrimSpace(configViper.GetString("storage.notes_key")),
			Session: strings.TrimSpace(configViper.GetString("storage.session_key")),
		},
		DemoAccount: DemoAccount{
			UserID:   configViper.GetString("auth.demo.user_id"),
			Email:    configViper.GetString("auth.demo.email"),
			Name:     configViper.GetString("auth.demo.name"),
			Password: configViper.GetString("auth.demo.password"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.LoginDelay < 0 {
		return fmt.Errorf("auth.login_delay_ms must not be negative")
	}
	switch c.CredentialSource {
	case CredentialSourceAccounts, CredentialSourceStatic:
	default:
		return fmt.Errorf("auth.credentials must be %q or %q", CredentialSourceAccounts, CredentialSourceStatic)
	}
	if strings.TrimSpace(c.DemoAccount.Email) == "" || c.DemoAccount.Password == "" {
		return fmt.Errorf("auth.demo.email and auth.demo.password are required")
	}
	if err := c.StorageKeys.Validate(); err != nil {
		return fmt.Errorf("storage keys: %w", err)
	}
	return nil
}
