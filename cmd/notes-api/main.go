package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/config"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/database"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/server"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/session"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/storage"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notes-api",
		Short: "Notes Platform backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("cookie-name", defaults.GetString("auth.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().Int64("login-delay-ms", defaults.GetInt64("auth.login_delay_ms"), "Delay applied before each credential check")
	cmd.PersistentFlags().String("credentials", defaults.GetString("auth.credentials"), "Credential source (accounts, static)")
	cmd.PersistentFlags().String("notes-key", defaults.GetString("storage.notes_key"), "Storage key of the note collection")
	cmd.PersistentFlags().String("session-key", defaults.GetString("storage.session_key"), "Storage key of the active session")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.cookie_name", "cookie-name")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.login_delay_ms", "login-delay-ms")
	bindFlag(cmd, "auth.credentials", "credentials")
	bindFlag(cmd, "storage.notes_key", "notes-key")
	bindFlag(cmd, "storage.session_key", "session-key")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, appConfig.StorageKeys, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	backing, err := storage.NewSQLStorage(db, time.Now)
	if err != nil {
		return err
	}

	authenticator, err := newAuthenticator(ctx, appConfig, db, logger)
	if err != nil {
		return err
	}

	sessions, err := session.NewStore(ctx, session.Config{
		Storage:       backing,
		Key:           appConfig.StorageKeys.Session,
		Authenticator: authenticator,
		LoginDelay:    appConfig.LoginDelay,
		Logger:        logger.Named("session"),
	})
	if err != nil {
		return err
	}

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	noteStore, err := notes.NewStore(notes.StoreConfig{
		Storage: backing,
		Key:     appConfig.StorageKeys.Notes,
		Logger:  logger.Named("notes"),
	})
	if err != nil {
		return err
	}

	events := server.NewNoteEventDispatcher(server.NoteEventDispatcherConfig{Logger: logger.Named("events")})
	repository, err := notes.NewRepository(ctx, notes.RepositoryConfig{
		Store:      noteStore,
		Sessions:   sessions,
		Clock:      time.Now,
		IDProvider: notes.NewUUIDProvider(),
		Logger:     logger.Named("notes"),
		Listener:   events,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Notes:          repository,
		Sessions:       sessions,
		Tokens:         tokenManager,
		Events:         events,
		CookieName:     appConfig.CookieName,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newAuthenticator returns the credential check selected by auth.credentials.
// The account source seeds the demo account so the reference pair keeps working.
func newAuthenticator(ctx context.Context, appConfig config.AppConfig, db *gorm.DB, logger *zap.Logger) (session.Authenticator, error) {
	demo := appConfig.DemoAccount
	if appConfig.CredentialSource == config.CredentialSourceStatic {
		logger.Info("using static demo credentials", zap.String("email", demo.Email))
		return session.StaticCredentials{
			Email:    demo.Email,
			Password: demo.Password,
			User:     session.User{ID: demo.UserID, Name: demo.Name, Email: demo.Email},
		}, nil
	}

	accounts, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger.Named("users"),
	})
	if err != nil {
		return nil, err
	}
	if err := accounts.EnsureAccount(ctx, users.AccountSpec{
		UserID:      demo.UserID,
		Email:       demo.Email,
		DisplayName: demo.Name,
		Password:    demo.Password,
	}); err != nil {
		return nil, err
	}
	return accounts, nil
}
