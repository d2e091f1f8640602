package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/auth"
	"github.com/InkwellLabs/inkwell/backend/internal/comments"
	"github.com/InkwellLabs/inkwell/backend/internal/config"
	"github.com/InkwellLabs/inkwell/backend/internal/database"
	"github.com/InkwellLabs/inkwell/backend/internal/identity"
	"github.com/InkwellLabs/inkwell/backend/internal/ids"
	"github.com/InkwellLabs/inkwell/backend/internal/logging"
	"github.com/InkwellLabs/inkwell/backend/internal/posts"
	"github.com/InkwellLabs/inkwell/backend/internal/profiles"
	"github.com/InkwellLabs/inkwell/backend/internal/server"
	"github.com/InkwellLabs/inkwell/backend/internal/uploads"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "inkwell-api",
		Short: "Inkwell blog backend service",
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
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Int64("max-image-bytes", defaults.GetInt64("uploads.max_bytes"), "Maximum accepted image upload size")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "uploads.max_bytes", "max-image-bytes")
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

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	hasher := auth.NewArgon2Hasher(auth.DefaultArgon2Params())
	idProvider := ids.NewUUIDProvider()

	resolver, err := identity.NewResolver(db, hasher)
	if err != nil {
		return err
	}
	identityService, err := identity.NewService(identity.ServiceConfig{
		Database:   db,
		Hasher:     hasher,
		Resolver:   resolver,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	profileService, err := profiles.NewService(profiles.ServiceConfig{
		Database:   db,
		Identities: identityService,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	postService, err := posts.NewService(posts.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	commentService, err := comments.NewService(comments.ServiceConfig{
		Database:   db,
		Posts:      postService,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	uploadService, err := uploads.NewService(uploads.ServiceConfig{
		Database:      db,
		IDProvider:    idProvider,
		MaxImageBytes: appConfig.MaxImageBytes,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	sessionIssuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		Audience:      appConfig.SessionAudience,
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Authenticator: identityService,
		SessionTokens: sessionIssuer,
		Profiles:      profileService,
		Posts:         postService,
		Comments:      commentService,
		Uploads:       uploadService,
		MaxImageBytes: appConfig.MaxImageBytes,
		Logger:        logger,
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
