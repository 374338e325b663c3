package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/cache"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/config"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/database"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/extract"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/server"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/storage"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/subjects"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/summarize"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	config.LoadDotEnv()

	rootCmd := &cobra.Command{
		Use:   "studynotes-api",
		Short: "StudyNotes backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueSessionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.GetString("log.format"), "Log encoding (json, console)")
	flags.String("cache-path", defaults.GetString("cache.path"), "Badger cache directory (empty keeps the cache in memory)")
	flags.String("storage-root", defaults.GetString("storage.root"), "Directory holding uploaded documents")
	flags.String("public-base-url", defaults.GetString("storage.public_base_url"), "Base URL used in signed file links")
	flags.String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated CORS origins")
	flags.String("tauth-signing-secret", "", "TAuth session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "cache.path", "cache-path")
	bindFlag(cmd, "storage.root", "storage-root")
	bindFlag(cmd, "storage.public_base_url", "public-base-url")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "tauth.signing_secret", "tauth-signing-secret")
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

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	cacheStore, err := cache.OpenBadger(cache.BadgerConfig{Path: appConfig.CachePath, Logger: logger})
	if err != nil {
		return err
	}
	defer cacheStore.Close()

	objects, err := storage.NewFilesystem(appConfig.StorageRoot)
	if err != nil {
		return err
	}
	signer, err := storage.NewURLSigner(storage.URLSignerConfig{
		SigningSecret: []byte(appConfig.StorageSecret),
		PublicBaseURL: appConfig.PublicBaseURL,
	})
	if err != nil {
		return err
	}

	var summarizer notes.Summarizer
	if appConfig.SummarizerURL != "" {
		client, err := summarize.NewClient(summarize.Config{
			BaseURL: appConfig.SummarizerURL,
			APIKey:  appConfig.SummarizerAPIKey,
			Model:   appConfig.SummarizerModel,
		})
		if err != nil {
			return err
		}
		summarizer = client
	} else {
		logger.Warn("summarizer not configured; summary requests will fail")
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:    db,
		Cache:       cacheStore,
		CacheTTL:    appConfig.NotesCacheTTL,
		Objects:     objects,
		URLs:        signer,
		Extractor:   extract.NewPDFExtractor(0),
		Summarizer:  summarizer,
		DownloadTTL: appConfig.DownloadTTL,
		UploadTTL:   appConfig.UploadTTL,
		Clock:       time.Now,
		IDProvider:  notes.NewUUIDProvider(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	subjectsService, err := subjects.NewService(subjects.ServiceConfig{
		Database: db,
		Cache:    cacheStore,
		CacheTTL: appConfig.SubjectsCacheTTL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Users:            usersService,
		NotesService:     notesService,
		SubjectsService:  subjectsService,
		Objects:          objects,
		URLVerifier:      signer,
		AllowedOrigins:   appConfig.AllowedOrigins,
		MaxUploadBytes:   appConfig.MaxUploadBytes,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
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
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
