package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "STUDYNOTES"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "studynotes.db"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultCookieName         = "app_session"
	defaultSessionIssuer      = "tauth"
	defaultStorageRoot        = "data/objects"
	defaultPublicBaseURL      = "http://localhost:8080"
	defaultNotesTTLSeconds    = 3600
	defaultSubjectsTTLSeconds = 6000
	defaultDownloadTTLSeconds = 3600
	defaultUploadTTLSeconds   = 300
	defaultMaxUploadBytes     = 25 << 20
	defaultSummarizerModel    = "gpt-4o-mini"
	dotEnvSearchDepth         = 5
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	LogFormat        string
	TAuthSigningKey  string
	TAuthCookieName  string
	TAuthIssuer      string
	AllowedOrigins   []string
	CachePath        string
	NotesCacheTTL    time.Duration
	SubjectsCacheTTL time.Duration
	StorageRoot      string
	PublicBaseURL    string
	StorageSecret    string
	DownloadTTL      time.Duration
	UploadTTL        time.Duration
	MaxUploadBytes   int64
	SummarizerURL    string
	SummarizerAPIKey string
	SummarizerModel  string
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultSessionIssuer)
	configViper.SetDefault("cors.allowed_origins", "")
	configViper.SetDefault("cache.path", "")
	configViper.SetDefault("cache.notes_ttl_seconds", defaultNotesTTLSeconds)
	configViper.SetDefault("cache.subjects_ttl_seconds", defaultSubjectsTTLSeconds)
	configViper.SetDefault("storage.root", defaultStorageRoot)
	configViper.SetDefault("storage.public_base_url", defaultPublicBaseURL)
	configViper.SetDefault("storage.download_ttl_seconds", defaultDownloadTTLSeconds)
	configViper.SetDefault("storage.upload_ttl_seconds", defaultUploadTTLSeconds)
	configViper.SetDefault("storage.max_upload_bytes", defaultMaxUploadBytes)
	configViper.SetDefault("summarizer.base_url", "")
	configViper.SetDefault("summarizer.api_key", "")
	configViper.SetDefault("summarizer.model", defaultSummarizerModel)
}

// LoadDotEnv loads the nearest .env file from the working directory or its parents.
// Variables already present in the environment keep their values.
func LoadDotEnv() {
	workingDir, err := os.Getwd()
	if err != nil {
		return
	}
	dir := workingDir
	for depth := 0; depth < dotEnvSearchDepth; depth++ {
		envPath := filepath.Join(dir, ".env")
		if _, statErr := os.Stat(envPath); statErr == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		LogFormat:        configViper.GetString("log.format"),
		TAuthSigningKey:  configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:  configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:      configViper.GetString("tauth.issuer"),
		AllowedOrigins:   splitList(configViper.GetString("cors.allowed_origins")),
		CachePath:        strings.TrimSpace(configViper.GetString("cache.path")),
		NotesCacheTTL:    seconds(configViper.GetInt("cache.notes_ttl_seconds")),
		SubjectsCacheTTL: seconds(configViper.GetInt("cache.subjects_ttl_seconds")),
		StorageRoot:      configViper.GetString("storage.root"),
		PublicBaseURL:    configViper.GetString("storage.public_base_url"),
		StorageSecret:    configViper.GetString("storage.signing_secret"),
		DownloadTTL:      seconds(configViper.GetInt("storage.download_ttl_seconds")),
		UploadTTL:        seconds(configViper.GetInt("storage.upload_ttl_seconds")),
		MaxUploadBytes:   configViper.GetInt64("storage.max_upload_bytes"),
		SummarizerURL:    strings.TrimSpace(configViper.GetString("summarizer.base_url")),
		SummarizerAPIKey: configViper.GetString("summarizer.api_key"),
		SummarizerModel:  configViper.GetString("summarizer.model"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if strings.TrimSpace(c.StorageSecret) == "" {
		return fmt.Errorf("storage.signing_secret is required")
	}
	if strings.TrimSpace(c.StorageRoot) == "" {
		return fmt.Errorf("storage.root is required")
	}
	if strings.TrimSpace(c.PublicBaseURL) == "" {
		return fmt.Errorf("storage.public_base_url is required")
	}
	if c.NotesCacheTTL <= 0 || c.SubjectsCacheTTL <= 0 {
		return fmt.Errorf("cache ttl values must be positive")
	}
	if c.DownloadTTL <= 0 || c.UploadTTL <= 0 {
		return fmt.Errorf("storage ttl values must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("storage.max_upload_bytes must be positive")
	}
	return nil
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
