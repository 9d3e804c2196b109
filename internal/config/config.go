package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix           = "CONTRACTS"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "contracts.db"
	defaultLogLevel     = "info"
	defaultLogFormat    = "json"
	defaultCookieName   = "contracts_session"
	defaultIssuer       = "tauth"
	defaultMaxManual    = 20
	defaultMaxAuto      = 5
	defaultBlobRoot     = "blobs"
	defaultBlobBaseURL  = "/blobs"
	defaultCORSOrigin   = "*"
	defaultRedisURL     = "redis://localhost:6379/0"
	defaultDotEnvFile   = ".env"
	AuditBackendSQLite  = "sqlite"
	AuditBackendRedis   = "redis"
	LogFormatJSON       = "json"
	LogFormatConsole    = "console"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	LogFormat          string
	TAuthSigningKey    string
	TAuthCookieName    string
	TAuthIssuer        string
	VersionsMaxManual  int
	VersionsMaxAuto    int
	AuditBackend       string
	RedisURL           string
	BlobRoot           string
	BlobBaseURL        string
	CORSAllowedOrigins []string
}

// LoadDotEnv exports variables from the given files, or ".env" when none are
// given, without overriding variables already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{defaultDotEnvFile}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
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
	configViper.SetDefault("http.cors_origins", []string{defaultCORSOrigin})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultIssuer)
	configViper.SetDefault("versions.max_manual", defaultMaxManual)
	configViper.SetDefault("versions.max_auto", defaultMaxAuto)
	configViper.SetDefault("audit.backend", AuditBackendSQLite)
	configViper.SetDefault("redis.url", defaultRedisURL)
	configViper.SetDefault("blob.root", defaultBlobRoot)
	configViper.SetDefault("blob.base_url", defaultBlobBaseURL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		TAuthSigningKey:    configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:    configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:        configViper.GetString("tauth.issuer"),
		VersionsMaxManual:  configViper.GetInt("versions.max_manual"),
		VersionsMaxAuto:    configViper.GetInt("versions.max_auto"),
		AuditBackend:       strings.ToLower(strings.TrimSpace(configViper.GetString("audit.backend"))),
		RedisURL:           configViper.GetString("redis.url"),
		BlobRoot:           configViper.GetString("blob.root"),
		BlobBaseURL:        configViper.GetString("blob.base_url"),
		CORSAllowedOrigins: configViper.GetStringSlice("http.cors_origins"),
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
	if c.VersionsMaxManual < 1 || c.VersionsMaxAuto < 1 {
		return fmt.Errorf("versions.max_manual and versions.max_auto must be positive")
	}
	switch c.AuditBackend {
	case AuditBackendSQLite:
	case AuditBackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("redis.url is required for the redis audit backend")
		}
	default:
		return fmt.Errorf("audit.backend must be %q or %q", AuditBackendSQLite, AuditBackendRedis)
	}
	switch c.LogFormat {
	case LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("log.format must be %q or %q", LogFormatJSON, LogFormatConsole)
	}
	if strings.TrimSpace(c.BlobRoot) == "" {
		return fmt.Errorf("blob.root is required")
	}
	return nil
}
