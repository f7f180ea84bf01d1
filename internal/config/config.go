// Package config loads server configuration from flags, environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
)

// Blob backends.
const (
	BlobBackendSQLite = "sqlite"
	BlobBackendS3     = "s3"
)

// ErrHelp is returned by Load after usage has been printed.
var ErrHelp = errors.New("help requested")

// Config holds all configuration for the server.
type Config struct {
	Addr     string `conf:"default::8080,short:a,env:MENJALNICA_ADDR,help:listen address"`
	DBPath   string `conf:"default:menjalnica.sqlite3,short:d,flag:db,env:MENJALNICA_DB,help:SQLite database path"`
	LogPath  string `conf:"short:l,flag:log,env:MENJALNICA_LOG,help:log file path (stdout/stderr only when empty)"`
	LogLevel string `conf:"default:info,enum:debug|info|warn|error,env:MENJALNICA_LOG_LEVEL"`

	// JWTSecret signs session tokens. When empty a secret is generated once
	// and kept in the database.
	JWTSecret string `conf:"noprint,env:MENJALNICA_JWT_SECRET"`

	// PublicURL is the externally visible base URL, used for blob links.
	PublicURL string `conf:"default:http://localhost:8080,env:MENJALNICA_PUBLIC_URL"`
	// CORSAllowedOrigins is a comma-separated list of allowed origins; * allows all.
	CORSAllowedOrigins string `conf:"default:*,env:MENJALNICA_CORS_ALLOWED_ORIGINS"`
	// LoginRateLimit is the number of login and register attempts allowed per
	// client IP per minute.
	LoginRateLimit int `conf:"default:10,env:MENJALNICA_LOGIN_RATE_LIMIT"`

	BlobBackend       string `conf:"default:sqlite,enum:sqlite|s3,env:MENJALNICA_BLOB_BACKEND"`
	S3Endpoint        string `conf:"env:MENJALNICA_S3_ENDPOINT"`
	S3Region          string `conf:"default:us-east-1,env:MENJALNICA_S3_REGION"`
	S3Bucket          string `conf:"env:MENJALNICA_S3_BUCKET"`
	S3AccessKeyID     string `conf:"env:MENJALNICA_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `conf:"noprint,env:MENJALNICA_S3_SECRET_ACCESS_KEY"`
	S3CDNURL          string `conf:"env:MENJALNICA_S3_CDN_URL"`
	S3ForcePathStyle  bool   `conf:"env:MENJALNICA_S3_FORCE_PATH_STYLE"`
}

// Load reads configuration from the command line and environment. Variables
// from a .env file in the working directory are loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	help, err := conf.Parse("", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unusable combinations of settings.
func (c *Config) Validate() error {
	var errs []string

	u, err := url.Parse(c.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("public URL %q must be an absolute http(s) URL", c.PublicURL))
	}

	if c.LoginRateLimit <= 0 {
		errs = append(errs, "login rate limit must be positive")
	}

	if c.BlobBackend == BlobBackendS3 {
		if c.S3Bucket == "" {
			errs = append(errs, "s3 blob backend requires a bucket")
		}
		if c.S3Region == "" {
			errs = append(errs, "s3 blob backend requires a region")
		}
		if c.S3AccessKeyID == "" || c.S3SecretAccessKey == "" {
			errs = append(errs, "s3 blob backend requires an access key ID and secret access key")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
}

// AllowedOrigins splits CORSAllowedOrigins into a list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// String renders the configuration for logging with secrets omitted.
func (c *Config) String() string {
	out, err := conf.String(c)
	if err != nil {
		return err.Error()
	}
	return out
}
