package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"BlockBill"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	Store struct {
		Driver     string `envconfig:"STORE_DRIVER" default:"postgres"`
		SQLitePath string `envconfig:"SQLITE_PATH" default:"blockbill.db"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"blockbill"`
	}

	Server struct {
		Timeout         time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	}

	Auth struct {
		JWTSecret   string `envconfig:"AUTH_JWT_SECRET"`
		JWTIssuer   string `envconfig:"AUTH_JWT_ISSUER"`
		JWTAudience string `envconfig:"AUTH_JWT_AUDIENCE"`
	}

	CORS struct {
		AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	}

	Archive struct {
		Driver  string `envconfig:"ARCHIVE_DRIVER" default:"none"`
		Dir     string `envconfig:"ARCHIVE_DIR" default:"archive"`
		Workers int    `envconfig:"ARCHIVE_WORKERS" default:"2"`
		Queue   int    `envconfig:"ARCHIVE_QUEUE" default:"256"`

		S3 struct {
			Bucket    string `envconfig:"ARCHIVE_S3_BUCKET"`
			Region    string `envconfig:"ARCHIVE_S3_REGION" default:"us-east-1"`
			Endpoint  string `envconfig:"ARCHIVE_S3_ENDPOINT"`
			AccessKey string `envconfig:"ARCHIVE_S3_ACCESS_KEY"`
			SecretKey string `envconfig:"ARCHIVE_S3_SECRET_KEY"`
			PathStyle bool   `envconfig:"ARCHIVE_S3_PATH_STYLE" default:"true"`
		}
	}

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"text"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// Validate reports every setting that cannot work, not just the first.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "postgres", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.Archive.Driver {
	case "none", "memory", "fs":
	case "s3":
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, errors.New("ARCHIVE_S3_BUCKET is required for the s3 archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ARCHIVE_DRIVER %q", c.Archive.Driver))
	}

	if c.Archive.Workers < 1 {
		errs = append(errs, errors.New("ARCHIVE_WORKERS must be at least 1"))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", c.Log.Level)
	}

	return level, nil
}

// Logger builds the process logger from the Log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := c.LogLevel()
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
