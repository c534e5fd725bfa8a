// Package config loads the service configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Objects ObjectsConfig `yaml:"objects"`
	Auth    AuthConfig    `yaml:"auth"`
	Media   MediaConfig   `yaml:"media"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RequestTimeout string   `yaml:"request_timeout"`
	// MaxUploadMB bounds multipart photo uploads.
	MaxUploadMB int64 `yaml:"max_upload_mb"`
}

type StoreConfig struct {
	Driver          string `yaml:"driver"` // firestore, sqlite, memory
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	SQLitePath      string `yaml:"sqlite_path"`
}

type ObjectsConfig struct {
	Driver string `yaml:"driver"` // gcs, local, memory
	Bucket string `yaml:"bucket"`
	// Dir is where the local driver writes objects.
	Dir string `yaml:"dir"`
	// PublicBaseURL prefixes object URLs. The local driver serves objects
	// under <PublicBaseURL>/<bucket>/<key> and defaults to the server's own
	// /files/ route; gcs defaults to the public storage endpoint.
	PublicBaseURL string `yaml:"public_base_url"`
}

type AuthConfig struct {
	SessionTTL string `yaml:"session_ttl"`
}

type MediaConfig struct {
	GalleryDir    string   `yaml:"gallery_dir"`
	CameraCommand []string `yaml:"camera_command"`
	AllowGallery  bool     `yaml:"allow_gallery"`
	AllowCamera   bool     `yaml:"allow_camera"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			RequestTimeout: "30s",
			MaxUploadMB:    10,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "recipes.db",
		},
		Objects: ObjectsConfig{
			Driver: "local",
			Bucket: "recipe-photos",
			Dir:    "objects",
		},
		Auth: AuthConfig{SessionTTL: "720h"},
		Media: MediaConfig{
			AllowGallery: true,
			AllowCamera:  true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Addr, "RECIPES_ADDR")
	set(&c.Store.Driver, "RECIPES_STORE_DRIVER")
	set(&c.Store.ProjectID, "RECIPES_PROJECT_ID")
	set(&c.Store.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	set(&c.Store.SQLitePath, "RECIPES_SQLITE_PATH")
	set(&c.Objects.Driver, "RECIPES_OBJECTS_DRIVER")
	set(&c.Objects.Bucket, "RECIPES_BUCKET")
	set(&c.Objects.Dir, "RECIPES_OBJECTS_DIR")
	set(&c.Objects.PublicBaseURL, "RECIPES_PUBLIC_BASE_URL")
	set(&c.Logging.Level, "RECIPES_LOG_LEVEL")
	if v := os.Getenv("RECIPES_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "firestore":
		if c.Store.ProjectID == "" {
			return errors.New("store.project_id is required for the firestore driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Objects.Driver {
	case "gcs", "memory":
	case "local":
		if c.Objects.Dir == "" {
			return errors.New("objects.dir is required for the local driver")
		}
	default:
		return fmt.Errorf("unknown objects driver %q", c.Objects.Driver)
	}
	if c.Objects.Bucket == "" {
		return errors.New("objects.bucket is required")
	}

	if _, err := time.ParseDuration(c.Server.RequestTimeout); err != nil {
		return fmt.Errorf("server.request_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Auth.SessionTTL); err != nil {
		return fmt.Errorf("auth.session_ttl: %w", err)
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.RequestTimeout)
	return d
}

func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Auth.SessionTTL)
	return d
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
