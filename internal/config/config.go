// Package config reads the process configuration once at start-up: an
// optional YAML file (DASHBOARD_CONFIG) overlaid by environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Common errors
var (
	ErrMissingToken  = errors.New("DATA_REPO_TOKEN is required for the gitlab source")
	ErrMissingRepoID = errors.New("DATA_REPO_ID is required for the gitlab source")
	ErrMissingBucket = errors.New("MIRROR_S3_BUCKET is required for the s3 source")
	ErrUnknownSource = errors.New("unknown data source")
)

// SourceKind identifies where the data repository is read from.
type SourceKind string

const (
	SourceGitLab SourceKind = "gitlab"
	SourceS3     SourceKind = "s3"
)

const (
	DefaultBranch      = "main"
	DefaultBaseURL     = "https://gitlab.com"
	DefaultPort        = "5050"
	DefaultConcurrency = 4
	DefaultTimeZone    = "America/Argentina/Cordoba"
)

// DefaultAllowedOrigins are the dev front-end origins.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8501"}

// Secret is a string that never renders its value.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Value returns the raw secret for use in request headers.
func (s Secret) Value() string { return string(s) }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s Secret) MarshalYAML() (any, error) { return s.String(), nil }

// DataRepo locates the data repository. Immutable for a session.
type DataRepo struct {
	ID          string     `yaml:"id" json:"id"`
	Branch      string     `yaml:"branch" json:"branch"`
	Token       Secret     `yaml:"token" json:"token"`
	BaseURL     string     `yaml:"baseUrl" json:"baseUrl"`
	Source      SourceKind `yaml:"source" json:"source"`
	Concurrency int        `yaml:"concurrency" json:"concurrency"`
}

// Mirror configures the S3 mirror source.
type Mirror struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	PathStyle bool   `yaml:"pathStyle" json:"pathStyle"`
}

type Feedback struct {
	WebhookURL string `yaml:"webhookUrl" json:"webhookUrl"`
}

type Server struct {
	Port           string   `yaml:"port" json:"port"`
	AllowedOrigins []string `yaml:"allowedOrigins" json:"allowedOrigins"`
	TimeZone       string   `yaml:"timeZone" json:"timeZone"`
}

type Database struct {
	URL Secret `yaml:"url" json:"url"`
}

type Log struct {
	Level string `yaml:"level" json:"level"`
}

// Config is the whole process configuration.
type Config struct {
	DataRepo DataRepo `yaml:"dataRepo" json:"dataRepo"`
	Mirror   Mirror   `yaml:"mirror" json:"mirror"`
	Feedback Feedback `yaml:"feedback" json:"feedback"`
	Server   Server   `yaml:"server" json:"server"`
	Database Database `yaml:"database" json:"database"`
	Log      Log      `yaml:"log" json:"log"`
}

// Defaults returns a configuration with every default filled in.
func Defaults() Config {
	return Config{
		DataRepo: DataRepo{
			Branch:      DefaultBranch,
			BaseURL:     DefaultBaseURL,
			Source:      SourceGitLab,
			Concurrency: DefaultConcurrency,
		},
		Mirror: Mirror{Region: "us-east-1"},
		Server: Server{
			Port:           DefaultPort,
			AllowedOrigins: DefaultAllowedOrigins,
			TimeZone:       DefaultTimeZone,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads DASHBOARD_CONFIG (when set) and then the environment.
//
// Environment variables:
//   - DATA_REPO_ID, DATA_REPO_BRANCH (default main), DATA_REPO_TOKEN
//   - DATA_REPO_BASE_URL (default https://gitlab.com), DATA_SOURCE (gitlab|s3)
//   - FETCH_CONCURRENCY (default 4)
//   - MIRROR_S3_BUCKET, MIRROR_S3_REGION, MIRROR_S3_ENDPOINT, MIRROR_S3_PREFIX, MIRROR_S3_PATH_STYLE
//   - FEEDBACK_WEBHOOK_URL
//   - PORT (default 5050), ALLOWED_ORIGINS (comma separated), TZ_DATA (default America/Argentina/Cordoba)
//   - DATABASE_URL
//   - LOG_LEVEL (default info)
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("DASHBOARD_CONFIG")); path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	return cfg, nil
}

// LoadFile reads a YAML configuration file over the defaults.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes YAML over the defaults.
func Parse(raw []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var token, dbURL, source, concurrency, pathStyle, origins string

	str("DATA_REPO_ID", &cfg.DataRepo.ID)
	str("DATA_REPO_BRANCH", &cfg.DataRepo.Branch)
	str("DATA_REPO_TOKEN", &token)
	str("DATA_REPO_BASE_URL", &cfg.DataRepo.BaseURL)
	str("DATA_SOURCE", &source)
	str("FETCH_CONCURRENCY", &concurrency)
	str("MIRROR_S3_BUCKET", &cfg.Mirror.Bucket)
	str("MIRROR_S3_REGION", &cfg.Mirror.Region)
	str("MIRROR_S3_ENDPOINT", &cfg.Mirror.Endpoint)
	str("MIRROR_S3_PREFIX", &cfg.Mirror.Prefix)
	str("MIRROR_S3_PATH_STYLE", &pathStyle)
	str("FEEDBACK_WEBHOOK_URL", &cfg.Feedback.WebhookURL)
	str("PORT", &cfg.Server.Port)
	str("ALLOWED_ORIGINS", &origins)
	str("TZ_DATA", &cfg.Server.TimeZone)
	str("DATABASE_URL", &dbURL)
	str("LOG_LEVEL", &cfg.Log.Level)

	if token != "" {
		cfg.DataRepo.Token = Secret(token)
	}
	if dbURL != "" {
		cfg.Database.URL = Secret(dbURL)
	}
	if source != "" {
		cfg.DataRepo.Source = SourceKind(strings.ToLower(source))
	}
	if n, err := strconv.Atoi(concurrency); err == nil {
		cfg.DataRepo.Concurrency = n
	}
	if pathStyle != "" {
		cfg.Mirror.PathStyle = strings.EqualFold(pathStyle, "true")
	}
	if origins != "" {
		var list []string
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				list = append(list, o)
			}
		}
		cfg.Server.AllowedOrigins = list
	}
	cfg.fillDefaults()
}

func (c *Config) fillDefaults() {
	d := Defaults()
	if c.DataRepo.Branch == "" {
		c.DataRepo.Branch = d.DataRepo.Branch
	}
	if c.DataRepo.BaseURL == "" {
		c.DataRepo.BaseURL = d.DataRepo.BaseURL
	}
	if c.DataRepo.Source == "" {
		c.DataRepo.Source = d.DataRepo.Source
	}
	if c.DataRepo.Concurrency < 1 {
		c.DataRepo.Concurrency = d.DataRepo.Concurrency
	}
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Server.TimeZone == "" {
		c.Server.TimeZone = d.Server.TimeZone
	}
	c.DataRepo.BaseURL = strings.TrimRight(c.DataRepo.BaseURL, "/")
}

// Validate checks that the selected source can be reached.
func (c Config) Validate() error {
	switch c.DataRepo.Source {
	case SourceGitLab:
		if c.DataRepo.Token == "" {
			return ErrMissingToken
		}
		if c.DataRepo.ID == "" {
			return ErrMissingRepoID
		}
	case SourceS3:
		if c.Mirror.Bucket == "" {
			return ErrMissingBucket
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSource, c.DataRepo.Source)
	}
	return nil
}

// Location returns the time zone the source data's wall-clock timestamps are
// recorded in. Unknown zones fall back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
