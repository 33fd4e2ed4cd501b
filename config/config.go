// Package config loads newsdesk settings from defaults, a YAML file, a .env
// file and NEWSDESK_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/robertmeta/newsdesk/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "NEWSDESK"

// Configuration validation errors.
var (
	ErrInvalidAPIURL      = errors.New("api.url must be an absolute http or https URL")
	ErrInvalidTimeout     = errors.New("api.timeout must be greater than zero")
	ErrInvalidPageSize    = errors.New("page_size must be at least 1")
	ErrMissingListen      = errors.New("server.listen is required")
	ErrInvalidShutdown    = errors.New("server.shutdown_timeout must be greater than zero")
	ErrMissingStorePath   = errors.New("store.path is required")
	ErrInvalidConcurrency = errors.New("import.concurrency must be at least 1")
	ErrInvalidLogLevel    = errors.New("log.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat   = errors.New("log.format must be text or json")
)

// Config is the complete newsdesk configuration. Environment variables are
// named NEWSDESK_<SECTION>_<FIELD>, for example NEWSDESK_API_URL or
// NEWSDESK_SERVER_SHUTDOWN_TIMEOUT.
type Config struct {
	API      APIConfig    `yaml:"api"`
	Store    StoreConfig  `yaml:"store"`
	Server   ServerConfig `yaml:"server"`
	Log      LogConfig    `yaml:"log"`
	Import   ImportConfig `yaml:"import"`
	RSS      RSSConfig    `yaml:"rss"`
	PageSize int          `yaml:"page_size" split_words:"true"`
	// Offline serves every read from the SQLite mirror instead of the API.
	Offline bool `yaml:"offline"`
}

// APIConfig locates the content API.
type APIConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig locates the offline mirror.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the JSON frontend.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	CORSOrigins     []string      `yaml:"cors_origins" split_words:"true"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ImportConfig configures syndication imports.
type ImportConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RSSConfig describes the channel of the generated RSS feed.
type RSSConfig struct {
	Title       string `yaml:"title"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
	Author      string `yaml:"author"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			URL:     "http://localhost:3000",
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
		Import: ImportConfig{
			Concurrency: 8,
			Timeout:     30 * time.Second,
		},
		RSS: RSSConfig{
			Title:       "Studio News",
			Link:        "http://localhost:8080",
			Description: "Latest news articles",
			Author:      "newsdesk",
		},
		PageSize: 6,
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "newsdesk.db"
	}
	return filepath.Join(home, ".config", "newsdesk", "newsdesk.db")
}

// Load builds the configuration. path names an optional YAML file; it is
// an error for a named file to be missing. The .env file comes from
// ENV_PATH (default ".env") and may be absent. The result is not validated
// so that command-line flags can still be applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads variables from the file named by ENV_PATH, or
// defaultPath. Variables already set in the environment win. A missing
// file is not an error.
func LoadDotEnv(defaultPath string) error {
	envPath := os.Getenv("ENV_PATH")
	if envPath == "" {
		envPath = defaultPath
	}

	if err := godotenv.Load(envPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Skipping .env file", "path", envPath)
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", envPath, err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAPIURL, c.API.URL)
	}
	if c.API.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.PageSize < 1 {
		return ErrInvalidPageSize
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		return ErrMissingListen
	}
	if c.Server.ShutdownTimeout <= 0 {
		return ErrInvalidShutdown
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return ErrMissingStorePath
	}
	if c.Import.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}
	return nil
}
