// Package config loads the sectext CLI configuration.
//
// Configuration comes from one YAML file named by the --config flag or
// the SECTEXT_CONFIG environment variable. A .env file in the working
// directory is loaded first, without overriding variables already set.
// Environment variables then override individual file values:
//
//	SECTEXT_SCHEMA       schema description path
//	SECTEXT_LOG_LEVEL    debug, info, warn or error
//	SECTEXT_LOG_FORMAT   text or json
//	SECTEXT_PACK_WIDTH   records per packed file
//	SECTEXT_COMPRESSION  none, zstd or lz4
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Neumenon/sectext/stream"
)

// Environment variable names.
const (
	EnvConfig      = "SECTEXT_CONFIG"
	EnvSchema      = "SECTEXT_SCHEMA"
	EnvLogLevel    = "SECTEXT_LOG_LEVEL"
	EnvLogFormat   = "SECTEXT_LOG_FORMAT"
	EnvPackWidth   = "SECTEXT_PACK_WIDTH"
	EnvCompression = "SECTEXT_COMPRESSION"
)

// Config is the CLI configuration.
type Config struct {
	// Schema is the path of the schema description (YAML or JSONC).
	Schema string `yaml:"schema"`

	// Log configures the stderr logger.
	Log LogConfig `yaml:"log"`

	// Pack configures packed files.
	Pack PackConfig `yaml:"pack"`

	// Store configures the packed record store.
	Store StoreConfig `yaml:"store"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: warn
	Level string `yaml:"level"`

	// Format is text or json. Default: text
	Format string `yaml:"format"`
}

// PackConfig configures packed files.
type PackConfig struct {
	// Width is the number of record indices per file. Default: 100
	Width int `yaml:"width"`

	// Compression is none, zstd or lz4. Default: none
	Compression string `yaml:"compression"`
}

// StoreConfig configures the record store.
type StoreConfig struct {
	// CacheSize is the number of parsed windows kept in memory. Default: 64
	CacheSize int `yaml:"cache_size"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Pack: PackConfig{
			Width:       100,
			Compression: "none",
		},
		Store: StoreConfig{
			CacheSize: 64,
		},
	}
}

// Load builds the configuration: defaults, then the file at path (or
// SECTEXT_CONFIG when path is empty; no file at all is fine), then
// environment overrides. envFiles are dotenv files to load first; with
// none, ".env" is tried. Missing dotenv files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvSchema); ok && v != "" {
		c.Schema = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup(EnvPackWidth); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPackWidth, err)
		}
		c.Pack.Width = n
	}
	if v, ok := lookup(EnvCompression); ok && v != "" {
		c.Pack.Compression = v
	}
	return nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Pack.Width <= 0 {
		errs = append(errs, fmt.Errorf("pack.width must be positive, got %d", c.Pack.Width))
	}
	if _, err := stream.ParseCompression(c.Pack.Compression); err != nil {
		errs = append(errs, fmt.Errorf("pack.compression: %w", err))
	}
	if c.Store.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("store.cache_size must be positive, got %d", c.Store.CacheSize))
	}
	return errors.Join(errs...)
}

// Compression returns the configured compression.
func (c *Config) Compression() stream.Compression {
	comp, _ := stream.ParseCompression(c.Pack.Compression)
	return comp
}

// Logger builds a logger writing to w at the configured level and format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
