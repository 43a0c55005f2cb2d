package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/ows"
)

// FileName is the configuration file looked up in the user config directory.
const FileName = "constellation.yaml"

// Source types.
const (
	SourceSQLite     = "sqlite"
	SourceFilesystem = "filesystem"
)

// Config represents the complete Constellation configuration.
type Config struct {
	Version int `yaml:"version" json:"version"`

	// ConfigDir holds the service indexes and their writer locks.
	ConfigDir string `yaml:"config_dir" json:"config_dir"`

	Server ServerConfig `yaml:"server" json:"server"`
	Index  IndexConfig  `yaml:"index" json:"index"`
	Watch  WatchConfig  `yaml:"watch" json:"watch"`

	Sources  []SourceConfig  `yaml:"sources" json:"sources"`
	Services []ServiceConfig `yaml:"services" json:"services"`

	// Queryables optionally names a YAML file whose term maps replace the
	// built-in ones of the same name.
	Queryables string `yaml:"queryables,omitempty" json:"queryables,omitempty"`

	// path is the file the configuration was read from. Relative paths in
	// the file resolve against its directory.
	path string
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address  string `yaml:"address" json:"address"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// IndexConfig configures the catalog indexes.
type IndexConfig struct {
	// MaxCachedQueries is the number of search results kept per service.
	MaxCachedQueries int `yaml:"max_cached_queries" json:"max_cached_queries"`
	// LockTimeout bounds the wait for another process's index writer.
	LockTimeout string `yaml:"lock_timeout" json:"lock_timeout"`
}

// WatchConfig configures directory watching of filesystem sources.
type WatchConfig struct {
	Debounce     string `yaml:"debounce" json:"debounce"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
}

// SourceConfig declares a record source.
type SourceConfig struct {
	Name string `yaml:"name" json:"name"`
	// Type is "sqlite" or "filesystem".
	Type string `yaml:"type" json:"type"`
	Path string `yaml:"path" json:"path"`
	// Watch follows a filesystem source and reindexes changed files.
	Watch bool `yaml:"watch,omitempty" json:"watch,omitempty"`
}

// ServiceConfig declares an OWS service instance.
type ServiceConfig struct {
	Specification     string   `yaml:"specification" json:"specification"`
	ID                string   `yaml:"id" json:"id"`
	Versions          []string `yaml:"versions,omitempty" json:"versions,omitempty"`
	CacheCapabilities bool     `yaml:"cache_capabilities" json:"cache_capabilities"`
	// Source names the record source of a catalog service.
	Source      string   `yaml:"source,omitempty" json:"source,omitempty"`
	ContextFile string   `yaml:"context_file,omitempty" json:"context_file,omitempty"`
	Languages   []string `yaml:"languages,omitempty" json:"languages,omitempty"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version:   1,
		ConfigDir: GetUserConfigDir(),
		Server: ServerConfig{
			Address:  "127.0.0.1:8080",
			LogLevel: "info",
		},
		Index: IndexConfig{
			MaxCachedQueries: 256,
			LockTimeout:      "30s",
		},
		Watch: WatchConfig{
			Debounce:     "500ms",
			PollInterval: "5s",
		},
	}
}

// GetUserConfigPath returns the path of the user configuration file:
//   - $XDG_CONFIG_HOME/constellation/constellation.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/constellation/constellation.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "constellation", FileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "constellation", FileName)
	}
	return filepath.Join(home, ".config", "constellation", FileName)
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// Load reads the configuration. It applies, in order of increasing
// precedence:
//  1. Hardcoded defaults
//  2. The configuration file (path, or the user config file when empty)
//  3. Environment variables (CONSTELLATION_*)
//
// A missing user config file is fine; a missing explicit path is not.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = GetUserConfigPath()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, sdierrors.ConfigError("failed to resolve config path", err)
	}
	cfg.path = abs

	switch _, err := os.Stat(abs); {
	case err == nil:
		if err := cfg.loadYAML(abs); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case errors.Is(err, os.ErrNotExist):
		return nil, sdierrors.New(sdierrors.ErrCodeConfigNotFound, "configuration file not found", err).
			WithDetail("path", abs)
	default:
		return nil, sdierrors.IOError("failed to stat configuration file", err)
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, sdierrors.ConfigError("invalid configuration", err).WithDetail("path", abs)
	}
	return cfg, nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sdierrors.IOError("failed to read config file", err).WithDetail("path", path)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return sdierrors.ConfigError("failed to parse config file", err).WithDetail("path", path)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Lists replace the
// defaults wholesale.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.ConfigDir != "" {
		c.ConfigDir = other.ConfigDir
	}

	if other.Server.Address != "" {
		c.Server.Address = other.Server.Address
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}

	if other.Index.MaxCachedQueries != 0 {
		c.Index.MaxCachedQueries = other.Index.MaxCachedQueries
	}
	if other.Index.LockTimeout != "" {
		c.Index.LockTimeout = other.Index.LockTimeout
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.PollInterval != "" {
		c.Watch.PollInterval = other.Watch.PollInterval
	}

	if len(other.Sources) > 0 {
		c.Sources = other.Sources
	}
	if len(other.Services) > 0 {
		c.Services = other.Services
	}
	if other.Queryables != "" {
		c.Queryables = other.Queryables
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CONSTELLATION_CONFIG_DIR"); v != "" {
		c.ConfigDir = v
	}
	if v := os.Getenv("CONSTELLATION_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("CONSTELLATION_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CONSTELLATION_MAX_CACHED_QUERIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.MaxCachedQueries = n
		}
	}
	if v := os.Getenv("CONSTELLATION_LOCK_TIMEOUT"); v != "" {
		c.Index.LockTimeout = v
	}
	if v := os.Getenv("CONSTELLATION_QUERYABLES"); v != "" {
		c.Queryables = v
	}
}

// resolvePaths makes file paths absolute, relative to the config file.
func (c *Config) resolvePaths() {
	base := filepath.Dir(c.path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		if strings.HasPrefix(p, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, p[2:])
			}
		}
		return filepath.Join(base, p)
	}

	c.ConfigDir = resolve(c.ConfigDir)
	c.Queryables = resolve(c.Queryables)
	for i := range c.Sources {
		// an empty sqlite path is an in-memory store
		c.Sources[i].Path = resolve(c.Sources[i].Path)
	}
	for i := range c.Services {
		c.Services[i].ContextFile = resolve(c.Services[i].ContextFile)
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.ConfigDir == "" {
		return fmt.Errorf("config_dir must be set")
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must be set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Index.MaxCachedQueries < 0 {
		return fmt.Errorf("index.max_cached_queries must be non-negative, got %d", c.Index.MaxCachedQueries)
	}
	for name, v := range map[string]string{
		"index.lock_timeout":  c.Index.LockTimeout,
		"watch.debounce":      c.Watch.Debounce,
		"watch.poll_interval": c.Watch.PollInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s must be a duration, got %q", name, v)
		}
	}

	sources := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d].name must be set", i)
		}
		if sources[s.Name] {
			return fmt.Errorf("source %q is declared twice", s.Name)
		}
		sources[s.Name] = true

		switch s.Type {
		case SourceSQLite:
			if s.Watch {
				return fmt.Errorf("source %q: only filesystem sources can be watched", s.Name)
			}
		case SourceFilesystem:
			if s.Path == "" {
				return fmt.Errorf("source %q: path must be set", s.Name)
			}
		default:
			return fmt.Errorf("source %q: type must be 'sqlite' or 'filesystem', got %q", s.Name, s.Type)
		}
	}

	ids := make(map[string]bool, len(c.Services))
	catalogs := make(map[string]string)
	for i, s := range c.Services {
		spec, err := ows.ParseSpecification(s.Specification)
		if err != nil {
			return fmt.Errorf("services[%d]: %w", i, err)
		}
		if s.ID == "" {
			return fmt.Errorf("services[%d].id must be set", i)
		}
		key := string(spec) + "/" + s.ID
		if ids[key] {
			return fmt.Errorf("service %s is declared twice", key)
		}
		ids[key] = true

		if spec != ows.CSW {
			continue
		}
		if s.Source == "" {
			return fmt.Errorf("service %s: source must be set", key)
		}
		if !sources[s.Source] {
			return fmt.Errorf("service %s: unknown source %q", key, s.Source)
		}
		// two services over one source would write the same store
		if other, ok := catalogs[s.Source]; ok {
			return fmt.Errorf("services %s and %s share source %q", other, key, s.Source)
		}
		catalogs[s.Source] = key
	}
	return nil
}

// Source returns the source declared under name.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// Service returns the service declared under spec and id.
func (c *Config) Service(spec ows.Specification, id string) (ServiceConfig, bool) {
	for _, s := range c.Services {
		if parsed, err := ows.ParseSpecification(s.Specification); err == nil && parsed == spec && s.ID == id {
			return s, true
		}
	}
	return ServiceConfig{}, false
}

// LockTimeout returns the parsed index lock timeout.
func (c *Config) LockTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Index.LockTimeout)
	return d
}

// Debounce returns the parsed watcher debounce window.
func (c *Config) Debounce() time.Duration {
	d, _ := time.ParseDuration(c.Watch.Debounce)
	return d
}

// PollInterval returns the parsed watcher polling interval.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Watch.PollInterval)
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
