// Package config loads langindexd's configuration in four layers:
// hardcoded defaults, then a user config file, then a project config
// file, then environment variables, each step overriding the last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ralts/langindex/internal/tokenstore"
)

// Config is the complete langindexd configuration.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Paths   PathsConfig  `yaml:"paths" json:"paths"`
	Index   IndexConfig  `yaml:"index" json:"index"`
	Store   StoreConfig  `yaml:"store" json:"store"`
	Server  ServerConfig `yaml:"server" json:"server"`
}

// PathsConfig configures which workspace paths are scanned.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexConfig configures the indexing pipeline.
type IndexConfig struct {
	// Workers is the worker pool size for the scan/parse/build pipeline.
	Workers int `yaml:"workers" json:"workers"`

	// WatchDebounce coalesces bursts of on-disk change events seen by the
	// file watcher; editor notifications are coalesced by the indexer's
	// work queue instead.
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`

	// IndexGems enables dependency indexing of Gemfile.lock-resolved gem
	// sources (SPEC_FULL.md's supplemented dependency-indexing feature).
	IndexGems bool `yaml:"index_gems" json:"index_gems"`

	// ReportDiagnostics is loaded from config and may be switched on by the
	// initialize request; nothing in this module reads it after that, and
	// no diagnostics are sent to the editor and no linter is run.
	ReportDiagnostics bool `yaml:"report_diagnostics" json:"report_diagnostics"`
}

// StoreConfig configures the token store.
type StoreConfig struct {
	// Allocation selects where the token store lives: "ram" or "disk".
	Allocation tokenstore.AllocationType `yaml:"allocation_type" json:"allocation_type"`

	// CacheSize is loaded and validated but not passed to the query
	// engine, whose parsed-AST LRU cache is fixed at 256 entries
	// (astCacheSize).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ServerConfig configures the editor-facing stdio session.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
}

var defaultExcludePatterns = []string{
	".git/**",
	"tmp/**",
	"log/**",
	"vendor/**",
	"node_modules/**",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: append([]string(nil), defaultExcludePatterns...),
		},
		Index: IndexConfig{
			Workers:           runtime.NumCPU(),
			WatchDebounce:     300 * time.Millisecond,
			IndexGems:         false,
			ReportDiagnostics: true,
		},
		Store: StoreConfig{
			Allocation: tokenstore.AllocationRAM,
			CacheSize:  256,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "langindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "langindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "langindex", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds a Config for the workspace rooted at dir, applying
// configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/langindex/config.yaml)
//  3. Project config (.langindex.yaml in the workspace root)
//  4. Environment variables (LANGINDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads .langindex.yaml, falling back to .langindex.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".langindex.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".langindex.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = other.Paths.Exclude
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if other.Index.WatchDebounce != 0 {
		c.Index.WatchDebounce = other.Index.WatchDebounce
	}
	c.Index.IndexGems = other.Index.IndexGems || c.Index.IndexGems
	if other.Store.Allocation != "" {
		c.Store.Allocation = other.Store.Allocation
	}
	if other.Store.CacheSize != 0 {
		c.Store.CacheSize = other.Store.CacheSize
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies LANGINDEX_* environment variables, the
// highest-precedence configuration tier.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LANGINDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.Workers = n
		}
	}
	if v := os.Getenv("LANGINDEX_WATCH_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Index.WatchDebounce = d
		}
	}
	if v := os.Getenv("LANGINDEX_ALLOCATION_TYPE"); v != "" {
		c.Store.Allocation = tokenstore.AllocationType(strings.ToLower(v))
	}
	if v := os.Getenv("LANGINDEX_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Store.CacheSize = n
		}
	}
	if v := os.Getenv("LANGINDEX_INDEX_GEMS"); v != "" {
		c.Index.IndexGems = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Index.Workers < 1 {
		return fmt.Errorf("index.workers must be >= 1, got %d", c.Index.Workers)
	}
	if c.Index.WatchDebounce < 0 {
		return fmt.Errorf("index.watch_debounce must be >= 0, got %s", c.Index.WatchDebounce)
	}
	if c.Store.Allocation != tokenstore.AllocationRAM && c.Store.Allocation != tokenstore.AllocationDisk {
		return fmt.Errorf("store.allocation_type must be %q or %q, got %q",
			tokenstore.AllocationRAM, tokenstore.AllocationDisk, c.Store.Allocation)
	}
	if c.Store.CacheSize < 1 {
		return fmt.Errorf("store.cache_size must be >= 1, got %d", c.Store.CacheSize)
	}
	return nil
}

// WriteYAML writes c to path as YAML, creating parent directories as
// needed.
func (c *Config) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FindProjectRoot walks up from startDir looking for a .git directory
// or an existing .langindex.yaml, returning the first directory that
// has one.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if dirExists(filepath.Join(dir, ".git")) || fileExists(filepath.Join(dir, ".langindex.yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir, nil
		}
		dir = parent
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
