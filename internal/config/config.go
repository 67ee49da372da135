// Package config loads querycache.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/querycache/internal/schemamap"
	"github.com/roach88/querycache/internal/tagcache"
)

// DefaultFile is read when no config path is given. It is optional.
const DefaultFile = "querycache.yaml"

// Config is the CLI configuration. Relative paths are resolved against the
// directory of the config file.
type Config struct {
	// FunctionsDir holds the backend's CUE function declarations.
	FunctionsDir string `yaml:"functions_dir"`

	// SchemaMap is the generated schema map artifact.
	SchemaMap string `yaml:"schema_map"`

	// LocalStore is the SQLite file backing the client cache.
	// Empty keeps the client cache in memory.
	LocalStore string `yaml:"local_store,omitempty"`

	Redis Redis `yaml:"redis"`

	CacheLife tagcache.Profile `yaml:"cache_life"`
}

// Redis locates the tag store. An empty Addr selects the in-memory store.
type Redis struct {
	Addr   string `yaml:"addr,omitempty"`
	DB     int    `yaml:"db,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		FunctionsDir: "functions",
		SchemaMap:    filepath.Join("functions", schemamap.GeneratedDir, schemamap.ArtifactName),
		Redis:        Redis{Prefix: "querycache:"},
		CacheLife:    tagcache.DefaultProfile,
	}
}

// Load reads the config at path. An empty path reads DefaultFile and falls
// back to Default when it does not exist; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes a config document over the defaults. Unknown keys are
// rejected so typos surface instead of being ignored.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if c.FunctionsDir == "" {
		return fmt.Errorf("functions_dir is required")
	}
	if c.SchemaMap == "" {
		return fmt.Errorf("schema_map is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative")
	}
	if err := c.CacheLife.Validate(); err != nil {
		return fmt.Errorf("cache_life: %w", err)
	}
	return nil
}

func (c *Config) resolve(base string) {
	c.FunctionsDir = resolvePath(base, c.FunctionsDir)
	c.SchemaMap = resolvePath(base, c.SchemaMap)
	c.LocalStore = resolvePath(base, c.LocalStore)
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
