package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Aurelien590/StabilityMatrix/internal/common/fsutil"
)

// Config holds runtime parameters for the engine.
// Zero values mean "unspecified" and are replaced by Normalize.
type Config struct {
	// Addr is the status API listen address.
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// LibraryDir is the root of the package library; Packages/ and Models/
	// live beneath it unless overridden.
	LibraryDir  string `json:"library_dir" yaml:"library_dir" toml:"library_dir"`
	PackagesDir string `json:"packages_dir" yaml:"packages_dir" toml:"packages_dir"`
	ModelsDir   string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// DefaultBackend is used when an install request omits one.
	DefaultBackend string `json:"default_backend" yaml:"default_backend" toml:"default_backend"`
	LogLevel       string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Normalize expands the library path and fills derived defaults.
func (c *Config) Normalize() error {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8095"
	}
	if c.LibraryDir == "" {
		c.LibraryDir = "~/StabilityMatrix"
	}
	lib, err := fsutil.ExpandHome(c.LibraryDir)
	if err != nil {
		return err
	}
	c.LibraryDir = lib
	if c.PackagesDir == "" {
		c.PackagesDir = filepath.Join(lib, "Packages")
	}
	if c.ModelsDir == "" {
		c.ModelsDir = filepath.Join(lib, "Models")
	}
	if c.DefaultBackend == "" {
		c.DefaultBackend = "cuda"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}
