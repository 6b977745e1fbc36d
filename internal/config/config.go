package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "HONMONO_CONFIG"

const appDir = "honmonogatari"

var validate = validator.New()

// LibraryConfig says where the library file lives.
type LibraryConfig struct {
	Path string `yaml:"path" validate:"required"`
	// Owner is applied to a library that gets bootstrapped on first run.
	Owner string `yaml:"owner"`
}

// CatalogConfig configures the SQLite search index.
type CatalogConfig struct {
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Path  string `yaml:"path"`
}

type ShellConfig struct {
	History string `yaml:"history"`
}

// Config is the root of config.yaml.
type Config struct {
	Library LibraryConfig `yaml:"library"`
	Catalog CatalogConfig `yaml:"catalog"`
	Log     LogConfig     `yaml:"log"`
	Shell   ShellConfig   `yaml:"shell"`
}

// Locations resolves file names inside the application directories.
type Locations struct {
	ConfigDir string
	DataDir   string
}

// DefaultLocations follows the XDG layout: $XDG_CONFIG_HOME/honmonogatari,
// then $HOME/.config/honmonogatari, then ./honmonogatari. Data lives next to
// the config.
func DefaultLocations() Locations {
	dir := "./" + appDir
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dir = filepath.Join(xdg, appDir)
	} else if home := os.Getenv("HOME"); home != "" {
		dir = filepath.Join(home, ".config", appDir)
	}
	return Locations{ConfigDir: dir, DataDir: dir}
}

func (l Locations) ConfigLocation(name string) string { return filepath.Join(l.ConfigDir, name) }
func (l Locations) DataLocation(name string) string   { return filepath.Join(l.DataDir, name) }

// Default returns the configuration used when no config file exists.
func Default(loc Locations) *Config {
	return &Config{
		Library: LibraryConfig{Path: loc.DataLocation("library.xml")},
		Catalog: CatalogConfig{Path: loc.DataLocation("catalog.db"), Enabled: true},
		Log:     LogConfig{Level: "warn"},
		Shell:   ShellConfig{History: loc.DataLocation("shell_history")},
	}
}

// Path picks the config file: the explicit path if given, then
// $HONMONO_CONFIG, then config.yaml in the config directory.
func Path(explicit string, loc Locations) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return loc.ConfigLocation("config.yaml")
}

// Load reads the config file at path on top of the defaults. A missing file is
// not an error. An explicitly requested file must exist though, so callers pass
// mustExist for paths the user typed.
func Load(path string, loc Locations, mustExist bool) (*Config, error) {
	cfg := Default(loc)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !mustExist {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
