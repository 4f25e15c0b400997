// Package config reads the mailrules TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the on-disk configuration.
type Config struct {
	Store   Store   `toml:"store"`
	Gmail   Gmail   `toml:"gmail"`
	Log     Log     `toml:"log"`
	Metrics Metrics `toml:"metrics"`
	Daemon  Daemon  `toml:"daemon"`
}

// Store selects the property bag backend.
type Store struct {
	Backend string `toml:"backend" validate:"oneof=memory sqlite badger"`
	Path    string `toml:"path" validate:"required_unless=Backend memory"`
}

// Gmail configures API access.
type Gmail struct {
	CredentialsDir string `toml:"credentials_dir" validate:"required"`
	RPS            int    `toml:"rps" validate:"gte=0"`
}

// Log configures the logger.
type Log struct {
	Level string `toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	File  string `toml:"file"`
}

// Metrics configures the Prometheus listener of the daemon.
type Metrics struct {
	Addr string `toml:"addr" validate:"omitempty,hostname_port"`
}

// Daemon configures the scheduler.
type Daemon struct {
	SettingsPoll Duration `toml:"settings_poll"`
}

// Dir returns the configuration directory. MAILRULES_CONFIG_DIR overrides
// the platform default.
func Dir() (string, error) {
	if dir := os.Getenv("MAILRULES_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(configDir, "mailrules"), nil
}

// Default returns the configuration used when no file exists.
func Default() Config {
	dir, err := Dir()
	if err != nil {
		dir = "."
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Store:   Store{Backend: "sqlite", Path: filepath.Join(dir, "mailrules.db")},
		Gmail:   Gmail{CredentialsDir: filepath.Join(home, ".gmailctl"), RPS: 4},
		Log:     Log{Level: "info"},
		Daemon:  Daemon{SettingsPoll: Duration{Duration: defaultSettingsPoll}},
		Metrics: Metrics{},
	}
}

// Read decodes path over the defaults. A missing file at the default
// location is not an error; an explicitly named missing file is.
func Read(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		dir, err := Dir()
		if err != nil {
			return Config{}, err
		}
		path = filepath.Join(dir, "config.toml")
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, Validate(cfg)
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Gmail.CredentialsDir = expandHome(cfg.Gmail.CredentialsDir)
	cfg.Log.File = expandHome(cfg.Log.File)
	return cfg, Validate(cfg)
}

var validate = validator.New()

// Validate checks field constraints.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Daemon.SettingsPoll.Duration < 0 {
		return fmt.Errorf("%w: daemon.settings_poll must not be negative", ErrInvalidConfig)
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return os.ExpandEnv(p)
}
