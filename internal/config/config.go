package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/mmdedit/internal/config/loader"
	"github.com/dshills/mmdedit/internal/engine/history"
	"github.com/dshills/mmdedit/internal/logging"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "MMDEDIT_"

// Recovery log backends.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Preferences holds every user setting.
type Preferences struct {
	Undo     UndoPreferences     `toml:"undo"`
	Recovery RecoveryPreferences `toml:"recovery"`
	Logging  LoggingPreferences  `toml:"logging"`
}

// UndoPreferences configures undo history.
type UndoPreferences struct {
	// SoftLimit is the number of undo steps kept per project.
	SoftLimit int `toml:"softLimit"`
}

// RecoveryPreferences configures the command log.
type RecoveryPreferences struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	Backend string `toml:"backend"`
	// Sync flushes every record to stable storage before the edit returns.
	Sync bool `toml:"sync"`
}

// LoggingPreferences configures the process logger.
type LoggingPreferences struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in preferences.
func Default() Preferences {
	return Preferences{
		Undo: UndoPreferences{SoftLimit: history.DefaultSoftLimit},
		Recovery: RecoveryPreferences{
			Enabled: true,
			Dir:     defaultRecoveryDir(),
			Backend: BackendJSONL,
			Sync:    true,
		},
		Logging: LoggingPreferences{Level: "info", Format: "text"},
	}
}

// DefaultPath returns the user preferences file.
func DefaultPath() string {
	return filepath.Join(userConfigDir(), "preferences.toml")
}

func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mmdedit")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mmdedit")
}

func defaultRecoveryDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "mmdedit", "recovery")
	}
	return filepath.Join(os.TempDir(), "mmdedit", "recovery")
}

// Load builds preferences from the defaults, the file at path and the
// environment. A missing file is not an error. An empty path skips the
// file.
func Load(path string) (Preferences, error) {
	var sources []loader.Loader
	if path != "" {
		sources = append(sources, loader.NewTOMLLoader(path))
	}
	sources = append(sources, NewEnvLoader())
	return LoadFrom(sources...)
}

// NewEnvLoader returns the environment loader for EnvPrefix.
func NewEnvLoader() *loader.EnvLoader {
	return loader.NewEnvLoader(EnvPrefix, map[string]string{
		"MMDEDIT_LOG_LEVEL":    "logging.level",
		"MMDEDIT_LOG_FORMAT":   "logging.format",
		"MMDEDIT_RECOVERY_DIR": "recovery.dir",
		"MMDEDIT_SOFT_LIMIT":   "undo.softLimit",
	})
}

// LoadFrom merges sources over the defaults, in order, and validates the
// result.
func LoadFrom(sources ...loader.Loader) (Preferences, error) {
	layers := make([]map[string]any, 0, len(sources))
	for _, src := range sources {
		m, err := src.Load()
		if err != nil {
			return Preferences{}, err
		}
		layers = append(layers, m)
	}
	merged := loader.Merge(layers...)

	prefs := Default()
	if len(merged) > 0 {
		// Round-trip through TOML so the typed decoder applies the map.
		data, err := toml.Marshal(merged)
		if err != nil {
			return Preferences{}, fmt.Errorf("encoding preferences: %w", err)
		}
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(&prefs); err != nil {
			return Preferences{}, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	}
	if err := prefs.Validate(); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// Validate clamps the undo soft limit into [1, history.HardLimit] and
// rejects enumerated values it does not know.
func (p *Preferences) Validate() error {
	p.Undo.SoftLimit = max(1, min(p.Undo.SoftLimit, history.HardLimit))
	switch p.Recovery.Backend {
	case BackendJSONL, BackendSQLite:
	default:
		return fmt.Errorf("%w: recovery.backend %q", ErrValidationFailed, p.Recovery.Backend)
	}
	if !logging.KnownLevel(p.Logging.Level) {
		return fmt.Errorf("%w: logging.level %q", ErrValidationFailed, p.Logging.Level)
	}
	switch p.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrValidationFailed, p.Logging.Format)
	}
	if p.Recovery.Enabled && p.Recovery.Dir == "" {
		return fmt.Errorf("%w: recovery.dir is empty", ErrValidationFailed)
	}
	return nil
}
