// Package kvconfig loads the CLI's JSONC configuration file, following the
// same defaults-then-global-then-project-then-flags precedence the teacher
// CLI uses for its own config.
package kvconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// ConfigFileName is the default project-level config file name.
const ConfigFileName = ".kv.json"

// Config holds the CLI's persisted defaults.
type Config struct {
	// StorePath is the default text-format file the CLI operates on.
	StorePath string `json:"store_path"`
	// Align toggles column alignment on save.
	Align bool `json:"align,omitempty"`
	// Interpolate toggles variable expansion on save.
	Interpolate bool `json:"interpolate,omitempty"`
	// Quiet suppresses diagnostic logging.
	Quiet bool `json:"quiet,omitempty"`
}

// ErrStorePathEmpty is returned when a config file explicitly sets
// store_path to the empty string.
var ErrStorePathEmpty = errors.New("kvconfig: store_path cannot be empty")

// Default returns the built-in defaults.
func Default() Config {
	return Config{StorePath: "store.kv"}
}

// GlobalPath returns the global config path, honoring XDG_CONFIG_HOME,
// falling back to ~/.config/kv/config.json.
func GlobalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "kv", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "kv", "config.json")
}

// Load merges defaults, the global config, and the project config
// (workDir/.kv.json), in that order of increasing precedence. A later
// layer's store_path replaces an earlier one; the boolean settings combine
// by OR, so a later layer can turn one on but cannot turn off one that an
// earlier layer set. A missing file at either layer is not an error.
func Load(workDir string, env map[string]string) (Config, error) {
	cfg := Default()

	if path := GlobalPath(env); path != "" {
		overlay, loaded, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, overlay)
		}
	}

	projectPath := filepath.Join(workDir, ConfigFileName)

	overlay, loaded, err := loadFile(projectPath)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, overlay)
	}

	if cfg.StorePath == "" {
		return Config{}, ErrStorePathEmpty
	}

	return cfg, nil
}

func loadFile(path string) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from trusted config locations
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("kvconfig: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("kvconfig: %s: invalid JSONC: %w", path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("kvconfig: %s: invalid JSON: %w", path, err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if v, ok := raw["store_path"]; ok {
		if s, ok := v.(string); ok && s == "" {
			return Config{}, false, fmt.Errorf("kvconfig: %s: %w", path, ErrStorePathEmpty)
		}
	}

	return cfg, true, nil
}

func merge(base, overlay Config) Config {
	if overlay.StorePath != "" {
		base.StorePath = overlay.StorePath
	}

	base.Align = overlay.Align || base.Align
	base.Interpolate = overlay.Interpolate || base.Interpolate
	base.Quiet = overlay.Quiet || base.Quiet

	return base
}
