package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the environment variable prefix for all preference overrides,
// e.g. LOOP_MAX_IOB=5.
const EnvPrefix = "LOOP"

// Load builds Preferences from defaults, an optional JSON file, and
// environment overrides, in that order.
func Load(path string) (Preferences, error) {
	prefs := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Preferences{}, fmt.Errorf("read preferences %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &prefs); err != nil {
			return Preferences{}, fmt.Errorf("parse preferences %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &prefs); err != nil {
		return Preferences{}, fmt.Errorf("env preferences: %w", err)
	}
	return prefs, nil
}
